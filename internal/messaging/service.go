package messaging

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/companiond/internal/crypto"
	"github.com/sandeepkv93/companiond/internal/model"
	"github.com/sandeepkv93/companiond/internal/storage"
)

// FailedDecryptText stands in for a message whose envelope cannot be opened.
const FailedDecryptText = "[Unable to decrypt message]"

const (
	keyPrefix         = "messages/"
	defaultFileType   = "application/octet-stream"
	decryptFanOut     = 8
	voicePlaceholder  = "[Voice message]"
	defaultVoiceMedia = "audio/m4a"
)

var (
	ErrNoAttachment  = errors.New("messaging: message has no attachment")
	ErrNotVoice      = errors.New("messaging: message is not a voice message")
	ErrInvalidBase64 = errors.New("messaging: payload is not valid base64")
)

type SendOptions struct {
	TextColor string
	FontStyle model.FontStyle
}

// Source links an attachment to the feature that produced it, e.g. a note
// or planner entry shared into the conversation.
type Source struct {
	Feature      string
	ID           string
	Metadata     map[string]string
	AllowEditing bool
}

type Decrypted struct {
	Message model.Message
	Text    string
	Failed  bool
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service owns per-conversation message lists. Text and attachments are
// sealed with the codec before they are stored and opened on read.
type Service struct {
	codec  crypto.Codec
	kv     storage.KV
	now    func() time.Time
	newID  func() string
	logger *slog.Logger

	mu            sync.Mutex
	conversations map[string][]model.Message

	cacheMu sync.RWMutex
	cache   map[string]string
}

func NewService(codec crypto.Codec, kv storage.KV, opts ...Option) (*Service, error) {
	if codec == nil {
		return nil, errors.New("messaging: codec is required")
	}
	if kv == nil {
		return nil, errors.New("messaging: store is required")
	}
	s := &Service{
		codec:         codec,
		kv:            kv,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
		logger:        slog.Default(),
		conversations: make(map[string][]model.Message),
		cache:         make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) SendMessage(ctx context.Context, calendarID, text, sender string, opts SendOptions) (model.Message, error) {
	if strings.TrimSpace(text) == "" {
		return model.Message{}, &model.ValidationError{Field: "text", Message: "message text is required"}
	}
	sealed, err := s.codec.Encrypt(text)
	if err != nil {
		return model.Message{}, fmt.Errorf("encrypt message: %w", err)
	}
	msg := s.newMessage(calendarID, sender, model.PayloadText)
	msg.Encrypted = true
	msg.EncryptedData = sealed
	msg.TextColor = strings.TrimSpace(opts.TextColor)
	msg.FontStyle = opts.FontStyle

	if err := s.appendMessage(ctx, msg); err != nil {
		return model.Message{}, err
	}
	s.remember(sealed, text)
	return msg, nil
}

// SendVoice stores a recorded clip as its own payload kind. The audio is
// base64 encoded and sealed like text.
func (s *Service) SendVoice(ctx context.Context, calendarID, sender string, audio []byte, mimeType string, duration time.Duration) (model.Message, error) {
	if len(audio) == 0 {
		return model.Message{}, &model.ValidationError{Field: "audio", Message: "voice message has no audio"}
	}
	if strings.TrimSpace(mimeType) == "" {
		mimeType = defaultVoiceMedia
	}
	sealed, err := s.codec.Encrypt(base64.StdEncoding.EncodeToString(audio))
	if err != nil {
		return model.Message{}, fmt.Errorf("encrypt voice: %w", err)
	}
	msg := s.newMessage(calendarID, sender, model.PayloadVoice)
	msg.Encrypted = true
	msg.EncryptedData = sealed
	msg.Voice = &model.Voice{
		MimeType:   mimeType,
		DurationMs: duration.Milliseconds(),
		Size:       len(audio),
	}
	if err := s.appendMessage(ctx, msg); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

// SendFileAttachment wraps an already base64 encoded payload. Size is the
// decoded byte length. When encrypt is set both the payload and the
// description are sealed; otherwise both are stored as given.
func (s *Service) SendFileAttachment(ctx context.Context, calendarID, base64Data, fileName, description, sender string, encrypt bool, src Source) (model.Message, error) {
	name := strings.TrimSpace(fileName)
	if name == "" {
		return model.Message{}, &model.ValidationError{Field: "fileName", Message: "file name is required"}
	}
	payload, mediaType := splitDataURI(base64Data)
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return model.Message{}, &model.ValidationError{Field: "data", Err: fmt.Errorf("%w: %v", ErrInvalidBase64, err)}
	}
	if mediaType == "" {
		mediaType = fileTypeFor(name)
	}

	att := &model.Attachment{
		FileName:      name,
		FileType:      mediaType,
		Size:          len(raw),
		EncryptedData: payload,
		Encrypted:     encrypt,
		UploadedAt:    s.now(),
		SourceFeature: strings.TrimSpace(src.Feature),
		SourceID:      strings.TrimSpace(src.ID),
		Metadata:      cloneMetadata(src.Metadata),
		AllowEditing:  src.AllowEditing,
	}
	msg := s.newMessage(calendarID, sender, model.PayloadFile)
	msg.Attachment = att
	if encrypt {
		sealedPayload, err := s.codec.Encrypt(payload)
		if err != nil {
			return model.Message{}, fmt.Errorf("encrypt attachment: %w", err)
		}
		sealedText, err := s.codec.Encrypt(description)
		if err != nil {
			return model.Message{}, fmt.Errorf("encrypt description: %w", err)
		}
		att.EncryptedData = sealedPayload
		msg.Encrypted = true
		msg.EncryptedData = sealedText
	} else {
		msg.Text = description
	}

	if err := s.appendMessage(ctx, msg); err != nil {
		return model.Message{}, err
	}
	if encrypt {
		s.remember(msg.EncryptedData, description)
	}
	return msg, nil
}

// DecryptedText never fails: a message that cannot be opened renders as
// FailedDecryptText and the failure is logged.
func (s *Service) DecryptedText(msg model.Message) string {
	text, ok := s.decryptText(msg)
	if !ok {
		return FailedDecryptText
	}
	return text
}

func (s *Service) decryptText(msg model.Message) (string, bool) {
	if msg.Kind == model.PayloadVoice {
		return voicePlaceholder, true
	}
	if !msg.Encrypted {
		return msg.Text, true
	}
	s.cacheMu.RLock()
	cached, hit := s.cache[msg.EncryptedData]
	s.cacheMu.RUnlock()
	if hit {
		return cached, true
	}
	text, err := s.codec.Decrypt(msg.EncryptedData)
	if err != nil {
		s.logger.Warn("decrypt message failed",
			"message_id", msg.ID,
			"calendar_id", msg.CalendarID,
			"error", err,
		)
		return "", false
	}
	s.remember(msg.EncryptedData, text)
	return text, true
}

// Decrypt opens a whole conversation. Messages are decrypted concurrently;
// the result keeps message order and one failure does not affect the rest.
func (s *Service) Decrypt(ctx context.Context, calendarID string) ([]Decrypted, error) {
	msgs, err := s.Messages(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	out := make([]Decrypted, len(msgs))
	sem := make(chan struct{}, decryptFanOut)
	var wg sync.WaitGroup
	for i, msg := range msgs {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			text, ok := s.decryptText(msg)
			if !ok {
				text = FailedDecryptText
			}
			out[i] = Decrypted{Message: msg, Text: text, Failed: !ok}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// OpenAttachment returns the raw file bytes. Stored ciphertext is never
// touched, so a failed open can be retried.
func (s *Service) OpenAttachment(msg model.Message) ([]byte, error) {
	if msg.Attachment == nil {
		return nil, ErrNoAttachment
	}
	payload := msg.Attachment.EncryptedData
	if msg.Attachment.Encrypted {
		opened, err := s.codec.Decrypt(payload)
		if err != nil {
			return nil, fmt.Errorf("decrypt attachment %s: %w", msg.Attachment.FileName, err)
		}
		payload = opened
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: attachment %s: %v", ErrInvalidBase64, msg.Attachment.FileName, err)
	}
	return raw, nil
}

func (s *Service) VoiceAudio(msg model.Message) ([]byte, error) {
	if msg.Kind != model.PayloadVoice || msg.Voice == nil {
		return nil, ErrNotVoice
	}
	opened, err := s.codec.Decrypt(msg.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("decrypt voice: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(opened)
	if err != nil {
		return nil, fmt.Errorf("%w: voice: %v", ErrInvalidBase64, err)
	}
	return raw, nil
}

func (s *Service) Messages(ctx context.Context, calendarID string) ([]model.Message, error) {
	id, err := conversationID(calendarID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.loadLocked(ctx, id)), nil
}

// Clear removes a whole conversation; messages are never deleted one by one.
func (s *Service) Clear(ctx context.Context, calendarID string) error {
	id, err := conversationID(calendarID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	msgs := s.loadLocked(ctx, id)
	s.conversations[id] = []model.Message{}
	s.mu.Unlock()

	s.cacheMu.Lock()
	for _, m := range msgs {
		delete(s.cache, m.EncryptedData)
	}
	s.cacheMu.Unlock()

	if err := s.kv.Delete(ctx, keyPrefix+id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("clear conversation failed", "calendar_id", id, "error", err)
	}
	return nil
}

// Conversations lists calendar ids with stored messages, when the store
// can enumerate keys.
func (s *Service) Conversations(ctx context.Context) ([]string, error) {
	lister, ok := s.kv.(storage.KeyLister)
	if !ok {
		return nil, errors.New("messaging: store cannot list conversations")
	}
	keys, err := lister.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, keyPrefix))
	}
	return out, nil
}

func (s *Service) newMessage(calendarID, sender string, kind model.PayloadKind) model.Message {
	return model.Message{
		ID:          s.newID(),
		CalendarID:  strings.TrimSpace(calendarID),
		SenderEmail: strings.TrimSpace(sender),
		Timestamp:   s.now(),
		Kind:        kind,
	}
}

// appendMessage validates msg, adds it to its conversation and writes the whole
// conversation back. A failed write is logged; memory stays authoritative
// and the next write carries the full list again.
func (s *Service) appendMessage(ctx context.Context, msg model.Message) error {
	if _, err := conversationID(msg.CalendarID); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return &model.ValidationError{Field: "message", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append(s.loadLocked(ctx, msg.CalendarID), msg)
	s.conversations[msg.CalendarID] = msgs
	if err := storage.SaveJSON(ctx, s.kv, keyPrefix+msg.CalendarID, msgs); err != nil {
		s.logger.Error("persist conversation failed",
			"calendar_id", msg.CalendarID,
			"messages", len(msgs),
			"error", err,
		)
	}
	return nil
}

func (s *Service) loadLocked(ctx context.Context, calendarID string) []model.Message {
	if msgs, ok := s.conversations[calendarID]; ok {
		return msgs
	}
	var msgs []model.Message
	err := storage.LoadJSON(ctx, s.kv, keyPrefix+calendarID, &msgs)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		msgs = nil
	default:
		s.logger.Warn("load conversation failed, starting empty", "calendar_id", calendarID, "error", err)
		msgs = nil
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	s.conversations[calendarID] = msgs
	return msgs
}

// remember caches plaintext by envelope; an envelope always opens to the
// same text.
func (s *Service) remember(envelope, text string) {
	if envelope == "" {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache[envelope] = text
}

func conversationID(calendarID string) (string, error) {
	id := strings.TrimSpace(calendarID)
	if id == "" {
		return "", &model.ValidationError{Field: "calendarId", Message: "calendar id is required"}
	}
	return id, nil
}

// splitDataURI accepts either bare base64 or a data: URI and returns the
// base64 part plus the declared media type, if any.
func splitDataURI(v string) (string, string) {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "data:") {
		return v, ""
	}
	header, data, ok := strings.Cut(v, ",")
	if !ok {
		return v, ""
	}
	media := strings.TrimPrefix(header, "data:")
	media = strings.TrimSuffix(media, ";base64")
	return data, media
}

func fileTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return defaultFileType
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if media, _, err := mime.ParseMediaType(t); err == nil {
			return media
		}
		return t
	}
	return defaultFileType
}

func cloneMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
