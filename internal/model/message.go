package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidPayloadKind = errors.New("model: invalid message payload kind")
	ErrInvalidFontStyle   = errors.New("model: invalid font style")
	ErrMixedEncryption    = errors.New("model: message mixes plaintext and ciphertext")
)

type PayloadKind string

const (
	PayloadText  PayloadKind = "text"
	PayloadVoice PayloadKind = "voice"
	PayloadFile  PayloadKind = "file"
)

func (k PayloadKind) IsValid() bool {
	switch k {
	case PayloadText, PayloadVoice, PayloadFile:
		return true
	default:
		return false
	}
}

type FontStyle string

const (
	FontNormal     FontStyle = "normal"
	FontBold       FontStyle = "bold"
	FontItalic     FontStyle = "italic"
	FontBoldItalic FontStyle = "bold-italic"
)

func (f FontStyle) IsValid() bool {
	switch f {
	case "", FontNormal, FontBold, FontItalic, FontBoldItalic:
		return true
	default:
		return false
	}
}

// Attachment is a file payload. EncryptedData holds the base64 payload,
// encrypted when Encrypted is set.
type Attachment struct {
	FileName      string            `json:"fileName"`
	FileType      string            `json:"fileType"`
	Size          int               `json:"size"`
	EncryptedData string            `json:"encryptedData"`
	Encrypted     bool              `json:"encrypted"`
	UploadedAt    time.Time         `json:"uploadedAt"`
	SourceFeature string            `json:"sourceFeature,omitempty"`
	SourceID      string            `json:"sourceId,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	AllowEditing  bool              `json:"allowEditing,omitempty"`
}

// Voice describes a recorded clip. The audio itself travels base64 encoded
// and encrypted in Message.EncryptedData.
type Voice struct {
	MimeType   string `json:"mimeType"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Size       int    `json:"size"`
}

type Message struct {
	ID            string      `json:"id"`
	CalendarID    string      `json:"calendarId"`
	SenderEmail   string      `json:"senderEmail"`
	Timestamp     time.Time   `json:"timestamp"`
	Kind          PayloadKind `json:"kind"`
	Text          string      `json:"text,omitempty"`
	Encrypted     bool        `json:"encrypted"`
	EncryptedData string      `json:"encryptedData,omitempty"`
	Voice         *Voice      `json:"voice,omitempty"`
	Attachment    *Attachment `json:"attachment,omitempty"`
	TextColor     string      `json:"textColor,omitempty"`
	FontStyle     FontStyle   `json:"fontStyle,omitempty"`
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return errors.New("model: message id is required")
	}
	if strings.TrimSpace(m.CalendarID) == "" {
		return errors.New("model: message calendar id is required")
	}
	if m.Timestamp.IsZero() {
		return errors.New("model: message timestamp is required")
	}
	if !m.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPayloadKind, m.Kind)
	}
	if !m.FontStyle.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidFontStyle, m.FontStyle)
	}
	if m.Encrypted && m.Text != "" {
		return ErrMixedEncryption
	}
	if !m.Encrypted && m.EncryptedData != "" {
		return ErrMixedEncryption
	}
	switch m.Kind {
	case PayloadVoice:
		if m.Voice == nil {
			return errors.New("model: voice message requires voice metadata")
		}
		if m.Attachment != nil {
			return errors.New("model: voice message cannot carry an attachment")
		}
	case PayloadFile:
		if m.Attachment == nil {
			return errors.New("model: file message requires an attachment")
		}
		if m.Attachment.Encrypted != m.Encrypted {
			return ErrMixedEncryption
		}
	case PayloadText:
		if m.Voice != nil || m.Attachment != nil {
			return errors.New("model: text message cannot carry voice or attachment")
		}
	}
	return nil
}
