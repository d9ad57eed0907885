package server

import (
	"time"

	"github.com/sandeepkv93/companiond/internal/commands"
	"github.com/sandeepkv93/companiond/internal/messaging"
	"github.com/sandeepkv93/companiond/internal/model"
	"github.com/sandeepkv93/companiond/internal/storage"
)

// Request payloads

type CreateTimerRequest struct {
	Name            string `json:"name,omitempty"`
	Type            string `json:"type" enum:"countdown,stopwatch"`
	DurationSeconds int    `json:"duration_seconds,omitempty" minimum:"0"`
	AutoRestart     bool   `json:"auto_restart,omitempty"`
	Start           bool   `json:"start,omitempty"`
}

type CreatePomodoroRequest struct {
	Name             string `json:"name,omitempty"`
	WorkMinutes      int    `json:"work_minutes,omitempty" minimum:"0"`
	BreakMinutes     int    `json:"break_minutes,omitempty" minimum:"0"`
	LongBreakMinutes int    `json:"long_break_minutes,omitempty" minimum:"0"`
	Sessions         int    `json:"sessions,omitempty" minimum:"0"`
	AutoRestart      bool   `json:"auto_restart,omitempty"`
	Start            bool   `json:"start,omitempty"`
}

type ActionRequest struct {
	Type             string `json:"type" enum:"speak,notify,reminder,affirmation,sms"`
	Message          string `json:"message,omitempty"`
	PhoneNumber      string `json:"phone_number,omitempty"`
	IncludeSignature bool   `json:"include_signature,omitempty"`
}

type CreateAutomationRequest struct {
	Name    string        `json:"name"`
	Trigger string        `json:"trigger" enum:"time,daily,weekly,timer_complete"`
	Time    string        `json:"time,omitempty" example:"09:00"`
	Days    []int         `json:"days,omitempty"`
	Timer   string        `json:"timer,omitempty" doc:"Timer id or name for timer_complete triggers"`
	Action  ActionRequest `json:"action"`
}

type PauseAutomationRequest struct {
	Minutes int `json:"minutes" minimum:"1"`
}

type SendMessageRequest struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	TextColor string `json:"text_color,omitempty"`
	FontStyle string `json:"font_style,omitempty" enum:"normal,bold,italic,bold-italic"`
}

type SendFileRequest struct {
	Sender        string            `json:"sender"`
	FileName      string            `json:"file_name"`
	Data          string            `json:"data" doc:"Base64 payload, optionally a data URI"`
	Description   string            `json:"description,omitempty"`
	Encrypt       bool              `json:"encrypt,omitempty"`
	SourceFeature string            `json:"source_feature,omitempty"`
	SourceID      string            `json:"source_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	AllowEditing  bool              `json:"allow_editing,omitempty"`
}

type SendVoiceRequest struct {
	Sender     string `json:"sender"`
	Audio      []byte `json:"audio" doc:"Base64 encoded audio"`
	MimeType   string `json:"mime_type"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

type CommandRequest struct {
	Input string `json:"input" example:"timer 5m tea"`
}

// Response payloads

type PomodoroResponse struct {
	Phase            string `json:"phase"`
	CurrentSession   int    `json:"current_session"`
	Sessions         int    `json:"sessions"`
	WorkSeconds      int    `json:"work_seconds"`
	BreakSeconds     int    `json:"break_seconds"`
	LongBreakSeconds int    `json:"long_break_seconds"`
}

type TimerResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Status      string            `json:"status"`
	Duration    int               `json:"duration"`
	Remaining   int               `json:"remaining"`
	Progress    float64           `json:"progress"`
	AutoRestart bool              `json:"auto_restart"`
	CreatedAt   time.Time         `json:"created_at"`
	Pomodoro    *PomodoroResponse `json:"pomodoro,omitempty"`
}

type LifecycleResponse struct {
	Timer   TimerResponse `json:"timer"`
	Outcome string        `json:"outcome" enum:"applied,no-op"`
}

type AutomationResponse struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Enabled     bool          `json:"enabled"`
	State       string        `json:"state"`
	Trigger     string        `json:"trigger"`
	Time        string        `json:"time,omitempty"`
	Days        []int         `json:"days,omitempty"`
	TimerID     string        `json:"timer_id,omitempty"`
	Action      ActionRequest `json:"action"`
	LastRun     *time.Time    `json:"last_run,omitempty"`
	PausedUntil *time.Time    `json:"paused_until,omitempty"`
	Orphaned    bool          `json:"orphaned"`
	CreatedAt   time.Time     `json:"created_at"`
}

type FiringResponse struct {
	ID             string    `json:"id"`
	AutomationID   string    `json:"automation_id"`
	AutomationName string    `json:"automation_name"`
	ActionType     string    `json:"action_type"`
	Delivered      bool      `json:"delivered"`
	SMSStatus      string    `json:"sms_status,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	FiredAt        time.Time `json:"fired_at"`
}

type AttachmentResponse struct {
	FileName      string            `json:"file_name"`
	FileType      string            `json:"file_type"`
	Size          int               `json:"size"`
	Encrypted     bool              `json:"encrypted"`
	SourceFeature string            `json:"source_feature,omitempty"`
	SourceID      string            `json:"source_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type VoiceResponse struct {
	MimeType   string `json:"mime_type"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Size       int    `json:"size"`
}

type MessageResponse struct {
	ID         string              `json:"id"`
	CalendarID string              `json:"calendar_id"`
	Sender     string              `json:"sender"`
	Timestamp  time.Time           `json:"timestamp"`
	Kind       string              `json:"kind"`
	Text       string              `json:"text,omitempty"`
	Encrypted  bool                `json:"encrypted"`
	Failed     bool                `json:"decrypt_failed,omitempty"`
	TextColor  string              `json:"text_color,omitempty"`
	FontStyle  string              `json:"font_style,omitempty"`
	Attachment *AttachmentResponse `json:"attachment,omitempty"`
	Voice      *VoiceResponse      `json:"voice,omitempty"`
}

type FileContentResponse struct {
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
	Data     []byte `json:"data"`
}

type CommandResponse struct {
	Message string `json:"message"`
}

func timerResponse(tm model.Timer) TimerResponse {
	out := TimerResponse{
		ID:          tm.ID,
		Name:        tm.Name,
		Type:        string(tm.Type),
		Status:      string(tm.Status),
		Duration:    tm.Duration,
		Remaining:   tm.Remaining,
		Progress:    tm.Progress(),
		AutoRestart: tm.AutoRestart,
		CreatedAt:   tm.CreatedAt,
	}
	if p := tm.Pomodoro; p != nil {
		out.Pomodoro = &PomodoroResponse{
			Phase:            p.PhaseName(),
			CurrentSession:   p.CurrentSession,
			Sessions:         p.SessionsBeforeLongBreak,
			WorkSeconds:      p.WorkDuration,
			BreakSeconds:     p.BreakDuration,
			LongBreakSeconds: p.LongBreakDuration,
		}
	}
	return out
}

func timerResponses(list []model.Timer) []TimerResponse {
	out := make([]TimerResponse, 0, len(list))
	for _, tm := range list {
		out = append(out, timerResponse(tm))
	}
	return out
}

func automationResponse(a model.Automation, now time.Time) AutomationResponse {
	return AutomationResponse{
		ID:      a.ID,
		Name:    a.Name,
		Enabled: a.Enabled,
		State:   commands.AutomationState(a, now),
		Trigger: string(a.Trigger),
		Time:    a.TriggerConfig.Time,
		Days:    a.TriggerConfig.DayOfWeek,
		TimerID: a.TriggerConfig.TimerID,
		Action: ActionRequest{
			Type:             string(a.Action.Type),
			Message:          a.Action.Message,
			PhoneNumber:      a.Action.PhoneNumber,
			IncludeSignature: a.Action.IncludeSignature,
		},
		LastRun:     a.LastRun,
		PausedUntil: a.PausedUntil,
		Orphaned:    a.Orphaned,
		CreatedAt:   a.CreatedAt,
	}
}

func (r ActionRequest) toAction() model.Action {
	return model.Action{
		Type:             model.ActionType(r.Type),
		Message:          r.Message,
		PhoneNumber:      r.PhoneNumber,
		IncludeSignature: r.IncludeSignature,
	}
}

func firingResponse(f storage.FiringRecord) FiringResponse {
	return FiringResponse{
		ID:             f.ID,
		AutomationID:   f.AutomationID,
		AutomationName: f.AutomationName,
		ActionType:     f.ActionType,
		Delivered:      f.Delivered,
		SMSStatus:      f.SMSStatus,
		Detail:         f.Detail,
		FiredAt:        f.FiredAt,
	}
}

// messageResponse never exposes ciphertext; text carries the decrypted
// value or the failure sentinel.
func messageResponse(msg model.Message, text string, failed bool) MessageResponse {
	out := MessageResponse{
		ID:         msg.ID,
		CalendarID: msg.CalendarID,
		Sender:     msg.SenderEmail,
		Timestamp:  msg.Timestamp,
		Kind:       string(msg.Kind),
		Text:       text,
		Encrypted:  msg.Encrypted,
		Failed:     failed,
		TextColor:  msg.TextColor,
		FontStyle:  string(msg.FontStyle),
	}
	if a := msg.Attachment; a != nil {
		out.Attachment = &AttachmentResponse{
			FileName:      a.FileName,
			FileType:      a.FileType,
			Size:          a.Size,
			Encrypted:     a.Encrypted,
			SourceFeature: a.SourceFeature,
			SourceID:      a.SourceID,
			Metadata:      a.Metadata,
		}
	}
	if v := msg.Voice; v != nil {
		out.Voice = &VoiceResponse{MimeType: v.MimeType, DurationMs: v.DurationMs, Size: v.Size}
	}
	return out
}

func decryptedResponses(list []messaging.Decrypted) []MessageResponse {
	out := make([]MessageResponse, 0, len(list))
	for _, d := range list {
		out = append(out, messageResponse(d.Message, d.Text, d.Failed))
	}
	return out
}
