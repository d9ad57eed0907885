package model

import (
	"errors"
	"testing"
	"time"
)

func TestMessageValidateEncryptedText(t *testing.T) {
	msg := Message{
		ID:            "msg-1",
		CalendarID:    "cal-1",
		SenderEmail:   "a@example.com",
		Timestamp:     time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC),
		Kind:          PayloadText,
		Encrypted:     true,
		EncryptedData: "opaque",
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}

	msg.Text = "leak"
	if err := msg.Validate(); !errors.Is(err, ErrMixedEncryption) {
		t.Fatalf("expected ErrMixedEncryption, got %v", err)
	}
}

func TestMessageValidateFileMustMatchEncryption(t *testing.T) {
	msg := Message{
		ID:            "msg-2",
		CalendarID:    "cal-1",
		Timestamp:     time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC),
		Kind:          PayloadFile,
		Encrypted:     true,
		EncryptedData: "opaque",
		Attachment:    &Attachment{FileName: "a.txt", EncryptedData: "plain", Encrypted: false},
	}
	if err := msg.Validate(); !errors.Is(err, ErrMixedEncryption) {
		t.Fatalf("expected ErrMixedEncryption, got %v", err)
	}
	msg.Attachment.Encrypted = true
	if err := msg.Validate(); err != nil {
		t.Fatalf("expected valid file message, got %v", err)
	}
}

func TestMessageValidateFontStyle(t *testing.T) {
	msg := Message{
		ID:         "msg-3",
		CalendarID: "cal-1",
		Timestamp:  time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC),
		Kind:       PayloadText,
		Text:       "hi",
		FontStyle:  FontStyle("underline"),
	}
	if err := msg.Validate(); !errors.Is(err, ErrInvalidFontStyle) {
		t.Fatalf("expected ErrInvalidFontStyle, got %v", err)
	}
}
