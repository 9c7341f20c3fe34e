package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type SourceType string

const (
	SourceText  SourceType = "text"
	SourceAudio SourceType = "audio"
)

type MessageStatus string

const (
	StatusReceived    MessageStatus = "received"
	StatusNormalized  MessageStatus = "normalized"
	StatusTranscribed MessageStatus = "transcribed"
	StatusExtracted   MessageStatus = "extracted"
	StatusFailed      MessageStatus = "failed"
)

// IsTerminal reports whether no further updates are accepted in this status.
func (s MessageStatus) IsTerminal() bool {
	return s == StatusExtracted || s == StatusFailed
}

// RequiresText reports whether a message in this status must carry normalized text.
func (s MessageStatus) RequiresText() bool {
	return s == StatusNormalized || s == StatusTranscribed || s == StatusExtracted
}

func (s MessageStatus) Valid() bool {
	switch s {
	case StatusReceived, StatusNormalized, StatusTranscribed, StatusExtracted, StatusFailed:
		return true
	default:
		return false
	}
}

var transitions = map[MessageStatus][]MessageStatus{
	StatusReceived:    {StatusNormalized, StatusTranscribed, StatusFailed},
	StatusNormalized:  {StatusExtracted, StatusFailed},
	StatusTranscribed: {StatusExtracted, StatusFailed},
}

// CanTransition reports whether a message may move from one status to another.
func CanTransition(from, to MessageStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Message struct {
	ID             string             `json:"id" yaml:"id"`
	SourceType     SourceType         `json:"source_type" yaml:"source_type"`
	RawInput       string             `json:"raw_input" yaml:"raw_input"`
	NormalizedText string             `json:"normalized_text,omitempty" yaml:"normalized_text,omitempty"`
	Extraction     *MedicalExtraction `json:"extraction,omitempty" yaml:"extraction,omitempty"`
	Status         MessageStatus      `json:"status" yaml:"status"`
	ErrorDetail    string             `json:"error_detail,omitempty" yaml:"error_detail,omitempty"`
	CreatedAt      time.Time          `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" yaml:"updated_at"`
}

// MessageUpdate is a partial field set; nil fields are left untouched.
type MessageUpdate struct {
	Status         *MessageStatus
	RawInput       *string
	NormalizedText *string
	Extraction     *MedicalExtraction
	ErrorDetail    *string
}

func StatusUpdate(status MessageStatus) MessageUpdate {
	return MessageUpdate{Status: &status}
}

func (u MessageUpdate) WithRawInput(raw string) MessageUpdate {
	u.RawInput = &raw
	return u
}

func (u MessageUpdate) WithNormalizedText(text string) MessageUpdate {
	u.NormalizedText = &text
	return u
}

func (u MessageUpdate) WithExtraction(extraction MedicalExtraction) MessageUpdate {
	u.Extraction = &extraction
	return u
}

func (u MessageUpdate) WithErrorDetail(detail string) MessageUpdate {
	u.ErrorDetail = &detail
	return u
}

// Apply validates upd against the lifecycle rules and mutates m in place.
// m is left unchanged when an error is returned.
func (m *Message) Apply(upd MessageUpdate, now time.Time) error {
	if m.Status.IsTerminal() {
		return WrapError(ErrInvalidTransition, "apply update", fmt.Errorf("message %s is %s", m.ID, m.Status))
	}

	next := m.Status
	if upd.Status != nil {
		next = *upd.Status
	}
	if !next.Valid() {
		return WrapError(ErrInvalidTransition, "apply update", fmt.Errorf("unknown status %q", next))
	}
	if next != m.Status && !CanTransition(m.Status, next) {
		return WrapError(ErrInvalidTransition, "apply update", fmt.Errorf("%s -> %s", m.Status, next))
	}

	extraction := m.Extraction
	if upd.Extraction != nil {
		if next != StatusExtracted {
			return WrapError(ErrInvalidTransition, "apply update", errors.New("extraction requires status extracted"))
		}
		copied := *upd.Extraction
		extraction = &copied
	}
	if next == StatusExtracted && extraction == nil {
		return WrapError(ErrInvalidTransition, "apply update", errors.New("status extracted requires an extraction"))
	}

	text := m.NormalizedText
	if upd.NormalizedText != nil {
		text = *upd.NormalizedText
	}
	if next.RequiresText() && strings.TrimSpace(text) == "" {
		return WrapError(ErrInvalidTransition, "apply update", fmt.Errorf("status %s requires normalized text", next))
	}

	detail := m.ErrorDetail
	if upd.ErrorDetail != nil {
		if next != StatusFailed {
			return WrapError(ErrInvalidTransition, "apply update", errors.New("error detail requires status failed"))
		}
		detail = *upd.ErrorDetail
	}
	if next == StatusFailed && detail == "" {
		return WrapError(ErrInvalidTransition, "apply update", errors.New("status failed requires an error detail"))
	}

	m.Status = next
	if upd.RawInput != nil {
		m.RawInput = *upd.RawInput
	}
	m.NormalizedText = text
	m.Extraction = extraction
	m.ErrorDetail = detail
	m.UpdatedAt = now
	return nil
}

type MessageFilter struct {
	Status MessageStatus
	Limit  int
}
