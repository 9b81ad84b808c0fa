package interview

import (
	"time"

	"interview-concierge/internal/capture"
)

// Permission is the outcome of the camera/microphone request
type Permission string

const (
	PermissionChecking Permission = "checking"
	PermissionGranted  Permission = "granted"
	PermissionBlocked  Permission = "blocked"
	PermissionTextOnly Permission = "text-only"
)

// Mode is how answers are captured
type Mode string

const (
	ModeSpeak Mode = "speak"
	ModeType  Mode = "type"
)

// Screen is what the interviewee should be looking at
type Screen string

const (
	ScreenChecking  Screen = "checking"
	ScreenBlocked   Screen = "blocked"
	ScreenInterview Screen = "interview"
	ScreenRecap     Screen = "recap"
	ScreenThankYou  Screen = "thank_you"
)

// SendStatus tracks the recap "send me a copy" request
type SendStatus string

const (
	SendIdle    SendStatus = "idle"
	SendSending SendStatus = "sending"
	SendSent    SendStatus = "sent"
	SendError   SendStatus = "error"
)

// Submit button labels
const (
	LabelSaving    = "Saving…"
	LabelListening = "Listening…"
	LabelFinish    = "Finish"
	LabelNext      = "Next →"
)

// Transcript area hints
const (
	HintTyping    = "Type your answer here…"
	HintListening = "Listening… start speaking"
	HintStarting  = "Starting…"
)

// State is the persisted state of one interviewee's flow. Saving and the
// audio level are transient and never stored.
type State struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	Permission      Permission `json:"permission"`
	PermissionError string     `json:"permissionError,omitempty"`

	QuestionIndex int                `json:"questionIndex"`
	Override      Mode               `json:"override,omitempty"`
	Transcript    capture.Transcript `json:"transcript"`
	Listening     bool               `json:"listening"`
	Level         float64            `json:"-"`

	SessionRecordID string     `json:"sessionRecordId,omitempty"`
	AnswersSaved    int        `json:"answersSaved"`
	Saving          bool       `json:"-"`
	SavedAt         *int       `json:"savedAt,omitempty"`
	SaveError       string     `json:"saveError,omitempty"`
	TransitionEnds  *time.Time `json:"transitionEnds,omitempty"`
	Complete        bool       `json:"complete"`

	SendStatus SendStatus `json:"sendStatus"`
	SendError  string     `json:"sendError,omitempty"`
	SentAt     *time.Time `json:"sentAt,omitempty"`
	ThankYou   bool       `json:"thankYou"`
}

// TextOnly reports whether the current question is answered by typing
func (s *State) TextOnly() bool {
	return s.Override == ModeType || (s.Override == "" && s.Permission == PermissionTextOnly)
}

// Screen resolves the visible screen. Permission screens win over
// completion so a blocked interviewee never sees the recap.
func (s *State) Screen() Screen {
	switch {
	case s.Permission == PermissionChecking:
		return ScreenChecking
	case s.Permission == PermissionBlocked:
		return ScreenBlocked
	case s.ThankYou:
		return ScreenThankYou
	case s.Complete:
		return ScreenRecap
	}
	return ScreenInterview
}

// Transitioning reports whether the flow is between two questions
func (s *State) Transitioning() bool {
	return s.TransitionEnds != nil
}

// canSubmit applies the submit guards in the order the button does
func (s *State) canSubmit() bool {
	textOnly := s.TextOnly()
	return s.Transcript.HasText(textOnly) &&
		!s.Saving &&
		!(!textOnly && s.Transcript.Transcribing()) &&
		!s.Transitioning()
}

// restored normalises a state loaded from a store: anything in flight when
// it was written did not survive.
func (s *State) restored() {
	s.Saving = false
	if s.SendStatus == SendSending || s.SendStatus == "" {
		s.SendStatus = SendIdle
	}
}
