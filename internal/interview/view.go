package interview

import "interview-concierge/internal/capture"

// View is the read model returned by every flow operation
type View struct {
	ID     string `json:"id"`
	Screen Screen `json:"screen"`
	Name   string `json:"name"`
	Email  string `json:"email"`

	PermissionError string `json:"permissionError,omitempty"`

	QuestionNumber int    `json:"questionNumber"`
	TotalQuestions int    `json:"totalQuestions"`
	QuestionText   string `json:"questionText"`

	Transcript        string  `json:"transcript"`
	InterimTranscript string  `json:"interimTranscript"`
	AudioLevel        float64 `json:"audioLevel"`
	Bars              []bool  `json:"bars"`
	Listening         bool    `json:"listening"`

	Saving        bool   `json:"saving"`
	JustSaved     bool   `json:"justSaved"`
	SaveError     string `json:"saveError,omitempty"`
	Transitioning bool   `json:"transitioning"`
	CanSubmit     bool   `json:"canSubmit"`
	SubmitLabel   string `json:"submitLabel"`

	TextOnly         bool   `json:"textOnly"`
	CanSwitchToSpeak bool   `json:"canSwitchToSpeak"`
	Hint             string `json:"hint,omitempty"`

	SessionRecordID string     `json:"sessionRecordId,omitempty"`
	SendStatus      SendStatus `json:"sendStatus"`
	SendError       string     `json:"sendError,omitempty"`
}

func buildView(s *State, questions []string) *View {
	textOnly := s.TextOnly()
	index := s.QuestionIndex
	if index >= len(questions) {
		index = len(questions) - 1
	}

	v := &View{
		ID:                s.ID,
		Screen:            s.Screen(),
		Name:              s.Name,
		Email:             s.Email,
		PermissionError:   s.PermissionError,
		QuestionNumber:    index + 1,
		TotalQuestions:    len(questions),
		QuestionText:      questions[index],
		Transcript:        s.Transcript.Accumulated,
		InterimTranscript: s.Transcript.Interim,
		AudioLevel:        s.Level,
		Bars:              capture.Bars(s.Level, s.Listening),
		Listening:         s.Listening,
		Saving:            s.Saving,
		JustSaved:         s.SavedAt != nil && *s.SavedAt == s.QuestionIndex && !s.Saving,
		SaveError:         s.SaveError,
		Transitioning:     s.Transitioning(),
		CanSubmit:         s.canSubmit(),
		TextOnly:          textOnly,
		CanSwitchToSpeak:  s.Permission == PermissionGranted,
		SessionRecordID:   s.SessionRecordID,
		SendStatus:        s.SendStatus,
		SendError:         s.SendError,
	}

	switch {
	case s.Saving:
		v.SubmitLabel = LabelSaving
	case !textOnly && s.Transcript.Transcribing():
		v.SubmitLabel = LabelListening
	case s.QuestionIndex == len(questions)-1:
		v.SubmitLabel = LabelFinish
	default:
		v.SubmitLabel = LabelNext
	}

	switch {
	case textOnly:
		v.Hint = HintTyping
	case s.Transcript.HasText(false):
	case s.Listening:
		v.Hint = HintListening
	default:
		v.Hint = HintStarting
	}

	return v
}
