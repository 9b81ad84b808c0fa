package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"interview-concierge/internal/capture"
	"interview-concierge/internal/metrics"
	"interview-concierge/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrFlowNotFound       = errors.New("interview not found")
	ErrInvalidName        = errors.New("name is required")
	ErrInvalidEmail       = errors.New("a valid email address is required")
	ErrInvalidMode        = errors.New("mode must be speak or type")
	ErrWrongScreen        = errors.New("not available on the current screen")
	ErrPermissionResolved = errors.New("permission has already been resolved")
	ErrNotTextMode        = errors.New("answer is being captured by speech")
	ErrCannotSpeak        = errors.New("microphone access was not granted")
	ErrSaveInFlight       = errors.New("an answer is already being saved")
	ErrTransitioning      = errors.New("moving to the next question")
	ErrEmptyAnswer        = errors.New("answer is empty")
	ErrStillListening     = errors.New("still listening")
	ErrSaveFailed         = errors.New("failed to save answer")
	ErrSendInFlight       = errors.New("a copy is already being sent")
	ErrAlreadySent        = errors.New("a copy has already been sent")
	ErrNoRecipients       = errors.New("no recipients selected")
	ErrBriefNotReady      = errors.New("interview brief is not ready yet")
	ErrSendFailed         = errors.New("failed to send copy")
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

// sweepInterval bounds how often idle flows are dropped from memory
const sweepInterval = time.Minute

// Recorder writes interview records to the tabular store
type Recorder interface {
	Create(ctx context.Context, table string, fields models.Fields) (string, error)
	Update(ctx context.Context, table, recordID string, fields models.Fields) (*models.Record, error)
}

// BriefChecker tells whether the AI brief of a session has been generated
type BriefChecker interface {
	BriefReady(ctx context.Context, sessionRecordID string) (bool, error)
}

// Settings for the interview flow
type Settings struct {
	Questions       []string
	TransitionDelay time.Duration
	ThankYouDelay   time.Duration
	Tables          models.Tables
	// FlowTTL drops a flow from memory once it has not been saved for
	// this long. It should match the store TTL. Zero keeps flows forever.
	FlowTTL time.Duration
}

// StartRequest carries the intro screen form
type StartRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Mode      Mode   `json:"mode"`
	UserAgent string `json:"userAgent"`
}

type flow struct {
	mu      sync.Mutex
	state   *State
	version uint64

	saveMu    sync.Mutex
	saved     uint64
	lastSaved atomic.Int64
}

// snapshot is a copy of a flow's state taken under its lock, written to
// the store after the lock is released
type snapshot struct {
	state   State
	version uint64
}

func (f *flow) snapshot() snapshot {
	f.version++
	return snapshot{state: *f.state, version: f.version}
}

// Service runs interview flows. Each flow is guarded by its own mutex and
// all record I/O happens outside of it.
type Service struct {
	settings Settings
	recorder Recorder
	briefs   BriefChecker
	store    Store
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	flows     map[string]*flow
	lastSweep time.Time
}

// NewService creates an interview service
func NewService(
	settings Settings,
	recorder Recorder,
	briefs BriefChecker,
	store Store,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		settings: settings,
		recorder: recorder,
		briefs:   briefs,
		store:    store,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
		flows:    make(map[string]*flow),
	}
}

// Questions returns the interview questions in order
func (s *Service) Questions() []string {
	return append([]string(nil), s.settings.Questions...)
}

// Start validates the intro form and opens a new flow
func (s *Service) Start(ctx context.Context, req StartRequest) (*View, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" {
		return nil, ErrInvalidName
	}
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return nil, ErrInvalidEmail
	}

	mode := req.Mode
	if mode == "" {
		mode = ModeSpeak
	}
	if mode != ModeSpeak && mode != ModeType {
		return nil, ErrInvalidMode
	}

	state := &State{
		ID:         uuid.NewString(),
		Name:       name,
		Email:      email,
		UserAgent:  req.UserAgent,
		CreatedAt:  s.now().UTC(),
		Permission: PermissionChecking,
		SendStatus: SendIdle,
	}
	if mode == ModeType {
		state.Permission = PermissionTextOnly
	}

	f := &flow{state: state}
	f.lastSaved.Store(s.now().UnixNano())
	snap := f.snapshot()

	s.mu.Lock()
	s.sweep(s.now())
	s.flows[state.ID] = f
	s.mu.Unlock()

	s.persist(ctx, f, snap)
	s.metrics.InterviewStarted()

	s.logger.Info("Interview started",
		zap.String("flow_id", state.ID),
		zap.String("mode", string(mode)))

	return buildView(state, s.settings.Questions), nil
}

// View returns the current view, firing any elapsed timers
func (s *Service) View(ctx context.Context, id string) (*View, error) {
	return s.mutate(ctx, id, false, nil)
}

// ReportPermission records the browser's answer to the media request
func (s *Service) ReportPermission(ctx context.Context, id string, granted bool, errName, errMessage string) (*View, error) {
	return s.mutate(ctx, id, true, func(st *State) error {
		if st.Permission != PermissionChecking {
			return ErrPermissionResolved
		}

		if granted {
			st.Permission = PermissionGranted
			st.Listening = true
			return nil
		}

		st.Permission = PermissionBlocked
		st.Listening = false
		if errName != "" || errMessage != "" {
			st.PermissionError = fmt.Sprintf("%s: %s", errName, errMessage)
		}
		return nil
	})
}

// ContinueTextOnly gives up on the media devices and switches to typing
func (s *Service) ContinueTextOnly(ctx context.Context, id string) (*View, error) {
	return s.mutate(ctx, id, true, func(st *State) error {
		switch st.Permission {
		case PermissionChecking, PermissionBlocked:
			st.Permission = PermissionTextOnly
			st.PermissionError = ""
			st.Listening = false
			return nil
		case PermissionTextOnly:
			return nil
		}
		return ErrPermissionResolved
	})
}

// SpeechResult applies a recognition event. Events arriving while not
// listening are dropped.
func (s *Service) SpeechResult(ctx context.Context, id string, ev capture.ResultEvent) (*View, error) {
	return s.mutate(ctx, id, true, func(st *State) error {
		if st.Screen() != ScreenInterview {
			return ErrWrongScreen
		}
		if st.Listening {
			st.Transcript.Apply(ev)
		}
		return nil
	})
}

// SetText replaces the typed answer
func (s *Service) SetText(ctx context.Context, id, text string) (*View, error) {
	return s.mutate(ctx, id, true, func(st *State) error {
		if st.Screen() != ScreenInterview {
			return ErrWrongScreen
		}
		if !st.TextOnly() {
			return ErrNotTextMode
		}
		st.Transcript.SetText(text)
		return nil
	})
}

// AudioLevel updates the meter from an analyser frame. The level is not
// persisted.
func (s *Service) AudioLevel(ctx context.Context, id string, frequencyData []int) (*View, error) {
	return s.mutate(ctx, id, false, func(st *State) error {
		st.Level = capture.Level(frequencyData)
		return nil
	})
}

// ToggleMode switches the current question between speaking and typing.
// The transcript is cleared either way.
func (s *Service) ToggleMode(ctx context.Context, id string) (*View, error) {
	return s.mutate(ctx, id, true, func(st *State) error {
		if st.Screen() != ScreenInterview {
			return ErrWrongScreen
		}

		if st.TextOnly() {
			if st.Permission != PermissionGranted {
				return ErrCannotSpeak
			}
			st.Transcript.Reset()
			st.Override = ModeSpeak
			st.Listening = true
			return nil
		}

		st.Transcript.Reset()
		st.Listening = false
		st.Level = 0
		st.Override = ModeType
		return nil
	})
}

type answer struct {
	index        int
	question     string
	text         string
	sessionID    string
	answersSaved int
	last         bool
	name         string
	email        string
	userAgent    string
}

// Submit saves the current answer. The session record is created with the
// first answer and marked Complete with the last one. On failure the
// returned error wraps ErrSaveFailed and the view carries the message.
func (s *Service) Submit(ctx context.Context, id string) (*View, error) {
	f, err := s.flow(ctx, id)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	st := f.state
	s.advance(st)

	if st.Screen() != ScreenInterview {
		f.mu.Unlock()
		return nil, ErrWrongScreen
	}
	if st.Saving {
		f.mu.Unlock()
		return nil, ErrSaveInFlight
	}
	if st.Transitioning() {
		f.mu.Unlock()
		return nil, ErrTransitioning
	}
	text := st.Transcript.Full()
	if text == "" {
		f.mu.Unlock()
		return nil, ErrEmptyAnswer
	}
	if !st.TextOnly() && st.Transcript.Transcribing() {
		f.mu.Unlock()
		return nil, ErrStillListening
	}

	a := answer{
		index:        st.QuestionIndex,
		question:     s.settings.Questions[st.QuestionIndex],
		text:         text,
		sessionID:    st.SessionRecordID,
		answersSaved: st.AnswersSaved,
		last:         st.QuestionIndex == len(s.settings.Questions)-1,
		name:         st.Name,
		email:        st.Email,
		userAgent:    st.UserAgent,
	}

	st.Saving = true
	st.SaveError = ""
	st.Listening = false
	st.Level = 0
	f.mu.Unlock()

	sessionID, responseSaved, saveErr := s.saveAnswer(ctx, a)

	f.mu.Lock()
	st.Saving = false
	if sessionID != "" {
		st.SessionRecordID = sessionID
	}
	if responseSaved {
		index := a.index
		st.AnswersSaved = a.index + 1
		st.SavedAt = &index
	}

	if saveErr != nil {
		s.metrics.SaveFailed()
		s.logger.Error("Failed to save answer",
			zap.String("flow_id", st.ID),
			zap.Int("question", a.index+1),
			zap.Error(saveErr))

		st.SaveError = saveErr.Error()
		st.Listening = !st.TextOnly() && st.Permission == PermissionGranted
		view, snap := buildView(st, s.settings.Questions), f.snapshot()
		f.mu.Unlock()

		s.persist(ctx, f, snap)
		return view, fmt.Errorf("%w: %v", ErrSaveFailed, saveErr)
	}

	if a.last {
		st.Complete = true
		st.Listening = false
		s.metrics.InterviewCompleted()
		s.logger.Info("Interview complete",
			zap.String("flow_id", st.ID),
			zap.String("session_record_id", st.SessionRecordID))
	} else {
		ends := s.now().Add(s.settings.TransitionDelay)
		st.TransitionEnds = &ends
		s.advance(st)
	}

	view, snap := buildView(st, s.settings.Questions), f.snapshot()
	f.mu.Unlock()

	s.persist(ctx, f, snap)
	return view, nil
}

// saveAnswer writes the records of one answer. It reports the session id
// and whether the response was written even when a later step fails.
func (s *Service) saveAnswer(ctx context.Context, a answer) (string, bool, error) {
	tables := s.settings.Tables
	now := s.now().UTC()
	sessionID := a.sessionID

	if sessionID == "" {
		id, err := s.recorder.Create(ctx, tables.Sessions, models.Fields{
			models.FieldSessionID:       fmt.Sprintf("session-%d", now.UnixMilli()),
			models.FieldIntervieweeName: a.name,
			models.FieldEmail:           a.email,
			models.FieldStartedAt:       now.Format(timestampLayout),
			models.FieldStatus:          string(models.StatusInProgress),
			models.FieldUserAgent:       a.userAgent,
		})
		if err != nil {
			return "", false, err
		}
		sessionID = id
	}

	responseSaved := false
	if a.answersSaved <= a.index {
		_, err := s.recorder.Create(ctx, tables.Responses, models.Fields{
			models.FieldResponseID:     fmt.Sprintf("resp-%d", now.UnixMilli()),
			models.FieldSession:        []string{sessionID},
			models.FieldQuestionNumber: a.index + 1,
			models.FieldQuestionText:   a.question,
			models.FieldRawTranscript:  a.text,
			models.FieldRecordedAt:     now.Format(timestampLayout),
		})
		if err != nil {
			return sessionID, false, err
		}
		responseSaved = true
		s.metrics.AnswerSaved()
	}

	if a.last {
		_, err := s.recorder.Update(ctx, tables.Sessions, sessionID, models.Fields{
			models.FieldStatus: string(models.StatusComplete),
		})
		if err != nil {
			return sessionID, responseSaved, err
		}
	}

	return sessionID, responseSaved, nil
}

// SendCopy asks for the conversation to be mailed. It needs the brief to
// be ready and at least one recipient; after an error it may be retried.
func (s *Service) SendCopy(ctx context.Context, id string, sendToSelf bool, otherEmails string) (*View, error) {
	f, err := s.flow(ctx, id)
	if err != nil {
		return nil, err
	}

	others := strings.TrimSpace(otherEmails)

	f.mu.Lock()
	st := f.state
	s.advance(st)

	switch {
	case st.Screen() != ScreenRecap:
		f.mu.Unlock()
		return nil, ErrWrongScreen
	case st.SendStatus == SendSending:
		f.mu.Unlock()
		return nil, ErrSendInFlight
	case st.SendStatus == SendSent:
		f.mu.Unlock()
		return nil, ErrAlreadySent
	case !sendToSelf && others == "":
		f.mu.Unlock()
		return nil, ErrNoRecipients
	}

	previous := st.SendStatus
	st.SendStatus = SendSending
	st.SendError = ""
	sessionID := st.SessionRecordID
	f.mu.Unlock()

	ready, err := s.briefs.BriefReady(ctx, sessionID)
	if err == nil && !ready {
		err = ErrBriefNotReady
	}
	if err != nil {
		f.mu.Lock()
		st.SendStatus = previous
		f.mu.Unlock()
		if errors.Is(err, ErrBriefNotReady) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to check interview brief: %w", err)
	}

	var otherValue interface{}
	if others != "" {
		otherValue = others
	}
	_, sendErr := s.recorder.Update(ctx, s.settings.Tables.Sessions, sessionID, models.Fields{
		models.FieldSendEmails:  sendToSelf,
		models.FieldOtherEmails: otherValue,
	})

	f.mu.Lock()
	if sendErr != nil {
		s.logger.Error("Failed to request copy",
			zap.String("flow_id", st.ID),
			zap.Error(sendErr))
		st.SendStatus = SendError
		st.SendError = sendErr.Error()
		view, snap := buildView(st, s.settings.Questions), f.snapshot()
		f.mu.Unlock()

		s.persist(ctx, f, snap)
		return view, fmt.Errorf("%w: %v", ErrSendFailed, sendErr)
	}

	sentAt := s.now()
	st.SendStatus = SendSent
	st.SentAt = &sentAt
	s.advance(st)
	view, snap := buildView(st, s.settings.Questions), f.snapshot()
	f.mu.Unlock()

	s.persist(ctx, f, snap)

	s.logger.Info("Copy requested",
		zap.String("flow_id", st.ID),
		zap.Bool("send_to_self", sendToSelf),
		zap.Bool("others", others != ""))

	return view, nil
}

// SessionRecordID returns the session record of a flow, empty until the
// first answer is saved.
func (s *Service) SessionRecordID(ctx context.Context, id string) (string, error) {
	f, err := s.flow(ctx, id)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.SessionRecordID, nil
}

func (s *Service) mutate(ctx context.Context, id string, persist bool, fn func(st *State) error) (*View, error) {
	f, err := s.flow(ctx, id)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	changed := s.advance(f.state)
	if fn != nil {
		if err := fn(f.state); err != nil {
			var snap snapshot
			if changed {
				snap = f.snapshot()
			}
			f.mu.Unlock()

			if changed {
				s.persist(ctx, f, snap)
			}
			return nil, err
		}
	}

	view := buildView(f.state, s.settings.Questions)
	if !persist && !changed {
		f.mu.Unlock()
		return view, nil
	}
	snap := f.snapshot()
	f.mu.Unlock()

	s.persist(ctx, f, snap)
	return view, nil
}

// advance fires elapsed timers: the move to the next question and the
// thank-you screen after a copy was sent.
func (s *Service) advance(st *State) bool {
	now := s.now()
	changed := false

	if st.TransitionEnds != nil && !now.Before(*st.TransitionEnds) {
		st.TransitionEnds = nil
		st.Transcript.Reset()
		st.SavedAt = nil
		st.QuestionIndex++
		st.Override = ""
		st.Listening = st.Permission == PermissionGranted
		changed = true
	}

	if st.SendStatus == SendSent && !st.ThankYou && st.SentAt != nil &&
		!now.Before(st.SentAt.Add(s.settings.ThankYouDelay)) {
		st.ThankYou = true
		changed = true
	}

	return changed
}

// flow returns the live flow, restoring it from the store if needed. A
// cached flow that has not been saved within FlowTTL is dropped and looked
// up again, so the store decides whether it has expired.
func (s *Service) flow(ctx context.Context, id string) (*flow, error) {
	s.mu.Lock()
	f, ok := s.flows[id]
	if ok && s.idle(f, s.now()) {
		delete(s.flows, id)
		ok = false
	}
	s.mu.Unlock()
	if ok {
		return f, nil
	}

	state, err := s.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrFlowNotFound) {
			return nil, ErrFlowNotFound
		}
		return nil, fmt.Errorf("failed to restore interview: %w", err)
	}
	state.restored()

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.flows[id]; ok {
		return existing, nil
	}
	f = &flow{state: state}
	f.lastSaved.Store(s.now().UnixNano())
	s.flows[id] = f

	s.logger.Debug("Interview restored", zap.String("flow_id", id))
	return f, nil
}

func (s *Service) idle(f *flow, now time.Time) bool {
	if s.settings.FlowTTL <= 0 {
		return false
	}
	return now.Sub(time.Unix(0, f.lastSaved.Load())) > s.settings.FlowTTL
}

// sweep drops idle flows from memory. Callers hold s.mu.
func (s *Service) sweep(now time.Time) {
	if s.settings.FlowTTL <= 0 || now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = now

	dropped := 0
	for id, f := range s.flows {
		if s.idle(f, now) {
			delete(s.flows, id)
			dropped++
		}
	}
	if dropped > 0 {
		s.logger.Debug("Dropped idle interviews", zap.Int("count", dropped))
	}
}

// persist writes a snapshot outside the flow lock. Snapshots older than the
// last one written are skipped so a slow save cannot overwrite newer state.
func (s *Service) persist(ctx context.Context, f *flow, snap snapshot) {
	f.saveMu.Lock()
	defer f.saveMu.Unlock()

	if snap.version <= f.saved {
		return
	}
	if err := s.store.Save(ctx, &snap.state); err != nil {
		s.logger.Warn("Failed to persist interview",
			zap.String("flow_id", snap.state.ID),
			zap.Error(err))
		return
	}
	f.saved = snap.version
	f.lastSaved.Store(s.now().UnixNano())
}
