package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"interview-concierge/internal/capture"
	"interview-concierge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testQuestions = []string{"First?", "Second?", "Third?"}

type call struct {
	op     string
	table  string
	id     string
	fields models.Fields
}

// fakeRecorder records calls and fails the calls listed in failOn (1-based)
type fakeRecorder struct {
	mu     sync.Mutex
	calls  []call
	failOn map[int]error
	block  chan struct{}
}

func (r *fakeRecorder) next(c call) (int, error) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	n := len(r.calls)
	if err, ok := r.failOn[n]; ok {
		return n, err
	}
	return n, nil
}

func (r *fakeRecorder) Create(ctx context.Context, table string, fields models.Fields) (string, error) {
	n, err := r.next(call{op: "create", table: table, fields: fields})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("rec%d", n), nil
}

func (r *fakeRecorder) Update(ctx context.Context, table, recordID string, fields models.Fields) (*models.Record, error) {
	if _, err := r.next(call{op: "update", table: table, id: recordID, fields: fields}); err != nil {
		return nil, err
	}
	return &models.Record{ID: recordID, Fields: fields}, nil
}

func (r *fakeRecorder) ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.op+" "+c.table)
	}
	return out
}

type fakeBriefs struct {
	ready bool
	err   error
}

func (b *fakeBriefs) BriefReady(ctx context.Context, sessionRecordID string) (bool, error) {
	return b.ready, b.err
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	svc      *Service
	recorder *fakeRecorder
	briefs   *fakeBriefs
	clock    *testClock
	store    *MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		recorder: &fakeRecorder{failOn: map[int]error{}},
		briefs:   &fakeBriefs{},
		clock:    &testClock{now: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)},
		store:    NewMemoryStore(time.Hour),
	}
	h.svc = h.newService()
	return h
}

func (h *harness) newService() *Service {
	svc := NewService(Settings{
		Questions:       testQuestions,
		TransitionDelay: 250 * time.Millisecond,
		ThankYouDelay:   2 * time.Second,
		Tables:          models.DefaultTables(),
	}, h.recorder, h.briefs, h.store, nil, zap.NewNop())
	svc.now = h.clock.Now
	return svc
}

func (h *harness) startSpeaking(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	v, err := h.svc.Start(ctx, StartRequest{Name: " Ada ", Email: "ada@example.com"})
	require.NoError(t, err)
	_, err = h.svc.ReportPermission(ctx, v.ID, true, "", "")
	require.NoError(t, err)
	return v.ID
}

func (h *harness) speak(t *testing.T, id, text string) {
	t.Helper()
	_, err := h.svc.SpeechResult(context.Background(), id, capture.ResultEvent{
		Results: []capture.Result{{Transcript: text, IsFinal: true}},
	})
	require.NoError(t, err)
}

func TestStartValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Start(ctx, StartRequest{Name: "  ", Email: "a@b.co"})
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = h.svc.Start(ctx, StartRequest{Name: "Ada", Email: "ada-at-example"})
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = h.svc.Start(ctx, StartRequest{Name: "Ada", Email: "ada@example.com", Mode: "sing"})
	assert.ErrorIs(t, err, ErrInvalidMode)

	v, err := h.svc.Start(ctx, StartRequest{Name: " Ada ", Email: " ada@example.com ", Mode: ModeType})
	require.NoError(t, err)
	assert.Equal(t, "Ada", v.Name)
	assert.Equal(t, "ada@example.com", v.Email)
	assert.Equal(t, ScreenInterview, v.Screen)
	assert.True(t, v.TextOnly)
	assert.Equal(t, HintTyping, v.Hint)
	assert.False(t, v.CanSwitchToSpeak)

	v, err = h.svc.Start(ctx, StartRequest{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, ScreenChecking, v.Screen)
}

func TestPermissionBlockedThenTextOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v, err := h.svc.Start(ctx, StartRequest{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	v, err = h.svc.ReportPermission(ctx, v.ID, false, "NotAllowedError", "Permission denied")
	require.NoError(t, err)
	assert.Equal(t, ScreenBlocked, v.Screen)
	assert.Equal(t, "NotAllowedError: Permission denied", v.PermissionError)

	_, err = h.svc.ReportPermission(ctx, v.ID, true, "", "")
	assert.ErrorIs(t, err, ErrPermissionResolved)

	v, err = h.svc.ContinueTextOnly(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, ScreenInterview, v.Screen)
	assert.True(t, v.TextOnly)
	assert.False(t, v.Listening)
}

func TestSpeechCaptureAndSubmitGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.startSpeaking(t)

	v, err := h.svc.View(ctx, id)
	require.NoError(t, err)
	assert.True(t, v.Listening)
	assert.Equal(t, HintListening, v.Hint)
	assert.False(t, v.CanSubmit)

	_, err = h.svc.Submit(ctx, id)
	assert.ErrorIs(t, err, ErrEmptyAnswer)

	v, err = h.svc.SpeechResult(ctx, id, capture.ResultEvent{Results: []capture.Result{
		{Transcript: "we lose", IsFinal: true},
		{Transcript: "track of"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "we lose ", v.Transcript)
	assert.Equal(t, "track of", v.InterimTranscript)
	assert.Equal(t, LabelListening, v.SubmitLabel)
	assert.False(t, v.CanSubmit)

	_, err = h.svc.Submit(ctx, id)
	assert.ErrorIs(t, err, ErrStillListening)

	_, err = h.svc.SetText(ctx, id, "typed")
	assert.ErrorIs(t, err, ErrNotTextMode)

	v, err = h.svc.SpeechResult(ctx, id, capture.ResultEvent{ResultIndex: 1, Results: []capture.Result{
		{Transcript: "we lose", IsFinal: true},
		{Transcript: "track of orders", IsFinal: true},
	}})
	require.NoError(t, err)
	assert.True(t, v.CanSubmit)
	assert.Equal(t, LabelNext, v.SubmitLabel)

	v, err = h.svc.AudioLevel(ctx, id, []int{255, 255, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v.AudioLevel, 1e-9)
	assert.Equal(t, []bool{true, true, true, true, true, false, false}, v.Bars)
}

func TestSubmitCreatesSessionOnceAndCompletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.startSpeaking(t)

	for i := range testQuestions {
		h.speak(t, id, fmt.Sprintf("answer %d", i+1))

		v, err := h.svc.Submit(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "rec1", v.SessionRecordID)

		if i < len(testQuestions)-1 {
			assert.True(t, v.Transitioning)
			assert.True(t, v.JustSaved)
			assert.Equal(t, i+1, v.QuestionNumber)

			_, err = h.svc.Submit(ctx, id)
			assert.ErrorIs(t, err, ErrTransitioning)

			h.clock.Advance(250 * time.Millisecond)
			v, err = h.svc.View(ctx, id)
			require.NoError(t, err)
			assert.False(t, v.Transitioning)
			assert.False(t, v.JustSaved)
			assert.Equal(t, i+2, v.QuestionNumber)
			assert.Equal(t, "", v.Transcript)
			assert.True(t, v.Listening)
		} else {
			assert.Equal(t, ScreenRecap, v.Screen)
			assert.False(t, v.Listening)
		}
	}

	assert.Equal(t, []string{
		"create " + models.SessionsTable,
		"create " + models.ResponsesTable,
		"create " + models.ResponsesTable,
		"create " + models.ResponsesTable,
		"update " + models.SessionsTable,
	}, h.recorder.ops())

	session := h.recorder.calls[0].fields
	assert.Equal(t, "Ada", session[models.FieldIntervieweeName])
	assert.Equal(t, string(models.StatusInProgress), session[models.FieldStatus])
	assert.Equal(t, "2026-10-19T09:00:00.000Z", session[models.FieldStartedAt])
	assert.Regexp(t, `^session-\d+$`, session[models.FieldSessionID])

	response := h.recorder.calls[2].fields
	assert.Equal(t, []string{"rec1"}, response[models.FieldSession])
	assert.Equal(t, 2, response[models.FieldQuestionNumber])
	assert.Equal(t, "Second?", response[models.FieldQuestionText])
	assert.Equal(t, "answer 2", response[models.FieldRawTranscript])

	last := h.recorder.calls[4]
	assert.Equal(t, "rec1", last.id)
	assert.Equal(t, string(models.StatusComplete), last.fields[models.FieldStatus])
}

func TestSubmitRejectsWhileSaving(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.startSpeaking(t)
	h.speak(t, id, "first answer")

	h.recorder.block = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := h.svc.Submit(ctx, id)
		done <- err
	}()

	require.Eventually(t, func() bool {
		v, err := h.svc.View(ctx, id)
		return err == nil && v.Saving
	}, time.Second, time.Millisecond)

	v, err := h.svc.View(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, LabelSaving, v.SubmitLabel)
	assert.False(t, v.CanSubmit)
	assert.False(t, v.Listening)

	_, err = h.svc.Submit(ctx, id)
	assert.ErrorIs(t, err, ErrSaveInFlight)

	close(h.recorder.block)
	require.NoError(t, <-done)
}

func TestSubmitFailureKeepsSessionAndAllowsRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.startSpeaking(t)
	h.speak(t, id, "first answer")

	upstream := &models.UpstreamError{StatusCode: 422, Body: []byte(`{"error":"INVALID"}`)}
	h.recorder.failOn[2] = upstream

	v, err := h.svc.Submit(ctx, id)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSaveFailed)
	require.NotNil(t, v)
	assert.Equal(t, upstream.Error(), v.SaveError)
	assert.Equal(t, "rec1", v.SessionRecordID)
	assert.True(t, v.Listening)
	assert.False(t, v.Saving)
	assert.Equal(t, "first answer ", v.Transcript)

	v, err = h.svc.Submit(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, v.SaveError)

	assert.Equal(t, []string{
		"create " + models.SessionsTable,
		"create " + models.ResponsesTable,
		"create " + models.ResponsesTable,
	}, h.recorder.ops())
}

func TestCompletionFailureDoesNotDuplicateResponse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v, err := h.svc.Start(ctx, StartRequest{Name: "Ada", Email: "ada@example.com", Mode: ModeType})
	require.NoError(t, err)
	id := v.ID

	for i := 0; i < len(testQuestions)-1; i++ {
		_, err = h.svc.SetText(ctx, id, "typed")
		require.NoError(t, err)
		_, err = h.svc.Submit(ctx, id)
		require.NoError(t, err)
		h.clock.Advance(time.Second)
	}

	v, err = h.svc.SetText(ctx, id, "last one")
	require.NoError(t, err)
	assert.Equal(t, LabelFinish, v.SubmitLabel)

	// session + 3 responses + status update
	h.recorder.failOn[5] = errors.New("connection reset")
	v, err = h.svc.Submit(ctx, id)
	assert.ErrorIs(t, err, ErrSaveFailed)
	assert.Equal(t, ScreenInterview, v.Screen)
	assert.False(t, v.Listening)

	v, err = h.svc.Submit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ScreenRecap, v.Screen)

	assert.Equal(t, []string{
		"create " + models.SessionsTable,
		"create " + models.ResponsesTable,
		"create " + models.ResponsesTable,
		"create " + models.ResponsesTable,
		"update " + models.SessionsTable,
		"update " + models.SessionsTable,
	}, h.recorder.ops())
}

func TestToggleMode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.startSpeaking(t)
	h.speak(t, id, "half an answer")

	v, err := h.svc.ToggleMode(ctx, id)
	require.NoError(t, err)
	assert.True(t, v.TextOnly)
	assert.False(t, v.Listening)
	assert.Equal(t, "", v.Transcript)
	assert.True(t, v.CanSwitchToSpeak)

	_, err = h.svc.SetText(ctx, id, "typed instead")
	require.NoError(t, err)

	v, err = h.svc.ToggleMode(ctx, id)
	require.NoError(t, err)
	assert.False(t, v.TextOnly)
	assert.True(t, v.Listening)
	assert.Equal(t, "", v.Transcript)

	// override is per question
	_, err = h.svc.ToggleMode(ctx, id)
	require.NoError(t, err)
	_, err = h.svc.SetText(ctx, id, "typed")
	require.NoError(t, err)
	_, err = h.svc.Submit(ctx, id)
	require.NoError(t, err)
	h.clock.Advance(250 * time.Millisecond)

	v, err = h.svc.View(ctx, id)
	require.NoError(t, err)
	assert.False(t, v.TextOnly)
	assert.True(t, v.Listening)
}

func TestToggleModeNeedsPermission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v, err := h.svc.Start(ctx, StartRequest{Name: "Ada", Email: "ada@example.com", Mode: ModeType})
	require.NoError(t, err)
	_, err = h.svc.SetText(ctx, v.ID, "keep me")
	require.NoError(t, err)

	_, err = h.svc.ToggleMode(ctx, v.ID)
	assert.ErrorIs(t, err, ErrCannotSpeak)

	v, err = h.svc.View(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep me", v.Transcript)
}

func completeInterview(t *testing.T, h *harness) string {
	t.Helper()
	ctx := context.Background()
	v, err := h.svc.Start(ctx, StartRequest{Name: "Ada", Email: "ada@example.com", Mode: ModeType})
	require.NoError(t, err)
	for range testQuestions {
		_, err = h.svc.SetText(ctx, v.ID, "answer")
		require.NoError(t, err)
		_, err = h.svc.Submit(ctx, v.ID)
		require.NoError(t, err)
		h.clock.Advance(time.Second)
	}
	return v.ID
}

func TestSendCopy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := completeInterview(t, h)

	_, err := h.svc.SendCopy(ctx, id, true, "")
	assert.ErrorIs(t, err, ErrBriefNotReady)

	h.briefs.ready = true
	_, err = h.svc.SendCopy(ctx, id, false, "   ")
	assert.ErrorIs(t, err, ErrNoRecipients)

	calls := len(h.recorder.calls)
	h.recorder.failOn[calls+1] = errors.New("timeout")
	v, err := h.svc.SendCopy(ctx, id, true, "")
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, SendError, v.SendStatus)
	assert.Equal(t, "timeout", v.SendError)

	v, err = h.svc.SendCopy(ctx, id, false, " bob@example.com ")
	require.NoError(t, err)
	assert.Equal(t, SendSent, v.SendStatus)
	assert.Equal(t, ScreenRecap, v.Screen)

	update := h.recorder.calls[len(h.recorder.calls)-1]
	assert.Equal(t, false, update.fields[models.FieldSendEmails])
	assert.Equal(t, "bob@example.com", update.fields[models.FieldOtherEmails])

	_, err = h.svc.SendCopy(ctx, id, true, "")
	assert.ErrorIs(t, err, ErrAlreadySent)

	h.clock.Advance(1999 * time.Millisecond)
	v, err = h.svc.View(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ScreenRecap, v.Screen)

	h.clock.Advance(time.Millisecond)
	v, err = h.svc.View(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ScreenThankYou, v.Screen)
}

func TestSendCopyBlankOthersIsNull(t *testing.T) {
	h := newHarness(t)
	h.briefs.ready = true
	id := completeInterview(t, h)

	_, err := h.svc.SendCopy(context.Background(), id, true, "  ")
	require.NoError(t, err)

	update := h.recorder.calls[len(h.recorder.calls)-1]
	assert.Contains(t, update.fields, models.FieldOtherEmails)
	assert.Nil(t, update.fields[models.FieldOtherEmails])
	assert.Equal(t, true, update.fields[models.FieldSendEmails])
}

func TestSendCopyOnlyOnRecap(t *testing.T) {
	h := newHarness(t)
	h.briefs.ready = true
	id := h.startSpeaking(t)

	_, err := h.svc.SendCopy(context.Background(), id, true, "")
	assert.ErrorIs(t, err, ErrWrongScreen)
}

func TestFlowRestoredFromStore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.startSpeaking(t)
	h.speak(t, id, "persisted words")

	restarted := h.newService()
	v, err := restarted.View(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ScreenInterview, v.Screen)
	assert.Equal(t, "persisted words ", v.Transcript)
	assert.True(t, v.Listening)
	assert.False(t, v.Saving)

	_, err = restarted.View(ctx, "missing")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestRestoredStateDropsInFlightFlags(t *testing.T) {
	st := &State{Saving: true, SendStatus: SendSending}
	st.restored()
	assert.False(t, st.Saving)
	assert.Equal(t, SendIdle, st.SendStatus)
}

func TestMemoryStoreExpires(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &State{ID: "flow-1", Name: "Ada"}))

	got, err := store.Load(ctx, "flow-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)

	now = now.Add(2 * time.Minute)
	_, err = store.Load(ctx, "flow-1")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestIdleFlowsExpireThroughService(t *testing.T) {
	h := newHarness(t)
	h.store = NewMemoryStore(time.Minute)
	h.store.now = h.clock.Now
	svc := NewService(Settings{
		Questions: testQuestions,
		Tables:    models.DefaultTables(),
		FlowTTL:   time.Minute,
	}, h.recorder, h.briefs, h.store, nil, zap.NewNop())
	svc.now = h.clock.Now
	ctx := context.Background()

	var first string
	for i := 0; i < 1001; i++ {
		v, err := svc.Start(ctx, StartRequest{Name: "Ada", Email: "ada@example.com", Mode: ModeType})
		require.NoError(t, err)
		if i == 0 {
			first = v.ID
		}
	}

	h.clock.Advance(48 * time.Hour)

	_, err := svc.View(ctx, first)
	assert.ErrorIs(t, err, ErrFlowNotFound)

	_, err = svc.Start(ctx, StartRequest{Name: "Grace", Email: "grace@example.com"})
	require.NoError(t, err)

	svc.mu.Lock()
	live := len(svc.flows)
	svc.mu.Unlock()
	assert.Equal(t, 1, live)
	assert.Equal(t, 1, h.store.size())
}

func TestActiveFlowOutlivesTTL(t *testing.T) {
	h := newHarness(t)
	h.store = NewMemoryStore(time.Minute)
	h.store.now = h.clock.Now
	svc := NewService(Settings{
		Questions: testQuestions,
		Tables:    models.DefaultTables(),
		FlowTTL:   time.Minute,
	}, h.recorder, h.briefs, h.store, nil, zap.NewNop())
	svc.now = h.clock.Now
	ctx := context.Background()

	v, err := svc.Start(ctx, StartRequest{Name: "Ada", Email: "ada@example.com", Mode: ModeType})
	require.NoError(t, err)

	h.clock.Advance(45 * time.Second)
	_, err = svc.SetText(ctx, v.ID, "still typing")
	require.NoError(t, err)

	h.clock.Advance(45 * time.Second)
	got, err := svc.View(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "still typing", got.Transcript)

	h.clock.Advance(2 * time.Minute)
	_, err = svc.View(ctx, v.ID)
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

// blockingStore holds every Save until release is closed
type blockingStore struct {
	*MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) Save(ctx context.Context, state *State) error {
	b.entered <- struct{}{}
	<-b.release
	return b.MemoryStore.Save(ctx, state)
}

func TestSaveRunsOutsideFlowLock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.startSpeaking(t)

	store := &blockingStore{
		MemoryStore: h.store,
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	h.svc.store = store

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.SpeechResult(ctx, id, capture.ResultEvent{
			Results: []capture.Result{{Transcript: "slow save", IsFinal: true}},
		})
		done <- err
	}()
	<-store.entered

	v, err := h.svc.SessionRecordID(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, v)

	view, err := h.svc.View(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "slow save ", view.Transcript)

	close(store.release)
	require.NoError(t, <-done)

	saved, err := h.store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "slow save ", saved.Transcript.Accumulated)
}
