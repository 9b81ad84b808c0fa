package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"interview-concierge/internal/admin"
	"interview-concierge/internal/auth"
	"interview-concierge/internal/interview"
	"interview-concierge/internal/middleware"
	"interview-concierge/internal/models"
	"interview-concierge/internal/proxy"
	"interview-concierge/internal/recap"
	"interview-concierge/internal/sqlstore"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testAPI struct {
	router http.Handler
	proxy  *proxy.Service
	gate   *auth.Service
}

type apiOptions struct {
	tables models.Tables
	gate   auth.Config
}

func newTestAPI(t *testing.T, opts apiOptions) *testAPI {
	t.Helper()
	if opts.tables == (models.Tables{}) {
		opts.tables = models.DefaultTables()
	}

	store, err := sqlstore.Open(sqlstore.Config{
		Driver:   sqlstore.DriverSQLite,
		DSN:      filepath.Join(t.TempDir(), "api.db"),
		Tables:   []string{models.SessionsTable, models.ResponsesTable},
		PageSize: 2,
	}, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zap.NewNop()
	px := proxy.NewService(store, 0, nil, logger)
	recaps := recap.NewService(px, models.DefaultTables(), logger)
	interviews := interview.NewService(interview.Settings{
		Questions:       []string{"What is your role?", "What slows you down?"},
		TransitionDelay: 0,
		ThankYouDelay:   time.Hour,
		Tables:          opts.tables,
	}, px, recaps, interview.NewMemoryStore(time.Hour), nil, logger)
	adminSvc := admin.NewService(px, models.DefaultTables(), 24*time.Hour, time.UTC, logger)
	gate := auth.NewService(opts.gate, logger)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.CORS("*"))
	poller := recap.NewPoller(recaps, 10*time.Millisecond, logger)
	NewHandler(px, interviews, recaps, poller, adminSvc, gate, nil, logger).
		RegisterRoutes(r, middleware.AuthMiddleware(gate, logger))

	return &testAPI{router: r, proxy: px, gate: gate}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestHealthAndQuestions(t *testing.T) {
	api := newTestAPI(t, apiOptions{})

	w := api.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, "/api/questions", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Questions []string `json:"questions"`
		Total     int      `json:"total"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, "What is your role?", resp.Questions[0])
}

func TestProxyEndpoint(t *testing.T) {
	api := newTestAPI(t, apiOptions{})

	w := api.do(t, http.MethodGet, "/api/airtable", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = api.do(t, http.MethodPost, "/api/airtable", proxy.Request{Action: "delete", Table: models.SessionsTable}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Unknown action: delete"}`, w.Body.String())

	w = api.do(t, http.MethodPost, "/api/airtable", proxy.Request{Action: proxy.ActionList}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/airtable", proxy.Request{Action: proxy.ActionUpdate, Table: models.SessionsTable}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/airtable", proxy.Request{
		Action: proxy.ActionCreate,
		Table:  models.SessionsTable,
		Fields: models.Fields{models.FieldStatus: "In Progress"},
	}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var created proxy.CreateResponse
	decode(t, w, &created)
	require.NotEmpty(t, created.ID)

	for i := 0; i < 2; i++ {
		api.do(t, http.MethodPost, "/api/airtable", proxy.Request{Action: proxy.ActionCreate, Table: models.SessionsTable, Fields: models.Fields{}}, "")
	}

	w = api.do(t, http.MethodPost, "/api/airtable", proxy.Request{
		Action:   proxy.ActionUpdate,
		Table:    models.SessionsTable,
		RecordID: created.ID,
		Fields:   models.Fields{models.FieldStatus: "Complete"},
	}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPost, "/api/airtable", proxy.Request{Action: proxy.ActionList, Table: models.SessionsTable}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var listed proxy.ListResponse
	decode(t, w, &listed)
	require.Len(t, listed.Records, 3)
	assert.Equal(t, created.ID, listed.Records[0].ID)
	assert.Equal(t, "Complete", listed.Records[0].Fields.String(models.FieldStatus))

	w = api.do(t, http.MethodPost, "/api/airtable", proxy.Request{
		Action:   proxy.ActionUpdate,
		Table:    models.SessionsTable,
		RecordID: "recMissing",
		Fields:   models.Fields{},
	}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, `{"error":"NOT_FOUND"}`, w.Body.String())
}

func TestInterviewFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	ctx := context.Background()

	w := api.do(t, http.MethodPost, "/api/interviews", interview.StartRequest{Name: "Ada"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/interviews", interview.StartRequest{
		Name: "Ada", Email: "ada@example.com", Mode: interview.ModeType,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	var view interview.View
	decode(t, w, &view)
	assert.Equal(t, interview.ScreenInterview, view.Screen)
	assert.True(t, view.TextOnly)
	id := view.ID

	w = api.do(t, http.MethodPost, "/api/interviews/"+id+"/submit", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/interviews/"+id+"/recap", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	for i, answer := range []string{"Ops lead", "Spreadsheets"} {
		w = api.do(t, http.MethodPut, "/api/interviews/"+id+"/text", gin.H{"text": answer}, "")
		require.Equal(t, http.StatusOK, w.Code)
		w = api.do(t, http.MethodPost, "/api/interviews/"+id+"/submit", nil, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		decode(t, w, &view)
		if i == 0 {
			assert.Equal(t, 2, view.QuestionNumber)
		}
	}
	assert.Equal(t, interview.ScreenRecap, view.Screen)

	w = api.do(t, http.MethodGet, "/api/interviews/"+id+"/recap", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var snapshot recap.Snapshot
	decode(t, w, &snapshot)
	assert.True(t, snapshot.Found)
	assert.False(t, snapshot.Ready)
	require.Len(t, snapshot.Answers, 2)
	assert.Equal(t, "What is your role?", snapshot.Answers[0].QuestionText)

	w = api.do(t, http.MethodPost, "/api/interviews/"+id+"/send", gin.H{"sendToSelf": true}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	_, err := api.proxy.Update(ctx, models.SessionsTable, view.SessionRecordID, models.Fields{
		models.FieldInterviewBrief: "Ops lead fighting spreadsheets",
	})
	require.NoError(t, err)

	for _, a := range snapshot.Answers {
		_, err := api.proxy.Update(ctx, models.ResponsesTable, a.RecordID, models.Fields{
			models.FieldCleanedTranscript: "cleaned " + a.QuestionText,
		})
		require.NoError(t, err)
	}

	w = api.do(t, http.MethodGet, "/api/interviews/"+id+"/recap?wait=true", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &snapshot)
	assert.True(t, snapshot.Ready)
	assert.Equal(t, "Ops lead fighting spreadsheets", snapshot.Brief.Value)

	w = api.do(t, http.MethodPost, "/api/interviews/"+id+"/send", gin.H{"sendToSelf": false, "otherEmails": " "}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/interviews/"+id+"/send", gin.H{"sendToSelf": true, "otherEmails": "bob@example.com"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &view)
	assert.Equal(t, interview.SendSent, view.SendStatus)

	w = api.do(t, http.MethodPost, "/api/interviews/"+id+"/send", gin.H{"sendToSelf": true}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodGet, "/api/admin/sessions", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var overview struct {
		Sessions []admin.Session `json:"sessions"`
	}
	decode(t, w, &overview)
	require.Len(t, overview.Sessions, 1)
	assert.Equal(t, "Complete", overview.Sessions[0].Badge)
	assert.Len(t, overview.Sessions[0].Responses, 2)

	w = api.do(t, http.MethodPost, "/api/admin/sessions/"+view.SessionRecordID+"/abandon", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodPost, "/api/admin/sessions/recMissing/abandon", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodGet, "/api/interviews/unknown", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSpeechAndPermissionRoutes(t *testing.T) {
	api := newTestAPI(t, apiOptions{})

	w := api.do(t, http.MethodPost, "/api/interviews", interview.StartRequest{Name: "Ada", Email: "ada@example.com"}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	var view interview.View
	decode(t, w, &view)
	assert.Equal(t, interview.ScreenChecking, view.Screen)
	id := view.ID

	w = api.do(t, http.MethodPost, "/api/interviews/"+id+"/permission", gin.H{"granted": true}, "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &view)
	assert.True(t, view.Listening)

	w = api.do(t, http.MethodPost, "/api/interviews/"+id+"/permission", gin.H{"granted": true}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodPost, "/api/interviews/"+id+"/speech", gin.H{
		"resultIndex": 0,
		"results":     []gin.H{{"transcript": "I run", "isFinal": false}},
	}, "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &view)
	assert.Equal(t, "I run", view.InterimTranscript)
	assert.Equal(t, interview.LabelListening, view.SubmitLabel)

	w = api.do(t, http.MethodPost, "/api/interviews/"+id+"/submit", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodPost, "/api/interviews/"+id+"/audio-level", gin.H{"frequencyData": []int{255, 255, 255}}, "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &view)
	assert.Equal(t, 1.0, view.AudioLevel)

	w = api.do(t, http.MethodPut, "/api/interviews/"+id+"/text", gin.H{"text": "typed"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodPost, "/api/interviews/"+id+"/toggle-mode", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &view)
	assert.True(t, view.TextOnly)
}

func TestSubmitFailureReturnsInterview(t *testing.T) {
	api := newTestAPI(t, apiOptions{tables: models.Tables{Sessions: models.SessionsTable, Responses: "Missing"}})

	w := api.do(t, http.MethodPost, "/api/interviews", interview.StartRequest{
		Name: "Ada", Email: "ada@example.com", Mode: interview.ModeType,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	var view interview.View
	decode(t, w, &view)

	api.do(t, http.MethodPut, "/api/interviews/"+view.ID+"/text", gin.H{"text": "Ops lead"}, "")
	w = api.do(t, http.MethodPost, "/api/interviews/"+view.ID+"/submit", nil, "")
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp struct {
		Error     string         `json:"error"`
		Interview interview.View `json:"interview"`
	}
	decode(t, w, &resp)
	assert.Contains(t, resp.Error, "failed to save answer")
	assert.Equal(t, 1, resp.Interview.QuestionNumber)
	assert.NotEmpty(t, resp.Interview.SaveError)
	assert.NotEmpty(t, resp.Interview.SessionRecordID)
	assert.True(t, resp.Interview.CanSubmit)
}

func TestPasscodeGate(t *testing.T) {
	api := newTestAPI(t, apiOptions{gate: auth.Config{Passcode: "pc", JWTSecret: "secret", TokenTTL: time.Hour}})

	w := api.do(t, http.MethodGet, "/api/questions", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPost, "/api/auth/passcode", gin.H{"passcode": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Invalid passcode"}`, w.Body.String())

	w = api.do(t, http.MethodPost, "/api/auth/passcode", gin.H{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/auth/passcode", gin.H{"passcode": "pc"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	decode(t, w, &resp)
	require.NotEmpty(t, resp.Token)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	w = api.do(t, http.MethodGet, "/api/questions", nil, resp.Token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPasscodeExchangeWithOpenGate(t *testing.T) {
	api := newTestAPI(t, apiOptions{})

	w := api.do(t, http.MethodPost, "/api/auth/passcode", gin.H{"passcode": "pc"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
