package handler

import (
	"context"
	"errors"
	"net/http"

	"interview-concierge/internal/capture"
	"interview-concierge/internal/interview"
	"interview-concierge/internal/recap"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type permissionRequest struct {
	Granted      bool   `json:"granted"`
	ErrorName    string `json:"errorName"`
	ErrorMessage string `json:"errorMessage"`
}

type textRequest struct {
	Text string `json:"text"`
}

type audioLevelRequest struct {
	FrequencyData []int `json:"frequencyData"`
}

type sendRequest struct {
	SendToSelf  bool   `json:"sendToSelf"`
	OtherEmails string `json:"otherEmails"`
}

// StartInterview validates the intro form and opens a flow
func (h *Handler) StartInterview(c *gin.Context) {
	var req interview.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Request.UserAgent()
	}

	view, err := h.interviews.Start(c.Request.Context(), req)
	if err != nil {
		h.interviewError(c, err, view)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// GetInterview returns the current view of a flow
func (h *Handler) GetInterview(c *gin.Context) {
	view, err := h.interviews.View(c.Request.Context(), c.Param("id"))
	h.respond(c, view, err)
}

// ReportPermission records the microphone permission outcome
func (h *Handler) ReportPermission(c *gin.Context) {
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, err := h.interviews.ReportPermission(c.Request.Context(), c.Param("id"), req.Granted, req.ErrorName, req.ErrorMessage)
	h.respond(c, view, err)
}

// ContinueTextOnly leaves the blocked screen for typed answers
func (h *Handler) ContinueTextOnly(c *gin.Context) {
	view, err := h.interviews.ContinueTextOnly(c.Request.Context(), c.Param("id"))
	h.respond(c, view, err)
}

// SpeechResult applies a recognition event to the transcript
func (h *Handler) SpeechResult(c *gin.Context) {
	var ev capture.ResultEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, err := h.interviews.SpeechResult(c.Request.Context(), c.Param("id"), ev)
	h.respond(c, view, err)
}

// SetText replaces the typed answer
func (h *Handler) SetText(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, err := h.interviews.SetText(c.Request.Context(), c.Param("id"), req.Text)
	h.respond(c, view, err)
}

// AudioLevel updates the level meter from analyser samples
func (h *Handler) AudioLevel(c *gin.Context) {
	var req audioLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, err := h.interviews.AudioLevel(c.Request.Context(), c.Param("id"), req.FrequencyData)
	h.respond(c, view, err)
}

// ToggleMode switches between speaking and typing
func (h *Handler) ToggleMode(c *gin.Context) {
	view, err := h.interviews.ToggleMode(c.Request.Context(), c.Param("id"))
	h.respond(c, view, err)
}

// Submit saves the current answer
func (h *Handler) Submit(c *gin.Context) {
	view, err := h.interviews.Submit(c.Request.Context(), c.Param("id"))
	h.respond(c, view, err)
}

// SendCopy asks for the brief to be emailed
func (h *Handler) SendCopy(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, err := h.interviews.SendCopy(c.Request.Context(), c.Param("id"), req.SendToSelf, req.OtherEmails)
	h.respond(c, view, err)
}

// Recap returns the recap snapshot of the flow's session. With ?wait=true
// it polls until the snapshot is ready or the wait times out, and returns
// the latest snapshot either way.
func (h *Handler) Recap(c *gin.Context) {
	sessionRecordID, err := h.interviews.SessionRecordID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.interviewError(c, err, nil)
		return
	}
	if sessionRecordID == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "no answers saved yet"})
		return
	}

	if c.Query("wait") == "true" && h.poller != nil {
		h.waitForRecap(c, sessionRecordID)
		return
	}

	snapshot, err := h.recaps.Load(c.Request.Context(), sessionRecordID)
	if err != nil {
		h.logger.Error("Failed to load recap",
			zap.String("session_record_id", sessionRecordID),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *Handler) waitForRecap(c *gin.Context, sessionRecordID string) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), longPollTimeout)
	defer cancel()

	var latest *recap.Snapshot
	err := h.poller.Watch(ctx, sessionRecordID, true, func(snap *recap.Snapshot) {
		latest = snap
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if latest == nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "recap could not be loaded"})
		return
	}
	c.JSON(http.StatusOK, latest)
}

func (h *Handler) respond(c *gin.Context, view *interview.View, err error) {
	if err != nil {
		h.interviewError(c, err, view)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) interviewError(c *gin.Context, err error, view *interview.View) {
	switch {
	case errors.Is(err, interview.ErrFlowNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	case errors.Is(err, interview.ErrInvalidName),
		errors.Is(err, interview.ErrInvalidEmail),
		errors.Is(err, interview.ErrInvalidMode),
		errors.Is(err, interview.ErrEmptyAnswer),
		errors.Is(err, interview.ErrNoRecipients):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, interview.ErrWrongScreen),
		errors.Is(err, interview.ErrPermissionResolved),
		errors.Is(err, interview.ErrNotTextMode),
		errors.Is(err, interview.ErrCannotSpeak),
		errors.Is(err, interview.ErrSaveInFlight),
		errors.Is(err, interview.ErrTransitioning),
		errors.Is(err, interview.ErrStillListening),
		errors.Is(err, interview.ErrSendInFlight),
		errors.Is(err, interview.ErrAlreadySent),
		errors.Is(err, interview.ErrBriefNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	case errors.Is(err, interview.ErrSaveFailed),
		errors.Is(err, interview.ErrSendFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "interview": view})

	default:
		h.logger.Error("Interview request failed", zap.String("flow_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
