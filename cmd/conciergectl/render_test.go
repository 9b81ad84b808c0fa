package main

import (
	"bytes"
	"strings"
	"testing"

	"interview-concierge/internal/admin"
	"interview-concierge/internal/crypto"
	"interview-concierge/internal/models"
	"interview-concierge/internal/recap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSessions(t *testing.T) {
	setColor(true)

	assert.Equal(t, "No sessions found\n", renderSessions(nil))

	out := renderSessions([]admin.Session{{
		RecordID:         "recS1",
		Name:             "Ada",
		Email:            "ada@example.com",
		Badge:            "Complete",
		StartedAtDisplay: "Oct 19, 2026 at 8:05 AM",
		Brief:            models.AIField{State: models.AIReady, Value: "Spreadsheet sprawl"},
		Responses: []admin.Response{{
			QuestionNumber: 1,
			Summary:        models.AIField{State: models.AIReady, Value: "Runs ops"},
			Sentiment:      models.AIField{State: models.AIGenerating},
		}},
	}})

	assert.Contains(t, out, "recS1")
	assert.Contains(t, out, "Complete  Oct 19, 2026 at 8:05 AM")
	assert.Contains(t, out, "Brief: Spreadsheet sprawl")
	assert.Contains(t, out, "Q1  Runs ops  [generating…]")
}

func TestRenderRecap(t *testing.T) {
	setColor(true)

	out := renderRecap(&recap.Snapshot{SessionRecordID: "recX"})
	assert.Contains(t, out, "session recX not found")

	out = renderRecap(&recap.Snapshot{
		SessionRecordID: "recS1",
		Found:           true,
		Brief:           models.AIField{State: models.AIPending},
		Answers: []recap.Answer{{
			QuestionNumber:    1,
			QuestionText:      "Role?",
			CleanedTranscript: models.AIField{State: models.AIReady, Value: "Ops lead"},
		}},
	})
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "Q1. Role?\n    Ops lead")
	assert.False(t, strings.Contains(out, "ready\n"))
}

func TestPasscodeHashFromStdin(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("s3cret\n"))
	cmd.SetArgs([]string{"passcode", "hash", "--no-color"})

	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "$argon2id$"))
}

func TestPasscodeHashBcrypt(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"passcode", "hash", "--bcrypt", "s3cret"})

	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "$2a$"))
}

func TestKeygen(t *testing.T) {
	out, err := run(t, "keygen")
	require.NoError(t, err)
	_, err = crypto.ParseKey(strings.TrimSpace(out))
	assert.NoError(t, err)
}
