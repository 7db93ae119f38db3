package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionEventAccepted(t *testing.T) {
	tests := []struct {
		verdict string
		want    bool
	}{
		{"ACCEPTED", true},
		{"accepted", true},
		{"Accepted", true},
		{"WRONG_ANSWER", false},
		{"TIME_LIMIT", false},
		{"", false},
	}

	for _, tt := range tests {
		e := SubmissionEvent{Verdict: tt.verdict}
		assert.Equal(t, tt.want, e.Accepted(), "verdict=%q", tt.verdict)
	}
}

func TestSubmissionEventUnmarshal(t *testing.T) {
	payload := []byte(`{
		"user_id": "user-42",
		"username": "Phoenix1",
		"problem_id": "problem-7",
		"verdict": "ACCEPTED",
		"total_xp": 1250,
		"solved_at": "2024-06-15T12:00:00Z"
	}`)

	var event SubmissionEvent
	require.NoError(t, json.Unmarshal(payload, &event))

	assert.Equal(t, "user-42", event.UserID)
	assert.Equal(t, "Phoenix1", event.Username)
	assert.Equal(t, int64(1250), event.TotalXP)
	assert.True(t, event.Accepted())
	require.NotNil(t, event.SolvedAt)

	// Rejected verdicts omit solved_at entirely.
	var rejected SubmissionEvent
	require.NoError(t, json.Unmarshal([]byte(`{"user_id":"u","verdict":"WRONG_ANSWER","total_xp":10}`), &rejected))
	assert.False(t, rejected.Accepted())
	assert.Nil(t, rejected.SolvedAt)
}
