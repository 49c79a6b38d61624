package events

import (
	"testing"
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/json"
	"github.com/nmxmxh/ovasabi-live/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeFieldNames(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	payload := QuestionUpdatedPayload{
		QuestionID:    "q1",
		QuestionScore: models.QuestionScore{Upvotes: 2, Downvotes: 1, Score: 1},
	}

	env, err := NewEnvelope("room-1", QuestionUpdated, payload, now)
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), env.Timestamp)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Payload, &wire))
	assert.Equal(t, map[string]interface{}{
		"questionId": "q1",
		"upvotes":    float64(2),
		"downvotes":  float64(1),
		"score":      float64(1),
	}, wire)

	var back QuestionUpdatedPayload
	require.NoError(t, env.Decode(&back))
	assert.Equal(t, payload, back)
}

func TestPollCreatedOmitsVoters(t *testing.T) {
	p := &models.Poll{
		ID:       "p1",
		Question: "Colour?",
		Options: []models.Option{
			{ID: "o1", Text: "Red", Votes: 1, Voters: []string{"u1"}},
			{ID: "o2", Text: "Blue"},
		},
	}

	data, err := json.Marshal(NewPollCreated(p))
	require.NoError(t, err)
	assert.JSONEq(t, `{"pollId":"p1","question":"Colour?","options":[{"id":"o1","text":"Red"},{"id":"o2","text":"Blue"}],"isMultipleChoice":false,"expiresAt":null}`, string(data))
}

func TestBatchName(t *testing.T) {
	assert.Equal(t, "gift-sent-batch", BatchName(GiftSent))
}
