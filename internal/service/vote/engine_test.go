package vote

import (
	"math/rand"
	"testing"
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/errors"
	"github.com/nmxmxh/ovasabi-live/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func optionVotes(res models.PollResults) map[string][2]int {
	out := make(map[string][2]int, len(res.Options))
	for _, o := range res.Options {
		out[o.Text] = [2]int{o.Votes, o.Percentage}
	}
	return out
}

func assertPollInvariants(t *testing.T, p *models.Poll) {
	t.Helper()
	sum := 0
	for _, o := range p.Options {
		assert.Equal(t, len(o.Voters), o.Votes, "option %s", o.Text)
		sum += o.Votes
	}
	assert.Equal(t, sum, p.TotalVotes)
}

func TestCastVote_SingleChoiceScenario(t *testing.T) {
	p := NewPoll("room_1", "host", "Favourite colour?", []string{"Red", "Blue"}, false, 0, t0)
	red, blue := p.Options[0].ID, p.Options[1].ID

	res, err := CastVote(p, red, "u1", t0)
	require.NoError(t, err)
	assert.Equal(t, map[string][2]int{"Red": {1, 100}, "Blue": {0, 0}}, optionVotes(res))
	assert.Equal(t, 1, res.TotalVotes)
	assert.Equal(t, models.PollStatusActive, res.Status)

	res, err = CastVote(p, blue, "u1", t0)
	require.NoError(t, err)
	assert.Equal(t, map[string][2]int{"Red": {0, 0}, "Blue": {1, 100}}, optionVotes(res))
	assert.Equal(t, 1, res.TotalVotes)
	assertPollInvariants(t, p)
}

func TestCastVote_RevoteIsNoop(t *testing.T) {
	p := NewPoll("room_1", "host", "Q", []string{"A", "B"}, false, 0, t0)
	a := p.Options[0].ID

	_, err := CastVote(p, a, "u1", t0)
	require.NoError(t, err)
	res, err := CastVote(p, a, "u1", t0)
	require.NoError(t, err)

	assert.Equal(t, 1, res.TotalVotes)
	assert.Equal(t, []string{"u1"}, p.Options[0].Voters)
}

func TestCastVote_MultipleChoiceKeepsOtherVotes(t *testing.T) {
	p := NewPoll("room_1", "host", "Q", []string{"A", "B", "C"}, true, 0, t0)

	for _, o := range p.Options[:2] {
		_, err := CastVote(p, o.ID, "u1", t0)
		require.NoError(t, err)
	}
	res, err := CastVote(p, p.Options[0].ID, "u2", t0)
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalVotes)
	assert.Equal(t, map[string][2]int{"A": {2, 67}, "B": {1, 33}, "C": {0, 0}}, optionVotes(res))
	assertPollInvariants(t, p)
}

func TestCastVote_Errors(t *testing.T) {
	tests := []struct {
		name    string
		poll    func() *models.Poll
		option  func(p *models.Poll) string
		now     time.Time
		wantErr error
		kind    error
	}{
		{
			name:    "unknown option",
			poll:    func() *models.Poll { return NewPoll("r", "h", "Q", []string{"A", "B"}, false, 0, t0) },
			option:  func(*models.Poll) string { return "nope" },
			now:     t0,
			wantErr: errors.ErrInvalidOption,
			kind:    errors.ErrValidation,
		},
		{
			name: "ended poll",
			poll: func() *models.Poll {
				p := NewPoll("r", "h", "Q", []string{"A", "B"}, false, 0, t0)
				End(p, t0)
				return p
			},
			option:  func(p *models.Poll) string { return p.Options[0].ID },
			now:     t0,
			wantErr: errors.ErrPollExpired,
			kind:    errors.ErrExpired,
		},
		{
			name:    "past expiry but not yet finalized",
			poll:    func() *models.Poll { return NewPoll("r", "h", "Q", []string{"A", "B"}, false, 30, t0) },
			option:  func(p *models.Poll) string { return p.Options[0].ID },
			now:     t0.Add(30 * time.Second),
			wantErr: errors.ErrPollExpired,
			kind:    errors.ErrExpired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.poll()
			_, err := CastVote(p, tt.option(p), "u1", tt.now)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, 0, p.TotalVotes)
		})
	}
}

func TestCastVote_RandomSequencesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	voters := []string{"u1", "u2", "u3", "u4", "u5"}

	for _, multi := range []bool{false, true} {
		p := NewPoll("r", "h", "Q", []string{"A", "B", "C", "D"}, multi, 0, t0)
		for i := 0; i < 500; i++ {
			o := p.Options[rng.Intn(len(p.Options))].ID
			_, err := CastVote(p, o, voters[rng.Intn(len(voters))], t0)
			require.NoError(t, err)
			assertPollInvariants(t, p)

			if !multi {
				for _, v := range voters {
					held := 0
					for _, opt := range p.Options {
						for _, id := range opt.Voters {
							if id == v {
								held++
							}
						}
					}
					assert.LessOrEqual(t, held, 1, "voter %s", v)
				}
			}
		}
	}
}

func TestResults_PercentagesAndStatus(t *testing.T) {
	p := NewPoll("r", "h", "Q", []string{"A", "B", "C"}, false, 60, t0)
	res := Results(p, t0)
	for _, o := range res.Options {
		assert.Equal(t, 0, o.Percentage)
	}

	for i, v := range []string{"u1", "u2", "u3"} {
		_, err := CastVote(p, p.Options[i%2].ID, v, t0)
		require.NoError(t, err)
	}
	res = Results(p, t0)
	assert.Equal(t, map[string][2]int{"A": {2, 67}, "B": {1, 33}, "C": {0, 0}}, optionVotes(res))

	assert.Equal(t, models.PollStatusEnded, Results(p, t0.Add(time.Minute)).Status)
}

func TestEnd_OnlyOnce(t *testing.T) {
	p := NewPoll("r", "h", "Q", []string{"A", "B"}, false, 10, t0)
	assert.False(t, Expired(p, t0))
	assert.True(t, Expired(p, t0.Add(10*time.Second)))

	assert.True(t, End(p, t0.Add(11*time.Second)))
	assert.False(t, End(p, t0.Add(12*time.Second)))
	require.NotNil(t, p.EndedAt)
	assert.Equal(t, t0.Add(11*time.Second), *p.EndedAt)
	assert.False(t, Expired(p, t0.Add(time.Hour)))
}

func TestNewPoll(t *testing.T) {
	p := NewPoll("room_1", "host", "Q", []string{"A", "B"}, false, 0, t0)
	assert.NotEmpty(t, p.ID)
	assert.True(t, p.IsActive)
	assert.Nil(t, p.ExpiresAt)
	assert.NotEqual(t, p.Options[0].ID, p.Options[1].ID)

	timed := NewPoll("room_1", "host", "Q", []string{"A", "B"}, false, 90, t0)
	require.NotNil(t, timed.ExpiresAt)
	assert.Equal(t, t0.Add(90*time.Second), *timed.ExpiresAt)
}
