package models

import "time"

// Option is a single answer of a poll. Votes always equals len(Voters).
type Option struct {
	ID     string   `json:"id"`
	Text   string   `json:"text"`
	Votes  int      `json:"votes"`
	Voters []string `json:"voters"`
}

// Poll is a room-scoped poll aggregate.
type Poll struct {
	ID               string     `json:"id"`
	RoomID           string     `json:"roomId"`
	Question         string     `json:"question"`
	Options          []Option   `json:"options"`
	CreatedBy        string     `json:"createdBy"`
	IsMultipleChoice bool       `json:"isMultipleChoice"`
	Duration         int        `json:"duration,omitempty"` // seconds, 0 means open until ended
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	IsActive         bool       `json:"isActive"`
	TotalVotes       int        `json:"totalVotes"`
	CreatedAt        time.Time  `json:"createdAt"`
	EndedAt          *time.Time `json:"endedAt,omitempty"`
	// Revision grows by one with every stored update.
	Revision int64 `json:"revision"`
}

// Option returns the option with the given id.
func (p *Poll) Option(id string) (*Option, bool) {
	for i := range p.Options {
		if p.Options[i].ID == id {
			return &p.Options[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the poll.
func (p *Poll) Clone() *Poll {
	if p == nil {
		return nil
	}
	c := *p
	c.Options = make([]Option, len(p.Options))
	for i, o := range p.Options {
		o.Voters = append([]string(nil), o.Voters...)
		c.Options[i] = o
	}
	c.ExpiresAt = cloneTime(p.ExpiresAt)
	c.EndedAt = cloneTime(p.EndedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Poll statuses reported in result snapshots.
const (
	PollStatusActive = "active"
	PollStatusEnded  = "ended"
)

// OptionResult is one option's share of a poll result.
type OptionResult struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Votes      int    `json:"votes"`
	Percentage int    `json:"percentage"`
}

// PollResults is the broadcastable snapshot of a poll's tally.
type PollResults struct {
	Options    []OptionResult `json:"options"`
	TotalVotes int            `json:"totalVotes"`
	Status     string         `json:"status"`
}
