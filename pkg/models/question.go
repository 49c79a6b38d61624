package models

import "time"

// Question is a Q&A aggregate. A user id appears in at most one of Upvoters and Downvoters.
type Question struct {
	ID             string     `json:"id"`
	RoomID         string     `json:"roomId"`
	Question       string     `json:"question"`
	AskedBy        string     `json:"askedBy"`
	AskedByName    string     `json:"askedByName"`
	Upvotes        int        `json:"upvotes"`
	Downvotes      int        `json:"downvotes"`
	Upvoters       []string   `json:"upvoters"`
	Downvoters     []string   `json:"downvoters"`
	IsAnswered     bool       `json:"isAnswered"`
	IsHighlighted  bool       `json:"isHighlighted"`
	Answer         string     `json:"answer,omitempty"`
	AnsweredBy     string     `json:"answeredBy,omitempty"`
	AnsweredByName string     `json:"answeredByName,omitempty"`
	AnsweredAt     *time.Time `json:"answeredAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Score is upvotes minus downvotes.
func (q *Question) Score() int {
	return q.Upvotes - q.Downvotes
}

// Clone returns a deep copy of the question.
func (q *Question) Clone() *Question {
	if q == nil {
		return nil
	}
	c := *q
	c.Upvoters = append([]string(nil), q.Upvoters...)
	c.Downvoters = append([]string(nil), q.Downvoters...)
	c.AnsweredAt = cloneTime(q.AnsweredAt)
	return &c
}

// QuestionScore is the broadcastable vote tally of a question.
type QuestionScore struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	Score     int `json:"score"`
}
