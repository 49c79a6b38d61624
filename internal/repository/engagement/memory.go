package engagement

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/errors"
	"github.com/nmxmxh/ovasabi-live/pkg/models"
)

// MemoryStore is a process-local Repository for development and tests.
// Stored values are never shared with callers; every read returns a copy.
type MemoryStore struct {
	mu        sync.RWMutex
	polls     map[string]*models.Poll
	questions map[string]*models.Question
	gifts     map[string]*models.Gift
	emoji     []*models.EmojiEvent

	// docLocks serializes read-modify-write of one document without blocking
	// others. An entry lives only while someone holds or waits for it.
	locksMu  sync.Mutex
	docLocks map[string]*docLock
}

type docLock struct {
	sync.Mutex
	refs int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		polls:     make(map[string]*models.Poll),
		questions: make(map[string]*models.Question),
		gifts:     make(map[string]*models.Gift),
		docLocks:  make(map[string]*docLock),
	}
}

var _ Repository = (*MemoryStore)(nil)

func (s *MemoryStore) lock(id string) func() {
	s.locksMu.Lock()
	l, ok := s.docLocks[id]
	if !ok {
		l = &docLock{}
		s.docLocks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.docLocks, id)
		}
		s.locksMu.Unlock()
	}
}

func (s *MemoryStore) CreatePoll(ctx context.Context, p *models.Poll) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrStorageUnavailable, err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) GetPoll(_ context.Context, id string) (*models.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.polls[id]
	if !ok {
		return nil, errors.ErrPollNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) ListPolls(_ context.Context, roomID string) ([]*models.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Poll, 0)
	for _, p := range s.polls {
		if p.RoomID == roomID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdatePoll(ctx context.Context, id string, fn PollMutation) (*models.Poll, error) {
	unlock := s.lock("poll:" + id)
	defer unlock()

	p, err := s.GetPoll(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrStorageUnavailable, err.Error())
	}
	p.Revision++

	s.mu.Lock()
	s.polls[id] = p.Clone()
	s.mu.Unlock()
	return p, nil
}

func (s *MemoryStore) ListExpiredPolls(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type due struct {
		id  string
		exp time.Time
	}
	var found []due
	for _, p := range s.polls {
		if p.IsActive && p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
			found = append(found, due{p.ID, *p.ExpiresAt})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].exp.Before(found[j].exp) })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	ids := make([]string, len(found))
	for i, d := range found {
		ids[i] = d.id
	}
	return ids, nil
}

func (s *MemoryStore) CreateQuestion(ctx context.Context, q *models.Question) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrStorageUnavailable, err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions[q.ID] = q.Clone()
	return nil
}

func (s *MemoryStore) GetQuestion(_ context.Context, id string) (*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return nil, errors.ErrQuestionNotFound
	}
	return q.Clone(), nil
}

func (s *MemoryStore) ListQuestions(_ context.Context, roomID string) ([]*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Question, 0)
	for _, q := range s.questions {
		if q.RoomID == roomID {
			out = append(out, q.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateQuestion(ctx context.Context, id string, fn QuestionMutation) (*models.Question, error) {
	unlock := s.lock("question:" + id)
	defer unlock()

	q, err := s.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(q); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrStorageUnavailable, err.Error())
	}

	s.mu.Lock()
	s.questions[id] = q.Clone()
	s.mu.Unlock()
	return q, nil
}

func (s *MemoryStore) AppendGift(ctx context.Context, g *models.Gift) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrStorageUnavailable, err.Error())
	}
	c := *g
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gifts[g.ID] = &c
	return nil
}

func (s *MemoryStore) GetGift(_ context.Context, id string) (*models.Gift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.gifts[id]
	if !ok {
		return nil, errors.ErrGiftNotFound
	}
	c := *g
	return &c, nil
}

func (s *MemoryStore) MarkGiftProcessed(_ context.Context, id string, at time.Time) (*models.Gift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gifts[id]
	if !ok {
		return nil, errors.ErrGiftNotFound
	}
	if g.Processed {
		return nil, errors.ErrGiftAlreadyProcessed
	}
	g.Processed = true
	ts := at
	g.ProcessedAt = &ts
	c := *g
	return &c, nil
}

func (s *MemoryStore) AppendEmoji(ctx context.Context, e *models.EmojiEvent) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrStorageUnavailable, err.Error())
	}
	c := *e
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emoji = append(s.emoji, &c)
	return nil
}

// ListEmoji returns the most recent emoji events of a room, newest first.
func (s *MemoryStore) ListEmoji(_ context.Context, roomID string, limit int) ([]*models.EmojiEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.EmojiEvent, 0)
	for i := len(s.emoji) - 1; i >= 0; i-- {
		if s.emoji[i].RoomID != roomID {
			continue
		}
		c := *s.emoji[i]
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) PingContext(context.Context) error { return nil }
