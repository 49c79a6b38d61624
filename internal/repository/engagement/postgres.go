package engagement

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/nmxmxh/ovasabi-live/internal/repository"
	"github.com/nmxmxh/ovasabi-live/pkg/errors"
	"github.com/nmxmxh/ovasabi-live/pkg/json"
	"github.com/nmxmxh/ovasabi-live/pkg/models"
	"go.uber.org/zap"
)

// Schema creates the engagement tables. Documents live in a JSONB column;
// the columns beside it exist for filtering and indexing.
const Schema = `
CREATE TABLE IF NOT EXISTS engage_polls (
	id         TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL,
	is_active  BOOLEAN NOT NULL,
	expires_at TIMESTAMPTZ,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS engage_polls_room_idx ON engage_polls (room_id, created_at);
CREATE INDEX IF NOT EXISTS engage_polls_expiry_idx ON engage_polls (expires_at) WHERE is_active;

CREATE TABLE IF NOT EXISTS engage_questions (
	id         TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS engage_questions_room_idx ON engage_questions (room_id, created_at);

CREATE TABLE IF NOT EXISTS engage_gifts (
	id         TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL,
	processed  BOOLEAN NOT NULL DEFAULT FALSE,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS engage_gifts_room_idx ON engage_gifts (room_id, created_at);

CREATE TABLE IF NOT EXISTS engage_emoji_events (
	id         TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS engage_emoji_room_idx ON engage_emoji_events (room_id, created_at DESC);
`

const pqUniqueViolation = "23505"

// PostgresStore is the Postgres-backed Repository.
type PostgresStore struct {
	db  *sql.DB
	log *zap.Logger
}

var _ Repository = (*PostgresStore)(nil)

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB, log *zap.Logger) *PostgresStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostgresStore{db: db, log: log.With(zap.String("module", "engagement_repo"))}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate engagement schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// unavailable tags a driver error with ErrStorageUnavailable, keeping the cause.
func unavailable(op string, err error) error {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return fmt.Errorf("%s: %w: duplicate id (%s)", op, errors.ErrValidation, pqErr.Constraint)
	}
	return fmt.Errorf("%s: %w: %w", op, errors.ErrStorageUnavailable, err)
}

func (s *PostgresStore) CreatePoll(ctx context.Context, p *models.Poll) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode poll: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO engage_polls (id, room_id, is_active, expires_at, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.RoomID, p.IsActive, p.ExpiresAt, data, p.CreatedAt,
	)
	if err != nil {
		return unavailable("create poll", err)
	}
	return nil
}

func (s *PostgresStore) GetPoll(ctx context.Context, id string) (*models.Poll, error) {
	return s.getPoll(ctx, s.db, id, false)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *PostgresStore) getPoll(ctx context.Context, q queryRower, id string, forUpdate bool) (*models.Poll, error) {
	query := `SELECT data FROM engage_polls WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var data []byte
	if err := q.QueryRowContext(ctx, query, id).Scan(&data); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrPollNotFound
		}
		return nil, unavailable("get poll", err)
	}
	p := &models.Poll{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode poll %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) ListPolls(ctx context.Context, roomID string) ([]*models.Poll, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM engage_polls WHERE room_id = $1 ORDER BY created_at`, roomID)
	if err != nil {
		return nil, unavailable("list polls", err)
	}
	defer rows.Close()

	out := make([]*models.Poll, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, unavailable("list polls", err)
		}
		p := &models.Poll{}
		if err := json.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("decode poll: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list polls", err)
	}
	return out, nil
}

// UpdatePoll locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (s *PostgresStore) UpdatePoll(ctx context.Context, id string, fn PollMutation) (*models.Poll, error) {
	var updated *models.Poll
	err := repository.WithTransaction(ctx, s.db, s.log, func(tx *sql.Tx) error {
		p, err := s.getPoll(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		p.Revision++
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode poll: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE engage_polls SET data = $2, is_active = $3, expires_at = $4, updated_at = NOW() WHERE id = $1`,
			id, data, p.IsActive, p.ExpiresAt,
		); err != nil {
			return unavailable("update poll", err)
		}
		updated = p
		return nil
	})
	if err != nil {
		if errors.Kind(err) == nil {
			err = unavailable("update poll", err)
		}
		return nil, err
	}
	return updated, nil
}

func (s *PostgresStore) ListExpiredPolls(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM engage_polls
		 WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $1
		 ORDER BY expires_at LIMIT $2`, now, limit)
	if err != nil {
		return nil, unavailable("list expired polls", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("list expired polls", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list expired polls", err)
	}
	return ids, nil
}

func (s *PostgresStore) CreateQuestion(ctx context.Context, q *models.Question) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode question: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO engage_questions (id, room_id, data, created_at) VALUES ($1, $2, $3, $4)`,
		q.ID, q.RoomID, data, q.CreatedAt,
	); err != nil {
		return unavailable("create question", err)
	}
	return nil
}

func (s *PostgresStore) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	return s.getQuestion(ctx, s.db, id, false)
}

func (s *PostgresStore) getQuestion(ctx context.Context, q queryRower, id string, forUpdate bool) (*models.Question, error) {
	query := `SELECT data FROM engage_questions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var data []byte
	if err := q.QueryRowContext(ctx, query, id).Scan(&data); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrQuestionNotFound
		}
		return nil, unavailable("get question", err)
	}
	out := &models.Question{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("decode question %s: %w", id, err)
	}
	return out, nil
}

func (s *PostgresStore) ListQuestions(ctx context.Context, roomID string) ([]*models.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM engage_questions WHERE room_id = $1 ORDER BY created_at`, roomID)
	if err != nil {
		return nil, unavailable("list questions", err)
	}
	defer rows.Close()

	out := make([]*models.Question, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, unavailable("list questions", err)
		}
		q := &models.Question{}
		if err := json.Unmarshal(data, q); err != nil {
			return nil, fmt.Errorf("decode question: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list questions", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateQuestion(ctx context.Context, id string, fn QuestionMutation) (*models.Question, error) {
	var updated *models.Question
	err := repository.WithTransaction(ctx, s.db, s.log, func(tx *sql.Tx) error {
		q, err := s.getQuestion(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := fn(q); err != nil {
			return err
		}
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("encode question: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE engage_questions SET data = $2, updated_at = NOW() WHERE id = $1`, id, data,
		); err != nil {
			return unavailable("update question", err)
		}
		updated = q
		return nil
	})
	if err != nil {
		if errors.Kind(err) == nil {
			err = unavailable("update question", err)
		}
		return nil, err
	}
	return updated, nil
}

func (s *PostgresStore) AppendGift(ctx context.Context, g *models.Gift) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode gift: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO engage_gifts (id, room_id, processed, data, created_at) VALUES ($1, $2, $3, $4, $5)`,
		g.ID, g.RoomID, g.Processed, data, g.CreatedAt,
	); err != nil {
		return unavailable("append gift", err)
	}
	return nil
}

func (s *PostgresStore) GetGift(ctx context.Context, id string) (*models.Gift, error) {
	return s.getGift(ctx, s.db, id, false)
}

func (s *PostgresStore) getGift(ctx context.Context, q queryRower, id string, forUpdate bool) (*models.Gift, error) {
	query := `SELECT data FROM engage_gifts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var data []byte
	if err := q.QueryRowContext(ctx, query, id).Scan(&data); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrGiftNotFound
		}
		return nil, unavailable("get gift", err)
	}
	g := &models.Gift{}
	if err := json.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("decode gift %s: %w", id, err)
	}
	return g, nil
}

func (s *PostgresStore) MarkGiftProcessed(ctx context.Context, id string, at time.Time) (*models.Gift, error) {
	var marked *models.Gift
	err := repository.WithTransaction(ctx, s.db, s.log, func(tx *sql.Tx) error {
		g, err := s.getGift(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if g.Processed {
			return errors.ErrGiftAlreadyProcessed
		}
		g.Processed = true
		ts := at
		g.ProcessedAt = &ts
		data, err := json.Marshal(g)
		if err != nil {
			return fmt.Errorf("encode gift: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE engage_gifts SET processed = TRUE, data = $2 WHERE id = $1`, id, data,
		); err != nil {
			return unavailable("mark gift processed", err)
		}
		marked = g
		return nil
	})
	if err != nil {
		if errors.Kind(err) == nil {
			err = unavailable("mark gift processed", err)
		}
		return nil, err
	}
	return marked, nil
}

func (s *PostgresStore) AppendEmoji(ctx context.Context, e *models.EmojiEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode emoji: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO engage_emoji_events (id, room_id, data, created_at) VALUES ($1, $2, $3, $4)`,
		e.ID, e.RoomID, data, e.CreatedAt,
	); err != nil {
		return unavailable("append emoji", err)
	}
	return nil
}

func (s *PostgresStore) ListEmoji(ctx context.Context, roomID string, limit int) ([]*models.EmojiEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM engage_emoji_events WHERE room_id = $1 ORDER BY created_at DESC LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, unavailable("list emoji", err)
	}
	defer rows.Close()

	out := make([]*models.EmojiEvent, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, unavailable("list emoji", err)
		}
		e := &models.EmojiEvent{}
		if err := json.Unmarshal(data, e); err != nil {
			return nil, fmt.Errorf("decode emoji: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list emoji", err)
	}
	return out, nil
}
