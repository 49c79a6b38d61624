package interaction

import (
	"context"
	"time"

	"github.com/nmxmxh/ovasabi-live/internal/repository/engagement"
	"github.com/nmxmxh/ovasabi-live/internal/service/vote"
	apperrors "github.com/nmxmxh/ovasabi-live/pkg/errors"
	"github.com/nmxmxh/ovasabi-live/pkg/models"
	"github.com/nmxmxh/ovasabi-live/pkg/redis"
	"go.uber.org/zap"
)

const resultsEntity = "poll-snapshot"

// resultsSnapshot is the cached tally of a poll, tagged with its room so that
// reads from other rooms can be refused without touching the store.
type resultsSnapshot struct {
	RoomID  string             `json:"roomId"`
	Results models.PollResults `json:"results"`
}

// ResultsCache keeps the latest result snapshot of each poll in Redis so that
// get-poll-results does not hit the store. Snapshots are versioned by the
// poll's revision: a write carrying an older revision than the cached one is
// dropped, so late writers never roll the tally back. Concurrent misses for
// one poll share a single load.
type ResultsCache struct {
	cache *redis.Cache
	repo  engagement.Repository
	now   func() time.Time
	log   *zap.Logger
}

// NewResultsCache creates a results cache over client.
func NewResultsCache(client *redis.Client, repo engagement.Repository, log *zap.Logger) *ResultsCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &ResultsCache{
		cache: redis.NewCache(client, redis.NamespaceCache, redis.ContextEngage),
		repo:  repo,
		now:   time.Now,
		log:   log.With(zap.String("module", "poll_results_cache")),
	}
}

func resultsKey(pollID string) string {
	return resultsEntity + ":" + pollID
}

// Load returns the snapshot of pollID as seen from roomID, loading it from the
// store on a miss. A poll of another room is reported as not found.
func (c *ResultsCache) Load(ctx context.Context, roomID, pollID string) (models.PollResults, error) {
	snap, err := redis.GetOrSetWithProtection(ctx, c.cache, resultsKey(pollID), func(ctx context.Context) (resultsSnapshot, int64, error) {
		p, err := c.repo.GetPoll(ctx, pollID)
		if err != nil {
			return resultsSnapshot{}, 0, err
		}
		return resultsSnapshot{RoomID: p.RoomID, Results: vote.Results(p, c.now())}, p.Revision, nil
	}, redis.TTLPollResults)
	if err != nil {
		return models.PollResults{}, err
	}
	if snap.RoomID != roomID {
		return models.PollResults{}, apperrors.ErrPollNotFound
	}
	return snap.Results, nil
}

// Store records res as the snapshot of p at p's revision. Failures are logged
// only.
func (c *ResultsCache) Store(ctx context.Context, p *models.Poll, res models.PollResults) {
	snap := resultsSnapshot{RoomID: p.RoomID, Results: res}
	written, err := c.cache.SetIfNewer(ctx, resultsKey(p.ID), "", p.Revision, snap, redis.TTLPollResults)
	if err != nil {
		c.log.Warn("Failed to cache poll results", zap.String("poll_id", p.ID), zap.Error(err))
		return
	}
	if !written {
		c.log.Debug("Newer poll results already cached",
			zap.String("poll_id", p.ID),
			zap.Int64("revision", p.Revision))
	}
}

// OnFinalized stores the final snapshot of an ended poll. It has the shape of
// an expiry hook.
func (c *ResultsCache) OnFinalized(ctx context.Context, p *models.Poll, res models.PollResults) {
	c.Store(ctx, p, res)
}
