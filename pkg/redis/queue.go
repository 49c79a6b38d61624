package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// QueueItem is a dequeued priority queue entry.
type QueueItem struct {
	Payload  string
	Priority float64
}

// PriorityQueue is a score-ordered work queue shared by all processes.
// Lower priority values are dequeued first; equal priorities dequeue in
// enqueue order (each member is prefixed by a zero padded sequence number and
// Redis orders equal scores lexicographically by member).
type PriorityQueue struct {
	client *Client
	kb     *KeyBuilder
}

// NewPriorityQueue creates a queue family stored under queue:engage:*.
func NewPriorityQueue(client *Client) *PriorityQueue {
	return &PriorityQueue{
		client: client,
		kb:     NewKeyBuilder(NamespaceQueue, ContextEngage),
	}
}

const seqWidth = 20

// Enqueue adds payload with the given priority. Duplicate payloads are kept as separate items.
func (q *PriorityQueue) Enqueue(ctx context.Context, queue, payload string, priority float64) error {
	seq, err := q.client.Incr(ctx, q.kb.Build(queue, "seq")).Result()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", queue, err)
	}
	member := fmt.Sprintf("%0*d|%s", seqWidth, seq, payload)
	if err := q.client.ZAdd(ctx, q.kb.Build(queue, ""), redis.Z{Score: priority, Member: member}).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", queue, err)
	}
	return nil
}

// Dequeue atomically pops the lowest priority item. ok is false when the queue is empty.
func (q *PriorityQueue) Dequeue(ctx context.Context, queue string) (QueueItem, bool, error) {
	res, err := q.client.ZPopMin(ctx, q.kb.Build(queue, ""), 1).Result()
	if err != nil {
		return QueueItem{}, false, fmt.Errorf("dequeue %s: %w", queue, err)
	}
	if len(res) == 0 {
		return QueueItem{}, false, nil
	}
	member, _ := res[0].Member.(string)
	return QueueItem{Payload: stripSeq(member), Priority: res[0].Score}, true, nil
}

// DequeueDue atomically pops the lowest priority item whose priority is at most maxPriority.
func (q *PriorityQueue) DequeueDue(ctx context.Context, queue string, maxPriority float64) (QueueItem, bool, error) {
	upper := strconv.FormatFloat(maxPriority, 'f', -1, 64)
	res, err := popDue.Run(ctx, q.client, []string{q.kb.Build(queue, "")}, upper).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return QueueItem{}, false, nil
		}
		return QueueItem{}, false, fmt.Errorf("dequeue due %s: %w", queue, err)
	}
	if len(res) < 2 {
		return QueueItem{}, false, nil
	}
	score, err := strconv.ParseFloat(res[1], 64)
	if err != nil {
		return QueueItem{}, false, fmt.Errorf("dequeue due %s: bad score %q: %w", queue, res[1], err)
	}
	return QueueItem{Payload: stripSeq(res[0]), Priority: score}, true, nil
}

// Len returns the number of queued items.
func (q *PriorityQueue) Len(ctx context.Context, queue string) (int64, error) {
	return q.client.ZCard(ctx, q.kb.Build(queue, "")).Result()
}

func stripSeq(member string) string {
	if i := strings.IndexByte(member, '|'); i >= 0 {
		return member[i+1:]
	}
	return member
}
