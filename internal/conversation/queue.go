package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studybuddy/backend/internal/store"
)

const (
	queueKey = "studybuddy:conversation:jobs"
	// jobs sit here between dequeue and ack so a crash mid-job does not
	// lose them
	processingKey = "studybuddy:conversation:jobs:processing"
)

// Exchange is one completed question/answer pair queued for deferred
// processing (persistence, summarization, titling).
type Exchange struct {
	UserID           string                  `json:"user_id"`
	SessionID        string                  `json:"session_id"`
	Query            string                  `json:"query"`
	Response         string                  `json:"response"`
	RelatedDocuments []store.RelatedDocument `json:"related_documents,omitempty"`
	AskedAt          time.Time               `json:"asked_at"`
}

// Queue hands exchanges to a background worker.
type Queue interface {
	Enqueue(ctx context.Context, job Exchange) error
}

// RedisQueue is a durable FIFO job queue backed by a Redis list. Producers
// LPUSH; the worker BLMOVEs each job into a processing list and LREMs it
// after handling, so jobs survive a process restart at any point.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Exchange) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	if err := q.client.LPush(ctx, queueKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueueing job: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job and parks it on the
// processing list until Ack. Returns redis.Nil when the wait times out with
// nothing queued.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (Exchange, error) {
	payload, err := q.client.BLMove(ctx, queueKey, processingKey, "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		return Exchange{}, err
	}
	var job Exchange
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		// undecodable payloads would be reclaimed forever, drop them
		q.client.LRem(ctx, processingKey, 1, payload)
		return Exchange{}, fmt.Errorf("decoding job: %w", err)
	}
	return job, nil
}

// Ack removes a handled job from the processing list. Marshalling an Exchange
// is deterministic, so the payload matches what Dequeue moved.
func (q *RedisQueue) Ack(ctx context.Context, job Exchange) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	if err := q.client.LRem(ctx, processingKey, 1, payload).Err(); err != nil {
		return fmt.Errorf("acking job: %w", err)
	}
	return nil
}

// Reclaim moves jobs a previous worker left on the processing list back onto
// the queue. Called once on worker startup; delivery is at-least-once, so a
// job interrupted mid-flight simply runs again.
func (q *RedisQueue) Reclaim(ctx context.Context) (int, error) {
	var n int
	for {
		_, err := q.client.LMove(ctx, processingKey, queueKey, "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("reclaiming jobs: %w", err)
		}
		n++
	}
}

// InlineQueue processes each exchange synchronously on enqueue. Used when
// Redis is not configured; queries lose the latency benefit but nothing else.
type InlineQueue struct {
	manager *Manager
}

func NewInlineQueue(manager *Manager) *InlineQueue {
	return &InlineQueue{manager: manager}
}

func (q *InlineQueue) Enqueue(ctx context.Context, job Exchange) error {
	return q.manager.ProcessExchange(ctx, job)
}
