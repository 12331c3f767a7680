// Package outbox decouples email delivery from the request path. Producers
// enqueue jobs; a Worker drains the queue into a mail.Sender.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueFull is returned by MemoryQueue when its buffer is exhausted.
var ErrQueueFull = errors.New("outbox queue is full")

// EmailJob is one pending notification email
type EmailJob struct {
	NotificationID uint   `json:"notification_id"`
	To             string `json:"to"`
	RecipientName  string `json:"recipient_name"`
	Subject        string `json:"subject"`
	Message        string `json:"message"`
	Link           string `json:"link,omitempty"`
}

// Queue is a FIFO of email jobs. Dequeue blocks until a job is available or
// ctx is done.
type Queue interface {
	Enqueue(ctx context.Context, job EmailJob) error
	Dequeue(ctx context.Context) (EmailJob, error)
}

// RedisQueue keeps jobs in a Redis list so they survive restarts and can be
// drained by any instance.
type RedisQueue struct {
	client *redis.Client
	key    string
	poll   time.Duration
}

// NewRedisQueue uses the list at key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key, poll: 5 * time.Second}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job EmailJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (EmailJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return EmailJob{}, err
		}

		res, err := q.client.BRPop(ctx, q.poll, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return EmailJob{}, ctx.Err()
			}
			return EmailJob{}, err
		}

		// BRPOP returns [key, value]
		var job EmailJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return EmailJob{}, fmt.Errorf("decode outbox job: %w", err)
		}
		return job, nil
	}
}

// Len reports the number of queued jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// MemoryQueue is an in-process queue used when Redis is not configured.
// Jobs are lost on restart.
type MemoryQueue struct {
	ch chan EmailJob
}

func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan EmailJob, size)}
}

// Enqueue never blocks.
func (q *MemoryQueue) Enqueue(_ context.Context, job EmailJob) error {
	select {
	case q.ch <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (EmailJob, error) {
	select {
	case job := <-q.ch:
		return job, nil
	case <-ctx.Done():
		return EmailJob{}, ctx.Err()
	}
}

func (q *MemoryQueue) Len() int {
	return len(q.ch)
}
