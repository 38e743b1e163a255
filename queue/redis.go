package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	auth "github.com/eloquentlog/go-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

// DefaultActivationQueue is the list activation mail jobs are pushed to
const DefaultActivationQueue = "mailer:activation"

// ErrQueueEmpty is returned by Dequeue when no job arrived before the timeout
var ErrQueueEmpty = goerrors.New("queue is empty", goerrors.CategoryNotFound).
	WithTextCode("QUEUE_EMPTY").
	WithCode(goerrors.CodeNotFound)

// NewRedisClient builds a client from a redis:// URL
func NewRedisClient(url string, poolSize int) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid queue url")
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}
	return redis.NewClient(opts), nil
}

// RedisMailQueue is a FIFO of activation mail jobs backed by a redis list.
// Producers LPUSH, consumers BRPOP.
type RedisMailQueue struct {
	rdb    *redis.Client
	key    string
	logger auth.Logger
}

var _ auth.ActivationMailer = (*RedisMailQueue)(nil)

type Option func(*RedisMailQueue)

func WithKey(key string) Option {
	return func(q *RedisMailQueue) {
		if key != "" {
			q.key = key
		}
	}
}

func WithLogger(logger auth.Logger) Option {
	return func(q *RedisMailQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

func NewRedisMailQueue(rdb *redis.Client, opts ...Option) *RedisMailQueue {
	q := &RedisMailQueue{
		rdb:    rdb,
		key:    DefaultActivationQueue,
		logger: auth.NewZapLogger(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

// EnqueueActivation pushes job onto the queue
func (q *RedisMailQueue) EnqueueActivation(ctx context.Context, job auth.ActivationMailJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode activation mail job")
	}

	if err := q.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		q.logger.Error("failed to enqueue activation mail: %v", err)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to enqueue activation mail").
			WithMetadata(map[string]any{"queue": q.key, "email_id": job.EmailID})
	}

	q.logger.Debug("enqueued activation mail for email %d", job.EmailID)
	return nil
}

// Dequeue blocks up to timeout for the oldest job
func (q *RedisMailQueue) Dequeue(ctx context.Context, timeout time.Duration) (*auth.ActivationMailJob, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrQueueEmpty
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to dequeue activation mail")
	}

	// BRPOP replies with [key, value]
	if len(res) != 2 {
		return nil, goerrors.New("unexpected queue reply", goerrors.CategoryInternal).
			WithMetadata(map[string]any{"reply": res})
	}

	job := &auth.ActivationMailJob{}
	if err := json.Unmarshal([]byte(res[1]), job); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode activation mail job")
	}
	return job, nil
}

// Len returns the number of queued jobs
func (q *RedisMailQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
