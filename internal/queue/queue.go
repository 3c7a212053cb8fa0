package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/bobarin/reelsmith/internal/models"
)

const QueueRenderJob = "queue:render_job"

// RenderQueueName scopes the render queue to one instance. Job status is held
// in the memory of the process that accepted the job, so each instance must
// consume only its own tasks.
func RenderQueueName(instance string) string {
	if instance == "" {
		return QueueRenderJob
	}
	return QueueRenderJob + ":" + instance
}

var ErrQueueFull = errors.New("queue is full")

// Task is one queued job run.
type Task struct {
	ID        uuid.UUID         `json:"id"`
	JobID     string            `json:"job_id"`
	Kind      models.JobKind    `json:"kind"`
	Options   models.JobOptions `json:"options"`
	CreatedAt time.Time         `json:"created_at"`
}

// Queue hands tasks from submitters to workers. Dequeue returns (nil, nil)
// when nothing arrived within timeout.
type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	Dequeue(ctx context.Context, timeout time.Duration) (*Task, error)
	Len(ctx context.Context) (int64, error)
	Close() error
}

// ---------------------------------------------------------------------------
// RedisQueue: RPUSH / BLPOP of JSON tasks on a single list.
// ---------------------------------------------------------------------------

type RedisQueue struct {
	client *redis.Client
	name   string
}

var _ Queue = (*RedisQueue)(nil)

func NewRedisQueue(redisURL, name string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisQueue{client: client, name: name}, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Enqueue(ctx context.Context, task *Task) error {
	prepare(task)

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	return q.client.RPush(ctx, q.name, data).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	result, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if err == redis.Nil {
		return nil, nil // No task available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var task Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	return &task, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}

// ---------------------------------------------------------------------------
// MemoryQueue: buffered channel for single-process deployments and tests.
// ---------------------------------------------------------------------------

type MemoryQueue struct {
	tasks chan *Task
}

var _ Queue = (*MemoryQueue)(nil)

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryQueue{tasks: make(chan *Task, capacity)}
}

// Enqueue never blocks; a full queue is an error.
func (q *MemoryQueue) Enqueue(ctx context.Context, task *Task) error {
	prepare(task)

	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case task := <-q.tasks:
		return task, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Len(ctx context.Context) (int64, error) {
	return int64(len(q.tasks)), nil
}

func (q *MemoryQueue) Close() error {
	return nil
}

func prepare(task *Task) {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	task.CreatedAt = time.Now()
}
