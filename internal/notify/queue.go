package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
)

// TaskType is the asynq task type carrying one Event.
const TaskType = "notify:event"

// QueueName is the asynq queue notification tasks are placed on.
const QueueName = "notify"

var validate = validator.New()

// enqueuer is the subset of *asynq.Client used by Queue.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue is an Emitter that hands events to an asynq worker instead of
// delivering them inline.
type Queue struct {
	client enqueuer
}

// NewQueue returns a Queue enqueueing through client.
func NewQueue(client enqueuer) *Queue {
	return &Queue{client: client}
}

// Emit enqueues ev.
func (q *Queue) Emit(ctx context.Context, ev Event) error {
	task, err := NewTask(ev)
	if err != nil {
		return err
	}
	if _, err := q.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueName),
		asynq.MaxRetry(5),
		asynq.Retention(24*time.Hour),
	); err != nil {
		return fmt.Errorf("notify: enqueue %s: %w", ev.Kind, err)
	}
	return nil
}

// NewTask encodes ev as an asynq task.
func NewTask(ev Event) (*asynq.Task, error) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if err := validate.Struct(ev); err != nil {
		return nil, fmt.Errorf("notify: invalid event: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("notify: encode %s: %w", ev.Kind, err)
	}
	return asynq.NewTask(TaskType, data), nil
}

// ParseTask decodes and validates the Event carried by t.
func ParseTask(t *asynq.Task) (Event, error) {
	var ev Event
	if t.Type() != TaskType {
		return ev, fmt.Errorf("notify: unexpected task type %q", t.Type())
	}
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return ev, fmt.Errorf("notify: decode task: %w", err)
	}
	if err := validate.Struct(ev); err != nil {
		return ev, fmt.Errorf("notify: invalid event: %w", err)
	}
	return ev, nil
}

// Handler returns an asynq handler delivering queued events to e. Malformed
// payloads are not retried.
func Handler(e Emitter) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		ev, err := ParseTask(t)
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return e.Emit(ctx, ev)
	}
}

// NewServeMux returns a mux routing notification tasks to e.
func NewServeMux(e Emitter) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TaskType, Handler(e))
	return mux
}
