package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
)

type recordSink struct {
	name   string
	events []Event
	err    error
}

func (r *recordSink) Name() string { return r.name }

func (r *recordSink) Deliver(_ context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestIsMilestone(t *testing.T) {
	tests := []struct {
		completed, requested int
		want                 bool
	}{
		{3, 5, true},
		{5, 5, true},
		{2, 5, false},
		{2, 4, true},
		{1, 1, true},
		{0, 4, false},
		{1, 0, false},
	}
	for _, tt := range tests {
		if got := IsMilestone(tt.completed, tt.requested); got != tt.want {
			t.Errorf("IsMilestone(%d, %d) = %v, want %v", tt.completed, tt.requested, got, tt.want)
		}
	}
}

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	ok := &recordSink{name: "ok"}
	bad := &recordSink{name: "bad", err: errors.New("boom")}
	tail := &recordSink{name: "tail"}
	f := NewFanout(ok, bad, tail)

	err := f.Emit(context.Background(), Event{Kind: TrackQueued, TrackID: "t1"})
	if err == nil || !strings.Contains(err.Error(), "bad: boom") {
		t.Fatalf("err = %v, want bad: boom", err)
	}
	if len(ok.events) != 1 || len(tail.events) != 1 {
		t.Errorf("delivered ok=%d tail=%d, want 1 each", len(ok.events), len(tail.events))
	}
	if ok.events[0].At.IsZero() {
		t.Error("At not stamped")
	}
	if got := strings.Join(f.Sinks(), ","); got != "ok,bad,tail" {
		t.Errorf("Sinks() = %s", got)
	}
}

func TestFire_NilEmitterIsSafe(t *testing.T) {
	Fire(context.Background(), nil, Event{Kind: TrackQueued, TrackID: "t"})
	Fire(context.Background(), NewFanout(&recordSink{name: "x", err: errors.New("down")}), Event{Kind: TrackQueued, TrackID: "t"})
}

func TestFormat(t *testing.T) {
	half := Format(Event{Kind: ReviewMilestone, TrackTitle: "Song", Completed: 3, Requested: 5})
	if !strings.Contains(half.Title, "half way") || half.Color != ColorInfo {
		t.Errorf("half = %+v", half)
	}
	full := Format(Event{Kind: ReviewMilestone, TrackID: "t9", Completed: 5, Requested: 5})
	if !strings.Contains(full.Title, `"t9"`) || full.Color != ColorSuccess {
		t.Errorf("full = %+v", full)
	}
	alert := Format(Event{Kind: IntegrityAlert, Detail: "counter drift"})
	if alert.Body != "counter drift" || alert.Color != ColorError {
		t.Errorf("alert = %+v", alert)
	}
}

type fakeClient struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
}

func (f *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "1", Queue: QueueName}, nil
}

func TestQueue_RoundTripsThroughHandler(t *testing.T) {
	c := &fakeClient{}
	q := NewQueue(c)
	ev := Event{Kind: ReviewMilestone, TrackID: "t1", ArtistEmail: "a@example.com", Completed: 1, Requested: 2}
	if err := q.Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(c.tasks) != 1 || c.tasks[0].Type() != TaskType {
		t.Fatalf("tasks = %v", c.tasks)
	}

	sink := &recordSink{name: "rec"}
	if err := Handler(NewFanout(sink))(context.Background(), c.tasks[0]); err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if len(sink.events) != 1 || sink.events[0].TrackID != "t1" || sink.events[0].Completed != 1 {
		t.Errorf("delivered = %+v", sink.events)
	}
}

func TestNewTask_RejectsInvalidEvent(t *testing.T) {
	if _, err := NewTask(Event{Kind: "bogus", TrackID: "t"}); err == nil {
		t.Error("expected unknown kind to fail validation")
	}
	if _, err := NewTask(Event{Kind: TrackQueued}); err == nil {
		t.Error("expected missing track id to fail validation")
	}
	if _, err := NewTask(Event{Kind: IntegrityAlert, Detail: "x"}); err != nil {
		t.Errorf("alert without track: %v", err)
	}
	if _, err := NewTask(Event{Kind: TrackQueued, TrackID: "t", ArtistEmail: "not-an-email"}); err == nil {
		t.Error("expected bad email to fail validation")
	}
}

func TestHandler_MalformedPayloadSkipsRetry(t *testing.T) {
	err := Handler(Nop{})(context.Background(), asynq.NewTask(TaskType, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("err = %v, want SkipRetry", err)
	}
}
