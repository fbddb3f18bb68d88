package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/docqa/docqa-api/internal/core/domain"
)

type recordingRepo struct {
	mu     sync.Mutex
	events []domain.AuthzEvent
	err    error
}

func (r *recordingRepo) InsertDecision(_ context.Context, e *domain.AuthzEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, *e)
	return nil
}

func (r *recordingRepo) snapshot() []domain.AuthzEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuthzEvent(nil), r.events...)
}

func TestAuditDispatcher_PreservesPerActorOrder(t *testing.T) {
	repo := &recordingRepo{}
	d := NewAuditDispatcher(4, repo, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	actions := []string{"read", "write", "delete", "clear", "ask"}
	for _, a := range actions {
		d.Record(domain.AuthzEvent{ActorID: 42, Action: a, Decision: domain.DecisionDeny})
		d.Record(domain.AuthzEvent{ActorID: 7, Action: a, Decision: domain.DecisionDeny})
	}

	cancel()
	d.Wait()

	got := repo.snapshot()
	if len(got) != 2*len(actions) {
		t.Fatalf("expected %d events, got %d", 2*len(actions), len(got))
	}

	var seq42 []string
	for _, e := range got {
		if e.ActorID == 42 {
			seq42 = append(seq42, e.Action)
		}
	}
	for i, a := range actions {
		if seq42[i] != a {
			t.Fatalf("actor 42 event %d: expected %q, got %q", i, a, seq42[i])
		}
	}
}

func TestAuditDispatcher_ShardIndexIsStable(t *testing.T) {
	d := NewAuditDispatcher(8, &recordingRepo{}, zerolog.Nop())
	first := d.shardIndex(12345)
	for i := 0; i < 10; i++ {
		if got := d.shardIndex(12345); got != first {
			t.Fatalf("shard changed: %d != %d", got, first)
		}
	}
	if idx := d.shardIndex(-1); idx < 0 || idx >= 8 {
		t.Fatalf("shard out of range: %d", idx)
	}
}

func TestAuditDispatcher_DropsWhenFull(t *testing.T) {
	repo := &recordingRepo{}
	d := NewAuditDispatcher(1, repo, zerolog.Nop())

	// Workers not started: the channel fills and further events are dropped
	// without blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < channelBuffer+10; i++ {
			d.Record(domain.AuthzEvent{ActorID: 1, Action: "ask"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}
	if n := len(d.workers[0]); n != channelBuffer {
		t.Fatalf("expected full buffer of %d, got %d", channelBuffer, n)
	}
}

func TestAuditDispatcher_WriteFailureDoesNotStopWorker(t *testing.T) {
	repo := &recordingRepo{err: errors.New("mongo down")}
	d := NewAuditDispatcher(1, repo, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	d.Record(domain.AuthzEvent{ActorID: 1, Action: "ask"})
	d.Record(domain.AuthzEvent{ActorID: 1, Action: "read"})
	cancel()
	d.Wait()

	if n := len(d.workers[0]); n != 0 {
		t.Fatalf("expected queue drained, %d left", n)
	}
}
