package handshake

import (
	"testing"
	"time"

	"github.com/danmuck/peerprobe/internal/handshake/mailbox"
	"github.com/danmuck/peerprobe/internal/testutil/testlog"
)

func startRecorder(t *testing.T) (*mailbox.Mailbox[Event], *Shutdown, <-chan *EventChain) {
	t.Helper()
	box := mailbox.New[Event]()
	sd := NewShutdown()
	done := make(chan *EventChain, 1)
	rec := NewRecorder(NewEventChain("10.0.0.1:8333"), box, sd)
	go func() {
		done <- rec.Run()
	}()
	return box, sd, done
}

func waitChain(t *testing.T, done <-chan *EventChain) *EventChain {
	t.Helper()
	select {
	case chain := <-done:
		return chain
	case <-time.After(2 * time.Second):
		t.Fatalf("recorder did not stop")
		return nil
	}
}

func TestRecorderCompletesOnFourEvents(t *testing.T) {
	testlog.Start(t)
	box, sd, done := startRecorder(t)

	_ = box.Send(NewEvent("version", Out))
	_ = box.Send(NewEvent("version", In))
	_ = box.Send(NewEvent("verack", Out))
	_ = box.Send(NewEvent("verack", In))

	chain := waitChain(t, done)
	if !chain.Complete || chain.Len() != ExpectedHandshakeMessages {
		t.Fatalf("expected complete chain of 4, got complete=%v len=%d", chain.Complete, chain.Len())
	}
	if sd.Cause() != CauseComplete {
		t.Fatalf("expected completion to fire shutdown, cause=%s", sd.Cause())
	}
	if chain.ClosedAt.IsZero() {
		t.Fatalf("chain should be closed")
	}
}

func TestRecorderStopsOnExternalShutdown(t *testing.T) {
	testlog.Start(t)
	box, sd, done := startRecorder(t)

	_ = box.Send(NewEvent("version", Out))
	time.Sleep(20 * time.Millisecond)
	sd.Fire(CauseTimeout)

	chain := waitChain(t, done)
	if chain.Complete {
		t.Fatalf("chain should not be complete")
	}
	if chain.Len() != 1 {
		t.Fatalf("expected 1 event, got %d", chain.Len())
	}
	if err := box.Send(NewEvent("late", In)); err == nil {
		t.Fatalf("mailbox should reject events after the recorder stopped")
	}
}

func TestRecorderIgnoresEventsBeyondCompletion(t *testing.T) {
	testlog.Start(t)
	box, _, done := startRecorder(t)

	for i := 0; i < 6; i++ {
		_ = box.Send(NewEvent("ping", In))
	}
	chain := waitChain(t, done)
	if chain.Len() != ExpectedHandshakeMessages || !chain.Complete {
		t.Fatalf("expected exactly 4 recorded events, got %d complete=%v", chain.Len(), chain.Complete)
	}
}

func TestEventChainTimings(t *testing.T) {
	testlog.Start(t)
	chain := NewEventChain("id")
	if chain.Elapsed() != 0 {
		t.Fatalf("empty open chain should have zero elapsed")
	}
	first := NewEvent("version", Out)
	first.At = chain.StartedAt.Add(5 * time.Millisecond)
	second := NewEvent("version", In, Attribute{Key: "vers", Value: "70016"})
	second.At = first.At.Add(10 * time.Millisecond)
	chain.Add(first)
	chain.Add(second)

	if chain.Since(0) != 5*time.Millisecond || chain.Since(1) != 10*time.Millisecond {
		t.Fatalf("unexpected gaps: %v %v", chain.Since(0), chain.Since(1))
	}
	if chain.Elapsed() != 15*time.Millisecond {
		t.Fatalf("unexpected open elapsed: %v", chain.Elapsed())
	}
	if got := second.String(); got != "version <<< (vers:70016)" {
		t.Fatalf("unexpected event string: %q", got)
	}
	if chain.Index("version", In) != 1 || chain.Count("version", Out) != 1 {
		t.Fatalf("unexpected index/count")
	}
}
