package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

func recv(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case e, ok := <-s.C():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestBus(t *testing.T) {
	t.Run("fan out in publish order", func(t *testing.T) {
		bus := NewBus(nil)
		a := bus.Subscribe(8)
		b := bus.Subscribe(8)
		defer a.Close()
		defer b.Close()

		for i := 0; i < 3; i++ {
			bus.Publish(Event{Topic: TopicProgress, TaskID: "t1", Progress: &Progress{TaskID: "t1", Progress: float64(i * 10)}})
		}

		for _, s := range []*Subscription{a, b} {
			var last uint64
			for i := 0; i < 3; i++ {
				e := recv(t, s)
				if e.Seq <= last {
					t.Errorf("events out of order: seq %d after %d", e.Seq, last)
				}
				last = e.Seq
				if e.Progress.Progress != float64(i*10) {
					t.Errorf("progress = %v, want %v", e.Progress.Progress, i*10)
				}
			}
		}
	})

	t.Run("topic filter", func(t *testing.T) {
		bus := NewBus(nil)
		s := bus.Subscribe(4, TopicSession)
		defer s.Close()

		bus.Publish(Event{Topic: TopicCompleted, TaskID: "t1"})
		bus.Publish(Event{Topic: TopicSession, PlatformID: "x"})

		e := recv(t, s)
		if e.Topic != TopicSession || e.PlatformID != "x" {
			t.Errorf("unexpected event %+v", e)
		}
	})

	t.Run("full buffer drops then resyncs", func(t *testing.T) {
		bus := NewBus(nil)
		s := bus.Subscribe(2)
		defer s.Close()

		for i := 0; i < 5; i++ {
			bus.Publish(Event{Topic: TopicProgress, TaskID: "t1"})
		}

		recv(t, s)
		recv(t, s)

		bus.Publish(Event{Topic: TopicCompleted, TaskID: "t1"})
		if e := recv(t, s); e.Topic != TopicResync {
			t.Fatalf("expected resync after drop, got %s", e.Topic)
		}
		if e := recv(t, s); e.Topic != TopicCompleted {
			t.Fatalf("expected completed after resync, got %s", e.Topic)
		}
	})

	t.Run("publish never blocks on a stalled subscriber", func(t *testing.T) {
		bus := NewBus(nil)
		stalled := bus.Subscribe(1)
		defer stalled.Close()

		done := make(chan struct{})
		go func() {
			for i := 0; i < 1000; i++ {
				bus.Publish(Event{Topic: TopicProgress, TaskID: "t1"})
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("publisher blocked")
		}
	})

	t.Run("close is idempotent and releases the channel", func(t *testing.T) {
		bus := NewBus(nil)
		s := bus.Subscribe(1)
		s.Close()
		s.Close()

		if _, ok := <-s.C(); ok {
			t.Error("expected closed channel")
		}
		if bus.Len() != 0 {
			t.Errorf("expected no subscribers, got %d", bus.Len())
		}
		bus.Publish(Event{Topic: TopicCompleted})
	})

	t.Run("bus close", func(t *testing.T) {
		bus := NewBus(nil)
		s := bus.Subscribe(1)
		bus.Close()

		if _, ok := <-s.C(); ok {
			t.Error("expected closed channel after bus close")
		}
		late := bus.Subscribe(1)
		if _, ok := <-late.C(); ok {
			t.Error("subscribe after close should return a closed handle")
		}
		s.Close()
	})

	t.Run("concurrent publish and close", func(t *testing.T) {
		bus := NewBus(nil)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				s := bus.Subscribe(4)
				for j := 0; j < 50; j++ {
					bus.Publish(Event{Topic: TopicProgress, TaskID: fmt.Sprintf("t%d", i)})
				}
				s.Close()
			}(i)
		}
		wg.Wait()
		if bus.Len() != 0 {
			t.Errorf("expected all subscribers released, got %d", bus.Len())
		}
	})
}

func TestPayload(t *testing.T) {
	tc := []struct {
		event Event
		want  any
	}{
		{event: Event{Topic: TopicCompleted, TaskID: "t1"}, want: TaskPayload{TaskID: "t1"}},
		{event: Event{Topic: TopicSession, PlatformID: "x"}, want: SessionPayload{PlatformID: "x"}},
		{event: Event{Topic: TopicResync}, want: struct{}{}},
		{event: Event{Topic: TopicProgress, TaskID: "t2"}, want: Progress{TaskID: "t2"}},
	}

	for _, tt := range tc {
		t.Run(string(tt.event.Topic), func(t *testing.T) {
			if got := tt.event.Payload(); got != tt.want {
				t.Errorf("Payload() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	total := int64(2048)
	sent := []Event{
		{Topic: TopicProgress, TaskID: "t1", Progress: &Progress{TaskID: "t1", Progress: 42.5, Speed: "1.00MiB/s", TotalBytes: &total}},
		{Topic: TopicFailed, TaskID: "t2"},
		{Topic: TopicSession, PlatformID: "tiktok"},
		{Topic: TopicResync},
	}

	for _, e := range sent {
		t.Run(string(e.Topic), func(t *testing.T) {
			data, err := json.Marshal(e.Payload())
			if err != nil {
				t.Fatalf("marshal failed: %v", err)
			}
			got, err := Decode(e.Topic, 7, data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got.Seq != 7 || got.TaskID != e.TaskID || got.PlatformID != e.PlatformID {
				t.Errorf("Decode = %+v, want %+v", got, e)
			}
			if e.Progress != nil {
				if got.Progress == nil || got.Progress.Progress != 42.5 || *got.Progress.TotalBytes != total {
					t.Errorf("progress = %+v", got.Progress)
				}
			}
		})
	}

	if _, err := Decode(TopicCompleted, 1, []byte("{")); err == nil {
		t.Error("expected error for malformed payload")
	}
}
