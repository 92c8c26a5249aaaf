package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: with buffers large enough, every subscriber receives every event
// published on its topic, in publish order.
func TestProperty_AllSubscribersReceiveEvents(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20

	properties := gopter.NewProperties(parameters)

	properties.Property("fast subscribers receive all events in order", prop.ForAll(
		func(subscriberCount int, eventCount int) bool {
			hub := NewHubWithConfig(HubConfig{BufferSize: 100, SubscriberBufferSize: 100})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			hub.Start(ctx)
			defer hub.Stop()

			channels := make([]<-chan Event, subscriberCount)
			for i := range channels {
				channels[i] = hub.Subscribe(TopicRefresh, "")
			}

			var wg sync.WaitGroup
			var failures int64
			for _, ch := range channels {
				wg.Add(1)
				go func(ch <-chan Event) {
					defer wg.Done()
					timeout := time.After(5 * time.Second)
					for want := 0; want < eventCount; want++ {
						select {
						case ev, ok := <-ch:
							if !ok || ev.Data.(int) != want {
								atomic.AddInt64(&failures, 1)
								return
							}
						case <-timeout:
							atomic.AddInt64(&failures, 1)
							return
						}
					}
				}(ch)
			}

			for i := 0; i < eventCount; i++ {
				if !hub.Publish(TopicRefresh, i) {
					return false
				}
			}
			wg.Wait()

			return atomic.LoadInt64(&failures) == 0
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}

func TestHubTopicsAreIsolated(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	defer hub.Stop()

	refresh := hub.Subscribe(TopicRefresh, "a")
	other := hub.Subscribe("other", "b")

	hub.Publish(TopicRefresh, "running")

	select {
	case ev := <-refresh:
		if ev.Topic != TopicRefresh || ev.Data != "running" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("refresh subscriber got nothing")
	}

	select {
	case ev := <-other:
		t.Errorf("other topic received %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHubWithConfig(HubConfig{BufferSize: 10, SubscriberBufferSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	defer hub.Stop()

	slow := hub.Subscribe(TopicRefresh, "slow")
	for i := 0; i < 5; i++ {
		hub.Publish(TopicRefresh, i)
	}

	deadline := time.Now().Add(time.Second)
	for m := hub.Metrics(); m.Delivered+m.Dropped < 5 && time.Now().Before(deadline); m = hub.Metrics() {
		time.Sleep(time.Millisecond)
	}

	m := hub.Metrics()
	if m.Received != 5 || m.Delivered != 1 || m.Dropped != 4 {
		t.Errorf("metrics = %+v", m)
	}
	if ev := <-slow; ev.Data.(int) != 0 {
		t.Errorf("first event = %v", ev.Data)
	}
}

func TestUnsubscribe(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(TopicRefresh, "x")
	if hub.SubscriberCount(TopicRefresh) != 1 {
		t.Fatal("subscriber not registered")
	}

	hub.Unsubscribe(TopicRefresh, ch)
	if _, ok := <-ch; ok {
		t.Error("channel not closed")
	}
	if hub.SubscriberCount(TopicRefresh) != 0 {
		t.Error("subscriber not removed")
	}

	// Unknown channel is ignored.
	hub.Unsubscribe(TopicRefresh, ch)
}
