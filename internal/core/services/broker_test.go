package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefix/backend/internal/domain"
)

// collector is a subscriber send function that records everything it
// receives, safe for concurrent broadcasts.
type collector struct {
	mu       sync.Mutex
	messages []domain.ProgressMessage
	failWith error
}

func (c *collector) send(msg domain.ProgressMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return c.failWith
	}
	c.messages = append(c.messages, msg)
	return nil
}

func (c *collector) received() []domain.ProgressMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ProgressMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

func TestBrokerBroadcastReachesAllSubscribers(t *testing.T) {
	t.Parallel()

	broker := NewProgressBroker(testLogger(t))
	a, b := &collector{}, &collector{}
	broker.Register("task-1", "client-a", a.send)
	broker.Register("task-1", "client-b", b.send)

	msg := domain.ProgressMessage{TaskID: "task-1", EventType: domain.EventStageUpdate, Stage: domain.StageArchitect}
	broker.Broadcast("task-1", msg)

	assert.Equal(t, []domain.ProgressMessage{msg}, a.received())
	assert.Equal(t, []domain.ProgressMessage{msg}, b.received())
}

func TestBrokerBroadcastIsolatedPerTask(t *testing.T) {
	t.Parallel()

	broker := NewProgressBroker(testLogger(t))
	a, b := &collector{}, &collector{}
	broker.Register("task-1", "client-a", a.send)
	broker.Register("task-2", "client-b", b.send)

	broker.Broadcast("task-1", domain.ProgressMessage{TaskID: "task-1"})

	assert.Len(t, a.received(), 1)
	assert.Empty(t, b.received())
}

func TestBrokerBroadcastNoSubscribersIsNoop(t *testing.T) {
	t.Parallel()

	broker := NewProgressBroker(testLogger(t))
	assert.NotPanics(t, func() {
		broker.Broadcast("ghost", domain.ProgressMessage{TaskID: "ghost"})
	})
	assert.Equal(t, 0, broker.TotalConnections())
}

func TestBrokerSendFailureUnregistersSubscriber(t *testing.T) {
	t.Parallel()

	broker := NewProgressBroker(testLogger(t))
	healthy := &collector{}
	broken := &collector{failWith: errors.New("connection reset")}
	broker.Register("task-1", "healthy", healthy.send)
	broker.Register("task-1", "broken", broken.send)

	broker.Broadcast("task-1", domain.ProgressMessage{TaskID: "task-1"})

	assert.Len(t, healthy.received(), 1)
	assert.Equal(t, []string{"healthy"}, broker.TaskClients("task-1"))

	// The next broadcast no longer sees the broken subscriber.
	broker.Broadcast("task-1", domain.ProgressMessage{TaskID: "task-1"})
	assert.Len(t, healthy.received(), 2)
	assert.Equal(t, 1, broker.TotalConnections())
}

func TestBrokerUnregisterIdempotent(t *testing.T) {
	t.Parallel()

	broker := NewProgressBroker(testLogger(t))
	c := &collector{}
	broker.Register("task-1", "client-a", c.send)

	broker.Unregister("task-1", "client-a")
	broker.Unregister("task-1", "client-a")
	broker.Unregister("never-registered", "client-x")

	assert.Equal(t, 0, broker.TotalConnections())
	assert.Empty(t, broker.TaskClients("task-1"))
}

func TestBrokerEvictIdleRemovesOnlyStale(t *testing.T) {
	t.Parallel()

	broker := NewProgressBroker(testLogger(t))
	stale, fresh := &collector{}, &collector{}
	broker.Register("task-1", "stale", stale.send)
	broker.Register("task-1", "fresh", fresh.send)

	time.Sleep(20 * time.Millisecond)
	broker.Touch("task-1", "fresh")

	removed := broker.EvictIdle(10 * time.Millisecond)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"fresh"}, broker.TaskClients("task-1"))
}

func TestBrokerBroadcastCountsAsActivity(t *testing.T) {
	t.Parallel()

	broker := NewProgressBroker(testLogger(t))
	c := &collector{}
	broker.Register("task-1", "client-a", c.send)

	time.Sleep(20 * time.Millisecond)
	broker.Broadcast("task-1", domain.ProgressMessage{TaskID: "task-1"})

	removed := broker.EvictIdle(10 * time.Millisecond)
	assert.Equal(t, 0, removed)
	assert.Equal(t, 1, broker.TotalConnections())
}

func TestBrokerConcurrentRegisterAndBroadcast(t *testing.T) {
	t.Parallel()

	broker := NewProgressBroker(testLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		clientID := fmt.Sprintf("client-%d", i)
		go func() {
			defer wg.Done()
			broker.Register("task-1", clientID, (&collector{}).send)
		}()
		go func() {
			defer wg.Done()
			broker.Broadcast("task-1", domain.ProgressMessage{TaskID: "task-1"})
		}()
	}
	wg.Wait()

	require.Equal(t, 20, broker.TotalConnections())
	assert.Len(t, broker.TaskClients("task-1"), 20)
}
