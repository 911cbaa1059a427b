package services

import (
	"sync"
	"time"

	"github.com/codefix/backend/internal/core/ports"
	"github.com/codefix/backend/internal/domain"
	"github.com/codefix/backend/internal/infrastructure/logger"
)

// subscriber is one live connection attached to a task's progress stream.
// The broker owns the registry entry; the transport owns the connection
// behind the send function and closes it on disconnect.
type subscriber struct {
	clientID string
	send     ports.SendFunc

	mu         sync.Mutex
	lastActive time.Time
}

func (s *subscriber) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *subscriber) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive.Before(cutoff)
}

// ProgressBroker multiplexes task progress events to any number of
// subscribers. The registry lock covers structural changes only; delivery
// happens against a snapshot so one slow connection cannot block another
// task's broadcast.
type ProgressBroker struct {
	mu     sync.RWMutex
	tasks  map[string]map[string]*subscriber
	logger *logger.Logger
}

func NewProgressBroker(log *logger.Logger) *ProgressBroker {
	return &ProgressBroker{
		tasks:  make(map[string]map[string]*subscriber),
		logger: log,
	}
}

var _ ports.ProgressBroker = (*ProgressBroker)(nil)

func (b *ProgressBroker) Register(taskID, clientID string, send ports.SendFunc) {
	sub := &subscriber{
		clientID:   clientID,
		send:       send,
		lastActive: time.Now(),
	}

	b.mu.Lock()
	bucket, ok := b.tasks[taskID]
	if !ok {
		bucket = make(map[string]*subscriber)
		b.tasks[taskID] = bucket
	}
	bucket[clientID] = sub
	b.mu.Unlock()

	b.logger.Infow("broker_register", "task_id", taskID, "client_id", clientID)
}

func (b *ProgressBroker) Unregister(taskID, clientID string) {
	b.mu.Lock()
	bucket, ok := b.tasks[taskID]
	if ok {
		delete(bucket, clientID)
		if len(bucket) == 0 {
			delete(b.tasks, taskID)
		}
	}
	b.mu.Unlock()

	if ok {
		b.logger.Infow("broker_unregister", "task_id", taskID, "client_id", clientID)
	}
}

// Broadcast delivers msg to every subscriber of the task known at call
// time. Delivery failures are isolated per subscriber and converted into
// an automatic unregister; Broadcast itself never fails.
func (b *ProgressBroker) Broadcast(taskID string, msg domain.ProgressMessage) {
	b.mu.RLock()
	bucket, ok := b.tasks[taskID]
	if !ok {
		b.mu.RUnlock()
		return
	}
	subs := make([]*subscriber, 0, len(bucket))
	for _, sub := range bucket {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.send(msg); err != nil {
			b.logger.Warnw("broker_send_failed", "task_id", taskID, "client_id", sub.clientID, "error", err)
			b.Unregister(taskID, sub.clientID)
			continue
		}
		sub.touch()
	}
}

func (b *ProgressBroker) Touch(taskID, clientID string) {
	b.mu.RLock()
	var sub *subscriber
	if bucket, ok := b.tasks[taskID]; ok {
		sub = bucket[clientID]
	}
	b.mu.RUnlock()

	if sub != nil {
		sub.touch()
	}
}

// EvictIdle drops every subscriber whose last activity is older than
// timeout. Meant to run periodically, independent of broadcast traffic.
func (b *ProgressBroker) EvictIdle(timeout time.Duration) int {
	cutoff := time.Now().Add(-timeout)

	type target struct {
		taskID   string
		clientID string
	}

	b.mu.RLock()
	var idle []target
	for taskID, bucket := range b.tasks {
		for clientID, sub := range bucket {
			if sub.idleSince(cutoff) {
				idle = append(idle, target{taskID: taskID, clientID: clientID})
			}
		}
	}
	b.mu.RUnlock()

	for _, t := range idle {
		b.Unregister(t.taskID, t.clientID)
	}

	if len(idle) > 0 {
		b.logger.Infow("broker_evict_idle", "removed", len(idle), "timeout", timeout)
	}
	return len(idle)
}

func (b *ProgressBroker) TaskClients(taskID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bucket := b.tasks[taskID]
	clients := make([]string, 0, len(bucket))
	for clientID := range bucket {
		clients = append(clients, clientID)
	}
	return clients
}

func (b *ProgressBroker) TotalConnections() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, bucket := range b.tasks {
		total += len(bucket)
	}
	return total
}
