package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/codefix/backend/internal/core/ports"
	"github.com/codefix/backend/internal/core/services"
	"github.com/codefix/backend/internal/domain"
	"github.com/codefix/backend/internal/infrastructure/logger"
)

// WSHandler attaches a WebSocket connection to a task's progress stream.
// It owns the connection; the broker only ever sees the send function and
// is told to forget the client when the connection dies.
type WSHandler struct {
	store        ports.TaskStore
	broker       ports.ProgressBroker
	readDeadline time.Duration
	logger       *logger.Logger
}

func NewWSHandler(store ports.TaskStore, broker ports.ProgressBroker, readDeadline time.Duration, log *logger.Logger) *WSHandler {
	return &WSHandler{
		store:        store,
		broker:       broker,
		readDeadline: readDeadline,
		logger:       log,
	}
}

func (h *WSHandler) Handle(c *websocket.Conn) {
	taskID := c.Params("task_id")

	task, err := h.store.Get(context.Background(), taskID)
	if err != nil {
		if errors.Is(err, services.ErrTaskNotFound) {
			h.logger.Warnw("ws_unknown_task", "task_id", taskID)
			c.WriteJSON(domain.ProgressMessage{
				TaskID:    taskID,
				EventType: domain.EventFailed,
				Message:   "task not found",
			})
		} else {
			h.logger.Errorw("ws_get_task_failed", "task_id", taskID, "error", err)
		}
		c.Close()
		return
	}

	clientID := uuid.New().String()

	// Broadcast goroutines and this read loop both write to the conn;
	// the underlying websocket forbids concurrent writers.
	var writeMu sync.Mutex
	send := func(msg domain.ProgressMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return c.WriteJSON(msg)
	}

	h.broker.Register(taskID, clientID, send)
	h.logger.Infow("ws_connected", "task_id", taskID, "client_id", clientID)

	defer func() {
		h.broker.Unregister(taskID, clientID)
		c.Close()
		h.logger.Infow("ws_disconnected", "task_id", taskID, "client_id", clientID)
	}()

	// Late subscribers still get the current picture once; everything
	// after that arrives via broadcasts.
	snapshot := domain.ProgressMessage{
		TaskID:    taskID,
		EventType: domain.EventStageUpdate,
		Progress:  task.OverallProgress,
		Message:   task.Message,
	}
	if err := send(snapshot); err != nil {
		return
	}

	for {
		if h.readDeadline > 0 {
			c.SetReadDeadline(time.Now().Add(h.readDeadline))
		}
		mt, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if mt == websocket.TextMessage && string(data) == "ping" {
			h.broker.Touch(taskID, clientID)
			writeMu.Lock()
			err = c.WriteMessage(websocket.TextMessage, []byte("pong"))
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
