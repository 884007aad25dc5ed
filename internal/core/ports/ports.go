package ports

import (
	"context"
	"time"
)

// Task is the unit of work carried by a TaskQueue.
type Task struct {
	DocumentID string    `json:"documentId"`
	OwnerID    string    `json:"ownerId,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Version    int       `json:"version"`
}

type TaskHandler func(ctx context.Context, task Task) error

const TaskVersion = 1
