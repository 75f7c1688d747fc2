package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryClient is an in-process FIFO queue used by tests and the seed-test
// scenarios in place of a real Globus queue.
type MemoryClient struct {
	mu     sync.Mutex
	queues map[string][]pendingMessage
}

type pendingMessage struct {
	msg           Message
	receiptHandle string
}

// NewMemoryClient creates an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{queues: make(map[string][]pendingMessage)}
}

// Push enqueues a message body onto queueID for a subsequent Receive.
func (c *MemoryClient) Push(queueID, body string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queues[queueID] = append(c.queues[queueID], pendingMessage{
		msg:           Message{MessageID: uuid.New().String(), MessageBody: body},
		receiptHandle: uuid.New().String(),
	})
}

func (c *MemoryClient) Receive(_ context.Context, queueID, _ string, max int) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := c.queues[queueID]
	if len(pending) > max {
		pending = pending[:max]
	}

	out := make([]Message, 0, len(pending))
	for _, p := range pending {
		m := p.msg
		m.ReceiptHandle = p.receiptHandle
		out = append(out, m)
	}
	return out, nil
}

func (c *MemoryClient) Delete(_ context.Context, queueID, _ string, receiptHandle string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := c.queues[queueID]
	for i, p := range pending {
		if p.receiptHandle == receiptHandle {
			c.queues[queueID] = append(pending[:i], pending[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("receipt handle %q not found", receiptHandle)
}
