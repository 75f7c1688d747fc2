// Package action implements the client for the Globus-Automate-shaped
// action provider that a trigger dispatches events to.
package action

import (
	"context"

	"github.com/c360studio/triggers/internal/trigger"
)

// Client is the contract for running an action, polling its status, and
// releasing a completed one from the provider's bookkeeping.
type Client interface {
	Run(ctx context.Context, actionURL, authHeader, requestID string, body map[string]any) (*trigger.ActionStatus, error)
	Status(ctx context.Context, actionURL, authHeader, actionID string) (*trigger.ActionStatus, error)
	Release(ctx context.Context, actionURL, authHeader, actionID string) (*trigger.ActionStatus, error)
}
