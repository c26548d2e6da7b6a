package relval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jacentio/relval/model"
)

// Remote performs the external submission of a request and returns the
// names of the workflows it created.
type Remote interface {
	Submit(ctx context.Context, request model.Object) ([]string, error)
}

// DryRunRemote pretends to submit requests. Each submission yields one
// workflow named after the request with a random suffix.
type DryRunRemote struct {
	// Delay simulates the duration of the remote call.
	Delay time.Duration

	Logger *slog.Logger
}

// Submit implements Remote.
func (r DryRunRemote) Submit(ctx context.Context, request model.Object) ([]string, error) {
	if r.Delay > 0 {
		timer := time.NewTimer(r.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	prepid, _ := request["prepid"].(string)
	workflow := fmt.Sprintf("%s_%s", prepid, uuid.NewString())
	if r.Logger != nil {
		r.Logger.Info("dry run submission", "request", prepid, "workflow", workflow)
	}
	return []string{workflow}, nil
}
