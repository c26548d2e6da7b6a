package relval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jacentio/relval/controller"
	"github.com/jacentio/relval/model"
	"github.com/jacentio/relval/submission"
)

// Submitter queues approved requests for remote submission.
type Submitter struct {
	requests *Requests
	pool     *submission.Pool
	remote   Remote
	logger   *slog.Logger
}

// NewSubmitter creates a Submitter running jobs on pool.
func NewSubmitter(requests *Requests, pool *submission.Pool, remote Remote, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{requests: requests, pool: pool, remote: remote, logger: logger}
}

// Submit queues request id. The request must be approved. It returns the
// job identifier, or [submission.ErrAlreadyRunning] while request id is
// being submitted.
func (s *Submitter) Submit(ctx context.Context, id string) (string, error) {
	d, ok, err := s.requests.Document(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: request %s", controller.ErrNotFound, id)
	}
	switch status := d.String("status"); status {
	case RequestApproved:
	case RequestSubmitting:
		return "", fmt.Errorf("%w: request %s", submission.ErrAlreadyRunning, id)
	default:
		return "", &controller.VetoError{Collection: CollectionRequests, ID: id, Reason: fmt.Sprintf("request is %s, expected %s", status, RequestApproved)}
	}

	actor := controller.ActorFrom(ctx)
	return s.pool.Submit(id, "submit "+id, func(ctx context.Context) error {
		return s.run(controller.WithActor(ctx, actor), id)
	})
}

// run is the job body. The request lock is held from the status check to
// the final status flip, remote call included.
func (s *Submitter) run(ctx context.Context, id string) error {
	ctx, release, err := s.requests.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	out, err := s.requests.Mutate(ctx, id, "submitting", func(d *model.Document) error {
		if status := d.String("status"); status != RequestApproved {
			return controller.Vetof("request is %s, expected %s", status, RequestApproved)
		}
		_, err := d.Set("status", RequestSubmitting)
		return err
	})
	if err != nil {
		return fmt.Errorf("start submission of %s: %w", id, err)
	}

	workflows, remoteErr := s.remote.Submit(ctx, out)
	if remoteErr != nil {
		_, err := s.requests.Mutate(ctx, id, "submission failed", func(d *model.Document) error {
			_, err := d.Set("status", RequestApproved)
			return err
		})
		return errors.Join(fmt.Errorf("submit %s: %w", id, remoteErr), err)
	}

	_, err = s.requests.Mutate(ctx, id, "submitted", func(d *model.Document) error {
		names := make([]any, len(workflows))
		for i, w := range workflows {
			names[i] = w
		}
		if _, err := d.Set("workflows", names); err != nil {
			return err
		}
		_, err := d.Set("status", RequestSubmitted)
		return err
	})
	if err != nil {
		return fmt.Errorf("finish submission of %s: %w", id, err)
	}
	s.logger.Info("request submitted", "request", id, "workflows", workflows)
	return nil
}
