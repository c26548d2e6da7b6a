package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacentio/relval/model"
)

func newTransitionCmd(a *app, use, short string, fn func(ctx context.Context, id string) (model.Object, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <request-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			out, err := fn(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, out)
		}),
	}
}

func newApproveCmd(a *app) *cobra.Command {
	return newTransitionCmd(a, "approve", "Move a request from new to approved", func(ctx context.Context, id string) (model.Object, error) {
		return a.sys.Requests.Approve(ctx, id)
	})
}

func newResetCmd(a *app) *cobra.Command {
	return newTransitionCmd(a, "reset", "Move an approved request back to new", func(ctx context.Context, id string) (model.Object, error) {
		return a.sys.Requests.Reset(ctx, id)
	})
}

func newCompleteCmd(a *app) *cobra.Command {
	return newTransitionCmd(a, "complete", "Mark a submitted request as done", func(ctx context.Context, id string) (model.Object, error) {
		return a.sys.Requests.Complete(ctx, id)
	})
}

func newSubmitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <request-id>...",
		Short: "Submit approved requests and wait for the submissions to finish",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			jobs := make(map[string]string, len(args))
			var errs []error
			for _, id := range args {
				job, err := a.sys.Submitter.Submit(ctx, id)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				jobs[id] = job
			}
			// Closing the system drains the pool, so wait here to report
			// the final request states.
			a.sys.Pool.Stop()

			results := make([]model.Object, 0, len(jobs))
			for _, id := range args {
				if _, ok := jobs[id]; !ok {
					continue
				}
				out, ok, err := a.sys.Requests.Get(ctx, id)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if ok {
					results = append(results, out)
				}
			}
			if err := writeJSON(cmd, map[string]any{"jobs": jobs, "requests": results}); err != nil {
				errs = append(errs, err)
			}
			return errors.Join(errs...)
		}),
	}
}

func newCreateRequestsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create-requests <ticket-id>",
		Short: "Create one request per input dataset of a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			created, err := a.sys.Tickets.CreateRequests(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]any{"ticket": args[0], "created_requests": created})
		}),
	}
}

// pendingJob is the JSON form of a queued submission.
type pendingJob struct {
	ID       string    `json:"id"`
	Target   string    `json:"target"`
	Name     string    `json:"name"`
	Enqueued time.Time `json:"enqueued"`
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show submission workers and queued jobs",
		Args:  cobra.NoArgs,
		RunE: a.run(func(_ context.Context, cmd *cobra.Command, _ []string) error {
			pending := a.sys.Pool.Pending()
			jobs := make([]pendingJob, len(pending))
			for i, j := range pending {
				jobs[i] = pendingJob{ID: j.ID, Target: j.Target, Name: j.Name, Enqueued: j.Enqueued}
			}
			return writeJSON(cmd, map[string]any{
				"workers":     a.sys.Pool.Status(),
				"queue_depth": a.sys.Pool.QueueDepth(),
				"pending":     jobs,
			})
		}),
	}
}
