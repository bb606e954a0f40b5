/*

Package `sweep` periodically enumerates folders that are scheduled for the
vault copy and invokes the secure workflow on each.  The scan delivers
at-least-once: a folder that is picked up twice is handled by the workflow's
prechecks and the state machine's idempotent transitions.

*/
package sweep

import (
	"context"

	"github.com/rdvproject/rdv/backend/internal/identity"
	"github.com/rdvproject/rdv/backend/internal/secure"
	"github.com/rdvproject/rdv/backend/pkg/errorsx"
	"golang.org/x/sync/semaphore"
)

type Logger interface {
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
}

// `Processor` runs the secure workflow on one folder at a time.  Workflow
// outcomes are handled here, so that the scanner only sees errors that
// should end the scan, like context cancelation.
type Processor struct {
	lg       Logger
	workflow *secure.Workflow
	// `ctxSlow` gives a running copy more time during graceful shutdown.
	// The caller cancels `ProcessFolder(ctx)` immediately and `ctxSlow`
	// later, after a grace period.
	ctxSlow context.Context
	// A semaphore with combined weight 1 serializes runs with context
	// cancelation.  A plain mutex does not support context.
	lock *semaphore.Weighted
}

func NewProcessor(
	ctxSlow context.Context, lg Logger, workflow *secure.Workflow,
) *Processor {
	return &Processor{
		lg:       lg,
		workflow: workflow,
		ctxSlow:  ctxSlow,
		lock:     semaphore.NewWeighted(1),
	}
}

func (p *Processor) ProcessFolder(ctx context.Context, folder string) error {
	if err := p.lock.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.lock.Release(1)

	err := p.workflow.Secure(p.ctxSlow, identity.SystemUser, folder)
	switch {
	case err == nil:
		break
	case secure.IsPrecheckError(err):
		p.lg.Infow(
			"Skipped folder.",
			"folder", folder,
			"reason", err,
		)
	case secure.IsRetryableError(err):
		// A copy aborted by shutdown is rescheduled like any other
		// failure, but it ends the sweep instead of warning.  The
		// cancelation may be wrapped in a store error.
		if errorsx.Is(err, context.Canceled) {
			p.lg.Infow(
				"Stopped vault copy; will retry.",
				"folder", folder,
			)
			return p.ctxSlow.Err()
		}
		p.lg.Warnw(
			"Vault copy failed; will retry.",
			"folder", folder,
			"err", err,
		)
	case secure.IsUnrecoverableError(err):
		p.lg.Errorw(
			"Vault copy failed permanently.",
			"folder", folder,
			"err", err,
		)
	default:
		return err
	}

	return ctx.Err()
}
