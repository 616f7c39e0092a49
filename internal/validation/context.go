package validation

import (
	"context"
	"time"

	dserrors "github.com/systmms/credrotate/internal/errors"
)

// Probe performs the actual credential test. It must honor ctx cancellation
// cooperatively and must be idempotent: on timeout the framework cancels ctx
// and returns without waiting for the probe to finish.
type Probe func(ctx context.Context) (Outcome, error)

// Context wraps one probe invocation with identity, metadata, and a
// wall-clock timeout.
type Context struct {
	CredentialID string
	Metadata     map[string]string
	Timeout      time.Duration
	IsRetry      bool
	RetryAttempt int
}

type probeResult struct {
	outcome Outcome
	err     error
}

// Validate runs the probe under the context's timeout. On expiry it returns
// a Timeout rotation error; the probe's context is cancelled but the
// in-flight probe is not waited for.
func (vc *Context) Validate(ctx context.Context, probe Probe) (Outcome, error) {
	probeCtx, cancel := context.WithTimeout(ctx, vc.Timeout)
	defer cancel()

	// Buffered so the probe goroutine can exit after we stop listening.
	results := make(chan probeResult, 1)
	start := time.Now()

	go func() {
		outcome, err := probe(probeCtx)
		results <- probeResult{outcome: outcome, err: err}
	}()

	select {
	case res := <-results:
		if res.err != nil {
			return Outcome{}, res.err
		}
		if res.outcome.Duration == 0 {
			res.outcome.Duration = time.Since(start)
		}
		return res.outcome, nil
	case <-probeCtx.Done():
		if ctx.Err() != nil {
			// Caller cancellation, not a probe timeout.
			return Outcome{}, ctx.Err()
		}
		return Outcome{}, dserrors.Timeout("credential_validation", int(vc.Timeout.Seconds()))
	}
}
