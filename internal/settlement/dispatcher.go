package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

type Options struct {
	AttemptTimeout time.Duration
	MaxAttempts    uint
	InitialBackoff time.Duration
	MaxElapsed     time.Duration
}

// Dispatcher runs settlement calls off the room's hot path with a bounded
// retry budget and records exhausted calls in the ledger.
type Dispatcher struct {
	svc    Service
	ledger Ledger
	opts   Options
	log    *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewDispatcher(svc Service, ledger Ledger, opts Options, log *logrus.Entry) *Dispatcher {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 5
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = backoff.DefaultInitialInterval
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		svc:    svc,
		ledger: ledger,
		opts:   opts,
		log:    log.WithField("component", "settlement"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Dispatch starts the settlement call and returns immediately. done is
// invoked exactly once with the final receipt or error.
// After Close the request is not attempted; it goes straight to the ledger.
func (d *Dispatcher) Dispatch(req Request, done func(Receipt, error)) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.WithFields(logrus.Fields{"room": req.RoomCode, "settlement": req.ID}).
			Error("settlement requested after shutdown")
		d.recordFailure(req, ErrClosed, 0)
		if done != nil {
			done(Receipt{}, fmt.Errorf("%w: %w", ErrSettlementFailure, ErrClosed))
		}
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		rcpt, err := d.settle(req)
		if done != nil {
			done(rcpt, err)
		}
	}()
}

func (d *Dispatcher) settle(req Request) (Receipt, error) {
	logCtx := d.log.WithFields(logrus.Fields{
		"room":       req.RoomCode,
		"settlement": req.ID,
		"result":     req.Outcome.Result,
	})

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.opts.InitialBackoff

	attempts := 0
	op := func() (Receipt, error) {
		attempts++
		ctx, cancel := context.WithTimeout(d.ctx, d.opts.AttemptTimeout)
		defer cancel()
		rcpt, err := d.svc.NotifyOutcome(ctx, req)
		if err != nil {
			return Receipt{}, err
		}
		if !rcpt.Accepted {
			return rcpt, backoff.Permanent(ErrRejected)
		}
		return rcpt, nil
	}

	rcpt, err := backoff.Retry(d.ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(d.opts.MaxAttempts),
		backoff.WithMaxElapsedTime(d.opts.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			logCtx.WithError(err).Warnf("settlement attempt failed, retrying in %s", next)
		}),
	)
	if err == nil {
		logCtx.WithField("reference", rcpt.Reference).Info("settlement accepted")
		return rcpt, nil
	}

	logCtx.WithError(err).WithField("attempts", attempts).Error("settlement failed")
	d.recordFailure(req, err, attempts)
	if errors.Is(err, ErrRejected) {
		return rcpt, fmt.Errorf("%w: %w", ErrSettlementFailure, err)
	}
	return rcpt, fmt.Errorf("%w after %d attempts: %w", ErrSettlementFailure, attempts, err)
}

func (d *Dispatcher) recordFailure(req Request, err error, attempts int) {
	f := Failure{Request: req, Error: err.Error(), Attempts: attempts, FailedAt: time.Now().UTC()}
	// the dispatcher context may already be cancelled during shutdown
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.AttemptTimeout)
	defer cancel()
	if lerr := d.ledger.RecordFailure(ctx, f); lerr != nil {
		d.log.WithError(lerr).WithField("settlement", req.ID).Error("failed to record settlement failure")
	}
}

// Close waits for in-flight settlements. If ctx expires first, pending
// retries are abandoned and recorded as failures.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-finished
		return ctx.Err()
	}
}
