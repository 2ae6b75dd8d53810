package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/lib/pq"
)

const (
	defaultMaxAttempts = 5
	baseBackoff        = 10 * time.Millisecond
	maxBackoff         = 200 * time.Millisecond
)

// errConflict marks an attempt that lost an optimistic race
var errConflict = errors.New("optimistic conflict")

// runWithRetry calls attempt until it succeeds, fails with a non-conflict error, or
// maxAttempts conflicts have occurred
func runWithRetry(ctx context.Context, maxAttempts int, attempt func() error) error {
	var lastErr error
	for i := 1; i <= maxAttempts; i++ {
		err := attempt()
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return err
		}

		lastErr = err
		util.TxConflictsTotal.Inc()
		if i == maxAttempts {
			break
		}
		if err := sleepBackoff(ctx, i); err != nil {
			return err
		}
	}

	util.TxAbortedTotal.Inc()
	return fmt.Errorf("%w: %v", models.ErrTxAborted, lastErr)
}

// isConflict reports whether err is a retryable concurrency failure
func isConflict(err error) bool {
	if errors.Is(err, errConflict) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
	}
	return false
}

func sleepBackoff(ctx context.Context, attempt int) error {
	d := baseBackoff << uint(attempt-1)
	if d > maxBackoff {
		d = maxBackoff
	}
	d += time.Duration(rand.Int63n(int64(d)/2 + 1))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
