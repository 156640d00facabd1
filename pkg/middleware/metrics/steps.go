package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/joeydtaylor/steeze-connect/pkg/connectivity"
)

// ObserveStep records one finished call chain step. Wire it with
// connectivity.WithStepObserver.
func ObserveStep(step connectivity.Step, err error, elapsed time.Duration) {
	destinationSteps.WithLabelValues(string(step), outcome(err)).Inc()
	destinationStepDuration.WithLabelValues(string(step)).Observe(elapsed.Seconds())
}

var _ connectivity.StepObserver = ObserveStep

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case connectivity.IsStatus(err, 0):
		return "status"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
