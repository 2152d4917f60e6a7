// Package resource contains the bodies run inside the critical section.
package resource

import (
	"time"

	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/logging"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/mutex"
)

// Hold simulates the use of the shared resource by keeping it for a fixed duration.
type Hold struct {
	logger   *logging.Logger
	duration time.Duration
	sleep    func(time.Duration)
}

// NewHold returns a body keeping the resource for the given duration.
func NewHold(logger *logging.Logger, duration time.Duration) *Hold {
	return &Hold{
		logger:   logger,
		duration: duration,
		sleep:    time.Sleep,
	}
}

func (h *Hold) Run(c mutex.Cycle) error {
	h.logger.Infof("Using the shared resource for %v (cycle %s)", h.duration, c.ID)
	h.sleep(h.duration)
	h.logger.Info("Done with the shared resource")
	return nil
}
