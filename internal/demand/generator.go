// Package demand makes a peer ask for the critical section at random intervals.
package demand

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/logging"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/mutex"
)

// Requester is the part of the engine the generator drives.
type Requester interface {
	BeginRequest() error
}

// Generator calls BeginRequest after each random wait.
type Generator struct {
	logger    *logging.Logger
	requester Requester

	minWait time.Duration
	maxWait time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

/*
NewGenerator creates a generator waiting between minWait and maxWait, both included, before each request.

Parameters:
  - logger: The logger to use for logging messages.
  - requester: Receives the BeginRequest calls.
  - minWait, maxWait: Bounds of the uniform wait.
  - source: Random source; nil seeds one from the current time.
*/
func NewGenerator(logger *logging.Logger, requester Requester, minWait, maxWait time.Duration, source rand.Source) (*Generator, error) {
	if minWait < 0 || maxWait < minWait {
		return nil, fmt.Errorf("invalid wait bounds [%v, %v]", minWait, maxWait)
	}
	if source == nil {
		source = rand.NewSource(time.Now().UnixNano())
	}
	return &Generator{
		logger:    logger,
		requester: requester,
		minWait:   minWait,
		maxWait:   maxWait,
		rnd:       rand.New(source),
	}, nil
}

func (g *Generator) nextWait() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.minWait + time.Duration(g.rnd.Int63n(int64(g.maxWait-g.minWait)+1))
}

// Run requests the critical section until ctx is cancelled.
func (g *Generator) Run(ctx context.Context) {
	for {
		wait := g.nextWait()
		g.logger.Infof("Waiting %v before next request", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			g.logger.Info("Demand generator stopped")
			return
		case <-timer.C:
		}

		if err := g.requester.BeginRequest(); err != nil {
			if errors.Is(err, mutex.ErrAlreadyRequesting) {
				g.logger.Warnf("Skipping this request: %v", err)
				continue
			}
			g.logger.Errorf("Request failed: %v", err)
		}
	}
}
