package timestamps

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// Clock supplies the values used to stamp requests.
type Clock interface {
	// Stamp returns the value to put on a new request.
	Stamp() float64
	// Witness is called with every timestamp seen on an incoming request.
	Witness(value float64)
}

// WallClock stamps requests with the current time, in seconds since the epoch.
type WallClock struct {
	now func() time.Time
}

// NewWallClock returns a clock reading the system time.
func NewWallClock() *WallClock {
	return &WallClock{now: time.Now}
}

func (c *WallClock) Stamp() float64 {
	return float64(c.now().UnixNano()) / float64(time.Second)
}

// Witness does nothing; wall clocks are not adjusted by remote timestamps.
func (c *WallClock) Witness(float64) {}

// MaxWitnessed is the largest value a [LamportClock] accepts from a peer. Above it, float64 no longer represents every integer.
const MaxWitnessed = 1 << 53

// LamportClock is a logical clock where the time is stored in memory.
//
// Each stamp is strictly greater than every stamp previously issued or witnessed, so requests never carry a value older than one the peer already answered.
type LamportClock struct {
	time uint64
}

// NewLamportClock creates a new logical clock starting at 0.
func NewLamportClock() *LamportClock {
	return &LamportClock{}
}

// Time is a getter for the current logical time.
func (c *LamportClock) Time() uint64 {
	return atomic.LoadUint64(&c.time)
}

func (c *LamportClock) Stamp() float64 {
	return float64(atomic.AddUint64(&c.time, 1))
}

// Witness advances the clock past value. Negative values, NaN and values above [MaxWitnessed] are ignored.
func (c *LamportClock) Witness(value float64) {
	if value < 0 || math.IsNaN(value) || value > MaxWitnessed {
		return
	}
	other := uint64(value)
	for {
		current := atomic.LoadUint64(&c.time)
		newTime := max(current, other) + 1
		if atomic.CompareAndSwapUint64(&c.time, current, newTime) {
			return
		}
	}
}

// NewClock returns the clock registered under the given name: "wall" or "lamport".
func NewClock(kind string) (Clock, error) {
	switch kind {
	case "wall", "":
		return NewWallClock(), nil
	case "lamport":
		return NewLamportClock(), nil
	default:
		return nil, fmt.Errorf("unknown clock %q, expected wall or lamport", kind)
	}
}
