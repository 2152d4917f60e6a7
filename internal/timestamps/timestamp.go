package timestamps

import (
	"fmt"
	"strconv"
)

// Pid represents the identifier of a peer, as listed in the peer directory.
type Pid int

func (p Pid) String() string {
	return strconv.Itoa(int(p))
}

// Timestamp is defined by a request value and a peer identifier
type Timestamp struct {
	// The value stamped on the request, either wall-clock seconds or a logical counter.
	Value float64
	// The Pid of the peer on which the timestamp was generated. Used to break ties in values.
	Pid Pid
}

// LessThan returns true iff the timestamp is strictly less than the other timestamp, comparing values first and pids on ties.
func (ts Timestamp) LessThan(other Timestamp) bool {
	return ts.Value < other.Value || (ts.Value == other.Value && ts.Pid < other.Pid)
}

// GreaterThan returns true iff the timestamp is strictly greater than the other timestamp.
func (ts Timestamp) GreaterThan(other Timestamp) bool {
	return other.LessThan(ts)
}

func (ts Timestamp) String() string {
	return fmt.Sprintf("TS(%v:%s)", ts.Pid, strconv.FormatFloat(ts.Value, 'f', -1, 64))
}
