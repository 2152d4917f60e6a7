package mutex

import (
	"fmt"
	"sync"

	"github.com/emirpasic/gods/sets/treeset"
	"github.com/google/uuid"

	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/directory"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/logging"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/messages"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/timestamps"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/trace"
)

// Message to emit once the engine lock is released.
type outgoing struct {
	to  Pid
	msg messages.Message
}

// Engine implements the Ricart-Agrawala algorithm for one peer.
//
// Every transition reads, decides and mutates the request state under a single lock. Messages produced by a transition are sent after the lock is released, in the order the transition produced them. The critical-section body also runs outside the lock, in the goroutine that completed the entry transition; requests arriving meanwhile are deferred.
type Engine struct {
	logger *logging.Logger
	tracer *trace.Tracer

	self   Pid
	others []Pid

	clock      timestamps.Clock
	net        Network
	cs         CriticalSection
	newCycleID func() string

	mu         sync.Mutex
	state      State
	requesting bool
	ts         timestamp
	// Peers whose reply is still awaited; its size is the number of pending replies.
	awaiting *treeset.Set
	// Peers whose request is answered on exit, in ascending id order.
	deferred *treeset.Set
	cycle    Cycle
	entries  uint64
}

/*
NewEngine constructs the engine of a peer.

Parameters:
  - logger: The logger to use for logging messages.
  - self: The id of the local peer.
  - peers: The ids of every peer, with or without self.
  - clock: Source of request timestamps.
  - network: Used to reach the other peers.
  - cs: The critical-section body; nil means an empty body.
  - tracer: Optional event trace, may be nil.
*/
func NewEngine(logger *logging.Logger, self Pid, peers []Pid, clock timestamps.Clock, network Network, cs CriticalSection, tracer *trace.Tracer) *Engine {
	others := make([]Pid, 0, len(peers))
	for _, p := range peers {
		if p != self {
			others = append(others, p)
		}
	}
	if cs == nil {
		cs = CriticalSectionFunc(func(Cycle) error { return nil })
	}

	logger.Infof("Starting Ricart-Agrawala engine for peer %v with others %v", self, others)

	return &Engine{
		logger:     logger,
		tracer:     tracer,
		self:       self,
		others:     others,
		clock:      clock,
		net:        network,
		cs:         cs,
		newCycleID: uuid.NewString,
		state:      Idle,
		awaiting:   treeset.NewWith(directory.PidComparator),
		deferred:   treeset.NewWith(directory.PidComparator),
	}
}

// Self returns the id of the local peer.
func (e *Engine) Self() Pid {
	return e.self
}

// PeerCount returns the number of peers taking part, self included.
func (e *Engine) PeerCount() int {
	return len(e.others) + 1
}

/*
BeginRequest stamps a new request and broadcasts it to every other peer.

Returns [ErrAlreadyRequesting], without changing anything, if the previous request is still waiting for replies or being served. When the peer is alone, the critical section is entered right away, before BeginRequest returns.
*/
func (e *Engine) BeginRequest() error {
	e.mu.Lock()
	if e.state != Idle {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("%w (peer %v is %v)", ErrAlreadyRequesting, e.self, state)
	}

	e.state = Requesting
	e.requesting = true
	e.ts = timestamp{Value: e.clock.Stamp(), Pid: e.self}
	e.awaiting.Clear()
	out := make([]outgoing, 0, len(e.others))
	for _, pid := range e.others {
		e.awaiting.Add(pid)
		out = append(out, outgoing{pid, messages.Request{Sender: e.self, Timestamp: e.ts.Value}})
	}
	e.cycle = Cycle{ID: e.newCycleID(), Peer: e.self, Timestamp: e.ts.Value}
	cycle := e.cycle
	enter := e.awaiting.Empty()
	if enter {
		e.state = InCriticalSection
	}
	e.mu.Unlock()

	e.logger.Infof("Broadcasting request %v for cycle %s", cycle.Timestamp, cycle.ID)
	e.tracer.Event("request %v broadcast", cycle.Timestamp)
	e.emit(out)

	if enter {
		e.logger.Info("No other peer; entering critical section directly")
		e.serve(cycle)
	}
	return nil
}

/*
OnRequest handles a request from another peer.

The request is granted right away if this peer is not requesting, or if its own request has a greater (timestamp, id) pair, meaning a lower priority. Otherwise, and always while inside the critical section, the reply is deferred until exit.
*/
func (e *Engine) OnRequest(sender Pid, senderTs float64) {
	if sender == e.self {
		e.logger.Warn("Ignoring a request carrying my own id")
		return
	}
	e.clock.Witness(senderTs)
	theirs := timestamp{Value: senderTs, Pid: sender}

	e.mu.Lock()
	var grant bool
	switch {
	case e.state == InCriticalSection:
		grant = false
	case !e.requesting:
		grant = true
	default:
		grant = e.ts.GreaterThan(theirs)
	}
	var out []outgoing
	if grant {
		out = append(out, outgoing{sender, messages.Reply{Sender: e.self}})
	} else {
		e.deferred.Add(sender)
	}
	mine, state := e.ts, e.state
	e.mu.Unlock()

	if grant {
		e.logger.Infof("Granting %v (mine %v, %v)", theirs, mine, state)
		e.tracer.Event("granted %v", theirs)
	} else {
		e.logger.Infof("Deferring %v (mine %v, %v)", theirs, mine, state)
		e.tracer.Event("deferred %v", theirs)
	}
	e.emit(out)
}

// OnReply counts a reply to the current request. The reply completing the set runs the critical section before OnReply returns.
func (e *Engine) OnReply(sender Pid) {
	e.mu.Lock()
	if e.state != Requesting {
		state := e.state
		e.mu.Unlock()
		e.logger.Warnf("Ignoring reply from %v while %v", sender, state)
		return
	}
	if !e.awaiting.Contains(sender) {
		e.mu.Unlock()
		e.logger.Warnf("Ignoring unexpected reply from %v", sender)
		return
	}
	e.awaiting.Remove(sender)
	pending := e.awaiting.Size()
	enter := pending == 0
	if enter {
		e.state = InCriticalSection
	}
	cycle := e.cycle
	e.mu.Unlock()

	e.logger.Infof("Received reply from %v, %d/%d", sender, len(e.others)-pending, len(e.others))
	if enter {
		e.serve(cycle)
	}
}

// Runs the critical-section body, then the exit action.
func (e *Engine) serve(c Cycle) {
	e.logger.Infof("PROCESS %v entered the critical section (cycle %s)", e.self, c.ID)
	e.tracer.Event("entered critical section")

	if err := e.cs.Run(c); err != nil {
		e.logger.Errorf("Critical section of cycle %s failed: %v", c.ID, err)
	}

	e.logger.Infof("PROCESS %v exiting the critical section", e.self)
	e.tracer.Event("exited critical section")
	e.exit()
}

// Leaves the critical section and answers every deferred request.
func (e *Engine) exit() {
	e.mu.Lock()
	e.requesting = false
	e.state = Idle
	e.awaiting.Clear()
	e.entries++
	out := make([]outgoing, 0, e.deferred.Size())
	for _, v := range e.deferred.Values() {
		out = append(out, outgoing{v.(Pid), messages.Reply{Sender: e.self}})
	}
	e.deferred.Clear()
	e.mu.Unlock()

	for _, o := range out {
		e.logger.Infof("Sending deferred reply to %v", o.to)
	}
	e.emit(out)
}

// Sends messages produced by a transition. A failed send is logged and the remaining destinations are still served.
func (e *Engine) emit(out []outgoing) {
	for _, o := range out {
		if err := e.net.Send(o.to, o.msg); err != nil {
			e.logger.Errorf("Failed to send %v to %v, skipping it: %v", o.msg, o.to, err)
			continue
		}
		e.logger.Debugf("Sent %v to %v", o.msg, o.to)
	}
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	deferred := make([]Pid, 0, e.deferred.Size())
	for _, v := range e.deferred.Values() {
		deferred = append(deferred, v.(Pid))
	}
	s := Snapshot{
		Peer:           e.self,
		State:          e.state,
		Requesting:     e.requesting,
		PendingReplies: e.awaiting.Size(),
		Deferred:       deferred,
		Entries:        e.entries,
	}
	if e.requesting {
		s.Timestamp = e.ts.Value
		s.Cycle = e.cycle.ID
	}
	return s
}
