package mutex

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/logging"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/messages"
)

type MockMessage struct {
	To      Pid
	Message messages.Message
}

type mockNetwork struct {
	mu           sync.Mutex
	failures     map[Pid]error
	sentMessages chan MockMessage
}

func newMockNetwork() *mockNetwork {
	return &mockNetwork{
		failures:     make(map[Pid]error),
		sentMessages: make(chan MockMessage, 100),
	}
}

func (n *mockNetwork) Send(to Pid, m messages.Message) error {
	n.mu.Lock()
	err := n.failures[to]
	n.mu.Unlock()
	if err != nil {
		return err
	}
	n.sentMessages <- MockMessage{To: to, Message: m}
	return nil
}

func (n *mockNetwork) failSendsTo(to Pid, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures[to] = err
}

// Reads exactly the expected messages, in order, from what the engine sent so far.
func expectMessages(t *testing.T, network *mockNetwork, expected []MockMessage) {
	t.Helper()
	received := []MockMessage{}
	for range expected {
		select {
		case m := <-network.sentMessages:
			received = append(received, m)
		case <-time.After(time.Second):
			t.Fatalf("Did not receive all expected messages. Expected %v, got %v", expected, received)
		}
	}
	if !reflect.DeepEqual(expected, received) {
		t.Fatalf("Expected %v, got %v", expected, received)
	}
}

func expectNothing(t *testing.T, network *mockNetwork) {
	t.Helper()
	select {
	case m := <-network.sentMessages:
		t.Fatal("Expected no messages to be sent ; yet received", m)
	default:
	}
}

// Clock returning preset stamps and recording what it witnessed.
type scriptedClock struct {
	mu        sync.Mutex
	stamps    []float64
	witnessed []float64
}

func newScriptedClock(stamps ...float64) *scriptedClock {
	return &scriptedClock{stamps: stamps}
}

func (c *scriptedClock) Stamp() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stamps[0]
	if len(c.stamps) > 1 {
		c.stamps = c.stamps[1:]
	}
	return s
}

func (c *scriptedClock) Witness(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.witnessed = append(c.witnessed, v)
}

// Critical section recording the cycles it served.
type recordingSection struct {
	mu     sync.Mutex
	cycles []Cycle
	during func(Cycle)
	err    error
}

func (r *recordingSection) Run(c Cycle) error {
	if r.during != nil {
		r.during(c)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, c)
	return r.err
}

func (r *recordingSection) served() []Cycle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Cycle(nil), r.cycles...)
}

func newLogger() *logging.Logger {
	return logging.NewDiscardLogger()
}

func request(to, sender Pid, ts float64) MockMessage {
	return MockMessage{To: to, Message: messages.Request{Sender: sender, Timestamp: ts}}
}

func reply(to, sender Pid) MockMessage {
	return MockMessage{To: to, Message: messages.Reply{Sender: sender}}
}

func TestSinglePeerEntersImmediately(t *testing.T) {
	net := newMockNetwork()
	cs := &recordingSection{}
	e := NewEngine(newLogger(), 1, []Pid{1}, newScriptedClock(4.0), net, cs, nil)

	if err := e.BeginRequest(); err != nil {
		t.Fatal(err)
	}

	if len(cs.served()) != 1 {
		t.Fatalf("Expected one critical section, got %v", cs.served())
	}
	s := e.Snapshot()
	if s.State != Idle || s.Requesting || s.Entries != 1 {
		t.Errorf("Expected an idle engine with one entry, got %+v", s)
	}
	expectNothing(t, net)
}

func TestBroadcastRequest(t *testing.T) {
	net := newMockNetwork()
	e := NewEngine(newLogger(), 1, []Pid{1, 2, 3}, newScriptedClock(1.0), net, nil, nil)

	if err := e.BeginRequest(); err != nil {
		t.Fatal(err)
	}

	expectMessages(t, net, []MockMessage{request(2, 1, 1.0), request(3, 1, 1.0)})
	s := e.Snapshot()
	if s.State != Requesting || !s.Requesting || s.Timestamp != 1.0 || s.PendingReplies != 2 {
		t.Errorf("Unexpected snapshot after broadcast: %+v", s)
	}
	if _, err := uuid.Parse(s.Cycle); err != nil {
		t.Errorf("Expected a UUID cycle id, got %q", s.Cycle)
	}
}

func TestAlreadyRequesting(t *testing.T) {
	net := newMockNetwork()
	e := NewEngine(newLogger(), 1, []Pid{1, 2}, newScriptedClock(1.0, 2.0), net, nil, nil)

	if err := e.BeginRequest(); err != nil {
		t.Fatal(err)
	}
	expectMessages(t, net, []MockMessage{request(2, 1, 1.0)})

	if err := e.BeginRequest(); !errors.Is(err, ErrAlreadyRequesting) {
		t.Fatalf("Expected ErrAlreadyRequesting, got %v", err)
	}
	expectNothing(t, net)
	if s := e.Snapshot(); s.Timestamp != 1.0 || s.PendingReplies != 1 {
		t.Errorf("A refused request must not change the state, got %+v", s)
	}
}

func TestIdleGrantsImmediately(t *testing.T) {
	net := newMockNetwork()
	clock := newScriptedClock(1.0)
	e := NewEngine(newLogger(), 1, []Pid{1, 2}, clock, net, nil, nil)

	e.OnRequest(2, 5.0)

	expectMessages(t, net, []MockMessage{reply(2, 1)})
	if !reflect.DeepEqual(clock.witnessed, []float64{5.0}) {
		t.Errorf("Expected the request timestamp to be witnessed, got %v", clock.witnessed)
	}
	if s := e.Snapshot(); len(s.Deferred) != 0 || s.State != Idle {
		t.Errorf("Unexpected snapshot %+v", s)
	}
}

func TestTieBreakOnPid(t *testing.T) {
	t.Run("lower_pid_defers", func(t *testing.T) {
		net := newMockNetwork()
		e := NewEngine(newLogger(), 3, []Pid{3, 7}, newScriptedClock(1.0), net, nil, nil)
		if err := e.BeginRequest(); err != nil {
			t.Fatal(err)
		}
		expectMessages(t, net, []MockMessage{request(7, 3, 1.0)})

		e.OnRequest(7, 1.0)
		expectNothing(t, net)
		if s := e.Snapshot(); !reflect.DeepEqual(s.Deferred, []Pid{7}) {
			t.Errorf("Expected 7 deferred, got %v", s.Deferred)
		}
	})

	t.Run("higher_pid_grants", func(t *testing.T) {
		net := newMockNetwork()
		e := NewEngine(newLogger(), 7, []Pid{3, 7}, newScriptedClock(1.0), net, nil, nil)
		if err := e.BeginRequest(); err != nil {
			t.Fatal(err)
		}
		expectMessages(t, net, []MockMessage{request(3, 7, 1.0)})

		e.OnRequest(3, 1.0)
		expectMessages(t, net, []MockMessage{reply(3, 7)})
	})
}

func TestEarlierRequestWins(t *testing.T) {
	net := newMockNetwork()
	e := NewEngine(newLogger(), 1, []Pid{1, 2}, newScriptedClock(2.0), net, nil, nil)
	if err := e.BeginRequest(); err != nil {
		t.Fatal(err)
	}
	expectMessages(t, net, []MockMessage{request(2, 1, 2.0)})

	// An older request beats a lower id.
	e.OnRequest(2, 1.5)
	expectMessages(t, net, []MockMessage{reply(2, 1)})

	// A newer one is deferred.
	e.OnRequest(2, 2.5)
	expectNothing(t, net)
}

func TestDeferredRepliesReleasedOnExit(t *testing.T) {
	net := newMockNetwork()
	cs := &recordingSection{}
	e := NewEngine(newLogger(), 1, []Pid{1, 2, 5, 9}, newScriptedClock(1.0), net, cs, nil)

	if err := e.BeginRequest(); err != nil {
		t.Fatal(err)
	}
	expectMessages(t, net, []MockMessage{request(2, 1, 1.0), request(5, 1, 1.0), request(9, 1, 1.0)})

	e.OnRequest(5, 2.0)
	e.OnRequest(2, 3.0)
	expectNothing(t, net)
	if s := e.Snapshot(); !reflect.DeepEqual(s.Deferred, []Pid{2, 5}) {
		t.Fatalf("Expected [2 5] deferred, got %v", s.Deferred)
	}

	e.OnReply(9)
	e.OnReply(2)
	if len(cs.served()) != 0 {
		t.Fatal("Entered the critical section before all replies")
	}
	e.OnReply(5)

	if len(cs.served()) != 1 {
		t.Fatalf("Expected one critical section, got %d", len(cs.served()))
	}
	expectMessages(t, net, []MockMessage{reply(2, 1), reply(5, 1)})
	s := e.Snapshot()
	if s.State != Idle || s.Requesting || len(s.Deferred) != 0 || s.PendingReplies != 0 || s.Entries != 1 {
		t.Errorf("Expected a clean idle state, got %+v", s)
	}
}

func TestRepliesToCurrentCycleOnly(t *testing.T) {
	net := newMockNetwork()
	cs := &recordingSection{}
	e := NewEngine(newLogger(), 1, []Pid{1, 2, 3}, newScriptedClock(1.0), net, cs, nil)

	// Nothing to count while idle.
	e.OnReply(2)
	if s := e.Snapshot(); s.State != Idle || s.Entries != 0 {
		t.Fatalf("A stray reply changed the state: %+v", s)
	}

	if err := e.BeginRequest(); err != nil {
		t.Fatal(err)
	}
	e.OnReply(2)
	e.OnReply(2)
	e.OnReply(4)
	if s := e.Snapshot(); s.PendingReplies != 1 || s.State != Requesting {
		t.Fatalf("Duplicate or unknown replies must not count, got %+v", s)
	}

	e.OnReply(3)
	if len(cs.served()) != 1 {
		t.Errorf("Expected the critical section to run once, got %d", len(cs.served()))
	}
}

func TestRequestsDeferredDuringCriticalSection(t *testing.T) {
	net := newMockNetwork()
	cs := &recordingSection{}
	e := NewEngine(newLogger(), 1, []Pid{1, 2}, newScriptedClock(3.0), net, cs, nil)

	var snapshot Snapshot
	var reentry error
	cs.during = func(Cycle) {
		// Even an older request waits for the exit.
		e.OnRequest(2, 0.5)
		reentry = e.BeginRequest()
		snapshot = e.Snapshot()
	}

	if err := e.BeginRequest(); err != nil {
		t.Fatal(err)
	}
	expectMessages(t, net, []MockMessage{request(2, 1, 3.0)})

	e.OnReply(2)

	if snapshot.State != InCriticalSection || !reflect.DeepEqual(snapshot.Deferred, []Pid{2}) {
		t.Errorf("Expected 2 deferred while in the critical section, got %+v", snapshot)
	}
	if !errors.Is(reentry, ErrAlreadyRequesting) {
		t.Errorf("Expected ErrAlreadyRequesting inside the critical section, got %v", reentry)
	}
	expectMessages(t, net, []MockMessage{reply(2, 1)})
}

func TestCriticalSectionReceivesCycle(t *testing.T) {
	net := newMockNetwork()
	cs := &recordingSection{err: errors.New("resource unavailable")}
	e := NewEngine(newLogger(), 4, []Pid{4, 5}, newScriptedClock(7.25), net, cs, nil)

	if err := e.BeginRequest(); err != nil {
		t.Fatal(err)
	}
	cycle := e.Snapshot().Cycle
	e.OnReply(5)

	served := cs.served()
	if len(served) != 1 {
		t.Fatalf("Expected one critical section, got %v", served)
	}
	if served[0].ID != cycle || served[0].Peer != 4 || served[0].Timestamp != 7.25 {
		t.Errorf("Unexpected cycle %+v, expected id %s", served[0], cycle)
	}
	// A failing body still exits.
	if s := e.Snapshot(); s.State != Idle || s.Entries != 1 {
		t.Errorf("Expected the engine to exit after a failing body, got %+v", s)
	}
}

func TestSendFailureDoesNotStopBroadcast(t *testing.T) {
	net := newMockNetwork()
	net.failSendsTo(2, errors.New("unreachable"))
	e := NewEngine(newLogger(), 1, []Pid{1, 2, 3}, newScriptedClock(1.0), net, nil, nil)

	if err := e.BeginRequest(); err != nil {
		t.Fatal(err)
	}
	expectMessages(t, net, []MockMessage{request(3, 1, 1.0)})
	if s := e.Snapshot(); s.PendingReplies != 2 {
		t.Errorf("The unreachable peer is still awaited, got %d pending", s.PendingReplies)
	}
}

func TestOwnRequestIgnored(t *testing.T) {
	net := newMockNetwork()
	clock := newScriptedClock(1.0)
	e := NewEngine(newLogger(), 1, []Pid{1, 2}, clock, net, nil, nil)

	e.OnRequest(1, 3.0)
	expectNothing(t, net)
	if len(clock.witnessed) != 0 {
		t.Errorf("Own requests must not be witnessed, got %v", clock.witnessed)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		Idle:              "IDLE",
		Requesting:        "REQUESTING",
		InCriticalSection: "IN_CRITICAL_SECTION",
		State(9):          "State(9)",
	}
	for s, expected := range tests {
		if s.String() != expected {
			t.Errorf("Expected %s, got %s", expected, s.String())
		}
	}

	for _, s := range []State{Idle, Requesting, InCriticalSection} {
		if parsed, err := ParseState(s.String()); err != nil || parsed != s {
			t.Errorf("Could not parse %v back: %v %v", s, parsed, err)
		}
	}
	if _, err := ParseState("HOLDING"); err == nil {
		t.Error("Expected an error for an unknown state")
	}
}
