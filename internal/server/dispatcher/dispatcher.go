package dispatcher

import (
	"fmt"
	"sync"

	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/directory"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/logging"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/messages"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/transport"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/utils"
)

type Pid = directory.Pid

// Handler receives the decoded messages, in arrival order.
type Handler interface {
	OnRequest(sender Pid, timestamp float64)
	OnReply(sender Pid)
}

// Dispatcher translates between peer ids and datagrams: it encodes outgoing messages for the directory address of their destination, and decodes incoming datagrams for the registered [Handler].
type Dispatcher struct {
	logger *logging.Logger

	self      Pid
	directory *directory.Directory
	network   transport.NetworkInterface
	handlerID transport.HandlerID

	// Guards received against sends after Close.
	closeMu          sync.RWMutex
	closed           bool
	receivedMessages *utils.BufferedChan[*transport.Message]
	registrations    chan Handler

	closeChan chan struct{}
	// Closed once the dispatch goroutine has returned.
	done chan struct{}
}

/*
NewDispatcher constructs a new dispatcher instance and registers it on the network interface.

Datagrams received before a handler is registered are kept and dispatched once one is.
  - logger: The logger to use for logging messages
  - self: The id of this peer
  - dir: The peers messages can be exchanged with
  - network: The network interface datagrams go through
*/
func NewDispatcher(logger *logging.Logger, self Pid, dir *directory.Directory, network transport.NetworkInterface) *Dispatcher {
	d := &Dispatcher{
		logger:    logger,
		self:      self,
		directory: dir,
		network:   network,

		receivedMessages: utils.NewBufferedChan[*transport.Message](),
		registrations:    make(chan Handler),

		closeChan: make(chan struct{}),
		done:      make(chan struct{}),
	}

	d.handlerID = network.RegisterHandler(d)

	go d.dispatch()

	return d
}

func (d *Dispatcher) HandleNetworkMessage(msg *transport.Message) (wasHandled bool) {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		return false
	}

	d.receivedMessages.Inlet() <- msg
	return true
}

// Register sets the handler receiving decoded messages. Registering again replaces the previous one.
func (d *Dispatcher) Register(handler Handler) {
	select {
	case d.registrations <- handler:
	case <-d.closeChan:
		d.logger.Warn("Dispatcher is closed, not registering handler")
	}
}

// Send encodes msg and sends it to the directory address of the given peer.
func (d *Dispatcher) Send(to Pid, msg messages.Message) error {
	peer, err := d.directory.Lookup(to)
	if err != nil {
		return err
	}
	payload, err := messages.Encode(msg)
	if err != nil {
		return fmt.Errorf("could not encode %v: %w", msg, err)
	}

	d.logger.Debugf("Sending %s to %v", payload, peer)
	return d.network.Send(peer.Address, payload)
}

// Close stops dispatching; datagrams still queued are dropped. It returns once the handler call in progress, if any, has returned.
func (d *Dispatcher) Close() {
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.closeChan)
	d.receivedMessages.Close()
	d.closeMu.Unlock()

	d.network.UnregisterHandler(d.handlerID)
	<-d.done
}

/*
Main goroutine that dispatches messages to the handler.

Messages are only read once a handler is registered, so that none is lost to a handler that does not exist yet. A nil channel is never selected, which keeps received messages buffered until then.
*/
func (d *Dispatcher) dispatch() {
	defer close(d.done)

	var handler Handler
	var received <-chan *transport.Message
	for {
		select {
		case h := <-d.registrations:
			if handler != nil {
				d.logger.Warn("Handler already registered. Overwriting it...")
			}
			handler = h
			received = d.receivedMessages.Outlet()
		case msg, ok := <-received:
			if !ok {
				return
			}
			d.route(handler, msg)
		case <-d.closeChan:
			return
		}
	}
}

func (d *Dispatcher) route(handler Handler, msg *transport.Message) {
	decoded := messages.Decode(msg.Payload)
	if malformed, ok := decoded.(messages.Malformed); ok {
		d.logger.Warnf("Dropping malformed datagram from %v: %v", msg.Source, malformed)
		return
	}

	sender, _ := messages.Sender(decoded)
	if sender == d.self {
		d.logger.Warnf("Dropping %v from %v: it carries my own id", decoded, msg.Source)
		return
	}
	if !d.directory.Contains(sender) {
		d.logger.Warnf("Dropping %v from %v: unknown peer", decoded, msg.Source)
		return
	}
	if from, ok := d.directory.ByAddress(msg.Source); !ok || from != sender {
		d.logger.Debugf("%v claims to come from peer %v but arrived from %v", decoded, sender, msg.Source)
	}

	d.logger.Debugf("Dispatching %v from %v", decoded, msg.Source)
	switch m := decoded.(type) {
	case messages.Request:
		handler.OnRequest(m.Sender, m.Timestamp)
	case messages.Reply:
		handler.OnReply(m.Sender)
	}
}
