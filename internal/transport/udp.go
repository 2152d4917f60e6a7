package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/logging"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/utils"
)

// Largest payload read from the socket in one go.
const maxDatagramSize = 64 * 1024

// Internal representation of a handler registration.
type registration struct {
	id      HandlerID
	handler MessageHandler
}

// UDP implements the [NetworkInterface] interface over a single UDP socket.
//
// Datagrams are sent from the listening socket, so their source address is the local address peers know this process by.
type UDP struct {
	logger       *logging.Logger
	uidGenerator utils.UIDGenerator

	local Address
	conn  *net.UDPConn

	receivedMessages chan Message
	registrations    chan registration
	unregistrations  chan HandlerID

	fatal     chan error
	closeChan chan struct{}
	closeOnce sync.Once
}

// NewUDP binds the given local address and starts receiving datagrams on it.
func NewUDP(local Address, log *logging.Logger) (*UDP, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", local.String())
	if err != nil {
		return nil, fmt.Errorf("resolving %v: %w", local, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %v: %w", local, err)
	}

	udp := UDP{
		logger: log,
		local:  AddressFromUDP(conn.LocalAddr().(*net.UDPAddr)),
		conn:   conn,

		receivedMessages: make(chan Message),
		registrations:    make(chan registration),
		unregistrations:  make(chan HandlerID),

		fatal:     make(chan error, 1),
		closeChan: make(chan struct{}),
	}

	log.Info("Listening for datagrams on ", udp.local)

	go udp.listenIncomingMessages()
	go udp.handleState()

	return &udp, nil
}

// LocalAddr returns the address the socket is bound to.
func (udp *UDP) LocalAddr() Address {
	return udp.local
}

// Fatal delivers the error that stopped the receive loop. Nothing is delivered when the interface is closed normally.
func (udp *UDP) Fatal() <-chan error {
	return udp.fatal
}

/*
Main goroutine for handling the state of the UDP interface.

The state is the set of registered handlers. In order to prevent concurrent access to this state, it is owned by this goroutine and all accesses or modifications are done as instructions passed through channels.

It handles the following events:
  - On handler (un)registration, updates the set of registered handlers.
  - On datagrams received from the network, hands them to the registered handlers until one handles it.
  - On close, returns.
*/
func (udp *UDP) handleState() {
	registeredHandlers := make(map[HandlerID]MessageHandler)

	for {
		select {
		case msg := <-udp.receivedMessages:
			udp.logger.Debug("UDP received ", len(msg.Payload), " bytes from ", msg.Source, ". Dispatching among ", len(registeredHandlers), " handlers.")
			handled := false
			for _, handler := range registeredHandlers {
				if handler.HandleNetworkMessage(&msg) {
					handled = true
					break
				}
			}
			if !handled {
				udp.logger.Warn("No handler took the datagram from ", msg.Source)
			}
		case registration := <-udp.registrations:
			udp.logger.Debug("UDP registering handler ", registration.id)
			registeredHandlers[registration.id] = registration.handler
		case id := <-udp.unregistrations:
			udp.logger.Debug("UDP unregistering handler ", id)
			delete(registeredHandlers, id)
		case <-udp.closeChan:
			udp.logger.Info("UDP's state-handler is closing.")
			return
		}
	}
}

// Send writes one datagram to the given destination.
func (udp *UDP) Send(dest Address, payload []byte) error {
	if udp.isClosed() {
		return net.ErrClosed
	}
	addr, err := net.ResolveUDPAddr("udp", dest.String())
	if err != nil {
		return fmt.Errorf("resolving %v: %w", dest, err)
	}
	if _, err := udp.conn.WriteToUDP(payload, addr); err != nil {
		return fmt.Errorf("sending to %v: %w", dest, err)
	}
	udp.logger.Debug("UDP sent ", len(payload), " bytes to ", dest)
	return nil
}

// RegisterHandler registers a handler for incoming datagrams.
func (udp *UDP) RegisterHandler(handler MessageHandler) HandlerID {
	nextUID := udp.uidGenerator.Next()

	select {
	case udp.registrations <- registration{id: nextUID, handler: handler}:
	case <-udp.closeChan:
		udp.logger.Warn("UDP is closed, not registering handler")
	}

	return nextUID
}

// UnregisterHandler unregisters a previously registered handler.
func (udp *UDP) UnregisterHandler(id HandlerID) {
	select {
	case udp.unregistrations <- id:
	case <-udp.closeChan:
	}
}

// Main goroutine for receiving datagrams. They are copied out of the read buffer and forwarded to the goroutine that handles state.
//
// A read error other than the one caused by Close cannot be recovered from: it is reported on the fatal channel and the loop stops.
func (udp *UDP) listenIncomingMessages() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := udp.conn.ReadFromUDP(buf)
		if err != nil {
			if udp.isClosed() {
				udp.logger.Info("UDP's receive-handler closed")
				return
			}
			udp.logger.Error("Error receiving datagram: ", err)
			udp.fatal <- fmt.Errorf("receiving on %v: %w", udp.local, err)
			return
		}

		msg := Message{
			Source:  AddressFromUDP(from),
			Payload: append([]byte(nil), buf[:n]...),
		}
		select {
		case udp.receivedMessages <- msg:
		case <-udp.closeChan:
			return
		}
	}
}

func (udp *UDP) isClosed() bool {
	select {
	case <-udp.closeChan:
		return true
	default:
		return false
	}
}

// Close stops both goroutines and closes the socket.
func (udp *UDP) Close() {
	udp.closeOnce.Do(func() {
		close(udp.closeChan)
		udp.conn.Close()
	})
}
