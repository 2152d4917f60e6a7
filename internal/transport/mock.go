package transport

import (
	"sync"

	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/utils"
)

// MockNetworkInterface is a mock network interface that can simulate sending and receiving datagrams.
type MockNetworkInterface struct {
	Local Address

	uidGenerator utils.UIDGenerator

	mu       sync.Mutex
	handlers map[HandlerID]MessageHandler
	failures map[Address]error

	SentMessages chan *DestinedMessage
}

// NewMockNetworkInterface creates a new [MockNetworkInterface] sending from the given local address.
func NewMockNetworkInterface(local Address) *MockNetworkInterface {
	return &MockNetworkInterface{
		Local:        local,
		handlers:     make(map[HandlerID]MessageHandler),
		failures:     make(map[Address]error),
		SentMessages: make(chan *DestinedMessage, 100),
	}
}

// DestinedMessage is a transport message together with its destination.
type DestinedMessage struct {
	Message
	To Address
}

// FailSendsTo makes every later send to dest fail with err.
func (m *MockNetworkInterface) FailSendsTo(dest Address, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[dest] = err
}

// Send records a datagram to the given destination on SentMessages.
func (m *MockNetworkInterface) Send(dest Address, payload []byte) error {
	m.mu.Lock()
	err := m.failures[dest]
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.SentMessages <- &DestinedMessage{
		Message: Message{Source: m.Local, Payload: append([]byte(nil), payload...)},
		To:      dest,
	}
	return nil
}

// RegisterHandler registers a handler for incoming datagrams.
func (m *MockNetworkInterface) RegisterHandler(handler MessageHandler) HandlerID {
	id := m.uidGenerator.Next()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[id] = handler
	return id
}

// UnregisterHandler unregisters a handler.
func (m *MockNetworkInterface) UnregisterHandler(id HandlerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, id)
}

// SimulateReception hands a datagram to the registered handlers, as if it had just arrived.
func (m *MockNetworkInterface) SimulateReception(msg *Message) {
	m.mu.Lock()
	handlers := make([]MessageHandler, 0, len(m.handlers))
	for _, handler := range m.handlers {
		handlers = append(handlers, handler)
	}
	m.mu.Unlock()

	for _, handler := range handlers {
		if handler.HandleNetworkMessage(msg) {
			return
		}
	}
}

// InterceptSentMessage waits for the next sent datagram.
func (m *MockNetworkInterface) InterceptSentMessage() *DestinedMessage {
	return <-m.SentMessages
}

// Close closes the network interface.
func (m *MockNetworkInterface) Close() {
	close(m.SentMessages)
}
