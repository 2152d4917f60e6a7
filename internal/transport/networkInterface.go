package transport

import "github.com/kayua/Ricart-Agrawala-Algorithm/internal/utils"

// MessageHandler represents any structure capable of handling a message received from the network.
type MessageHandler interface {
	HandleNetworkMessage(*Message) (wasHandled bool)
}

// HandlerID is a unique identifier for a handler.
type HandlerID = utils.UID

// NetworkInterface represents a network interface that can send and receive datagrams.
type NetworkInterface interface {
	// Send a datagram to the given address.
	Send(addr Address, payload []byte) error
	// Register a handler for incoming datagrams.
	RegisterHandler(MessageHandler) HandlerID
	// Unregister a handler.
	UnregisterHandler(id HandlerID)
	// Close the network interface.
	Close()
}

// Message represents a datagram as received by a network interface.
type Message struct {
	// Address the datagram came from
	Source  Address
	Payload []byte
}
