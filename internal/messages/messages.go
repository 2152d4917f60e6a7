// Package messages implements the text wire format exchanged between peers.
//
//	REQUEST:<senderId>:<timestamp>
//	REPLY:<senderId>
package messages

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/timestamps"
)

// Pid identifies the sender of a message.
type Pid = timestamps.Pid

const (
	requestTag = "REQUEST"
	replyTag   = "REPLY"
	separator  = ":"
)

// Decoding failures carried by [Malformed].
var (
	ErrEmpty        = errors.New("empty message")
	ErrUnknownTag   = errors.New("unknown message tag")
	ErrFieldCount   = errors.New("wrong number of fields")
	ErrBadSender    = errors.New("sender id is not an integer")
	ErrBadTimestamp = errors.New("timestamp is not a finite number")
)

// Message is one of [Request], [Reply] or [Malformed].
type Message interface {
	isMessage()
}

// Request asks every other peer for permission to enter the critical section.
type Request struct {
	Sender    Pid
	Timestamp float64
}

// Reply grants a previously received request.
type Reply struct {
	Sender Pid
}

// Malformed is what a datagram decodes to when it matches neither wire format.
type Malformed struct {
	Raw    string
	Reason error
}

func (Request) isMessage()   {}
func (Reply) isMessage()     {}
func (Malformed) isMessage() {}

// Stamp returns the request's timestamp together with its sender.
func (r Request) Stamp() timestamps.Timestamp {
	return timestamps.Timestamp{Value: r.Timestamp, Pid: r.Sender}
}

func (r Request) String() string {
	return fmt.Sprintf("Request{%v@%s}", r.Sender, formatFloat(r.Timestamp))
}

func (r Reply) String() string {
	return fmt.Sprintf("Reply{%v}", r.Sender)
}

func (m Malformed) String() string {
	return fmt.Sprintf("Malformed{%q: %v}", m.Raw, m.Reason)
}

// Encode renders a message in wire form. Malformed messages cannot be encoded.
func Encode(m Message) ([]byte, error) {
	switch msg := m.(type) {
	case Request:
		if math.IsNaN(msg.Timestamp) || math.IsInf(msg.Timestamp, 0) {
			return nil, ErrBadTimestamp
		}
		return []byte(requestTag + separator + msg.Sender.String() + separator + formatFloat(msg.Timestamp)), nil
	case Reply:
		return []byte(replyTag + separator + msg.Sender.String()), nil
	default:
		return nil, fmt.Errorf("cannot encode %T", m)
	}
}

// Decode parses a datagram. It never fails: input matching neither format yields a [Malformed] value.
func Decode(data []byte) Message {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return Malformed{Raw: raw, Reason: ErrEmpty}
	}

	fields := strings.Split(raw, separator)
	switch fields[0] {
	case requestTag:
		if len(fields) != 3 {
			return Malformed{Raw: raw, Reason: ErrFieldCount}
		}
		sender, err := parseSender(fields[1])
		if err != nil {
			return Malformed{Raw: raw, Reason: err}
		}
		ts, err := strconv.ParseFloat(fields[2], 64)
		if err != nil || math.IsNaN(ts) || math.IsInf(ts, 0) {
			return Malformed{Raw: raw, Reason: ErrBadTimestamp}
		}
		return Request{Sender: sender, Timestamp: ts}
	case replyTag:
		if len(fields) != 2 {
			return Malformed{Raw: raw, Reason: ErrFieldCount}
		}
		sender, err := parseSender(fields[1])
		if err != nil {
			return Malformed{Raw: raw, Reason: err}
		}
		return Reply{Sender: sender}
	default:
		return Malformed{Raw: raw, Reason: ErrUnknownTag}
	}
}

// Sender returns the sender of a decoded message; ok is false for malformed messages.
func Sender(m Message) (pid Pid, ok bool) {
	switch msg := m.(type) {
	case Request:
		return msg.Sender, true
	case Reply:
		return msg.Sender, true
	default:
		return 0, false
	}
}

func parseSender(s string) (Pid, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, ErrBadSender
	}
	return Pid(id), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
