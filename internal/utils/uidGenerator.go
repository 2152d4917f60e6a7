package utils

import "sync/atomic"

// UID is a unique identifier.
type UID uint32

// UIDGenerator hands out unique identifiers, starting from 1. The zero value is ready to use and safe for concurrent use.
type UIDGenerator struct {
	last atomic.Uint32
}

// Next returns an identifier never returned before by this generator.
func (g *UIDGenerator) Next() UID {
	return UID(g.last.Add(1))
}
