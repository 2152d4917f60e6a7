// Package directory holds the static list of peers taking part in mutual exclusion.
package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/emirpasic/gods/maps/treemap"

	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/timestamps"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/transport"
)

// Pid identifies a peer.
type Pid = timestamps.Pid

var (
	ErrNoPeers          = errors.New("directory lists no peers")
	ErrDuplicatePeer    = errors.New("duplicate peer id")
	ErrDuplicateAddress = errors.New("duplicate peer address")
	ErrInvalidPort      = errors.New("invalid port")
	ErrUnknownPeer      = errors.New("unknown peer")
)

// Peer describes one participant and where to reach it.
type Peer struct {
	ID      Pid
	Address transport.Address
}

func (p Peer) String() string {
	return fmt.Sprintf("%v@%v", p.ID, p.Address)
}

// Entry of the JSON directory file.
type fileEntry struct {
	ID   int    `json:"id"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// Layout of the JSON directory file.
type file struct {
	Nodes []fileEntry `json:"nodes"`
}

// Directory is an immutable set of peers, ordered by id.
type Directory struct {
	byID   *treemap.Map
	byAddr map[transport.Address]Pid
}

// PidComparator orders peer ids for gods containers.
func PidComparator(a, b interface{}) int {
	aAsserted := a.(Pid)
	bAsserted := b.(Pid)
	switch {
	case aAsserted > bAsserted:
		return 1
	case aAsserted < bAsserted:
		return -1
	default:
		return 0
	}
}

// New builds a directory from a list of peers. Ids and addresses must be unique.
func New(peers []Peer) (*Directory, error) {
	if len(peers) == 0 {
		return nil, ErrNoPeers
	}
	d := &Directory{
		byID:   treemap.NewWith(PidComparator),
		byAddr: make(map[transport.Address]Pid, len(peers)),
	}
	for _, p := range peers {
		if _, exists := d.byID.Get(p.ID); exists {
			return nil, fmt.Errorf("%w: %v", ErrDuplicatePeer, p.ID)
		}
		if other, exists := d.byAddr[p.Address]; exists {
			return nil, fmt.Errorf("%w: %v used by %v and %v", ErrDuplicateAddress, p.Address, other, p.ID)
		}
		d.byID.Put(p.ID, p)
		d.byAddr[p.Address] = p.ID
	}
	return d, nil
}

// Load reads a directory file of the form {"nodes": [{"id": 1, "ip": "127.0.0.1", "port": 5000}, ...]}.
func Load(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening directory: %w", err)
	}
	defer f.Close()

	var content file
	if err := json.NewDecoder(f).Decode(&content); err != nil {
		return nil, fmt.Errorf("decoding directory %s: %w", path, err)
	}

	peers := make([]Peer, 0, len(content.Nodes))
	for _, n := range content.Nodes {
		if n.Port <= 0 || n.Port > 65535 {
			return nil, fmt.Errorf("%w %d for peer %d", ErrInvalidPort, n.Port, n.ID)
		}
		peers = append(peers, Peer{
			ID:      Pid(n.ID),
			Address: transport.Address{IP: n.IP, Port: uint16(n.Port)},
		})
	}

	d, err := New(peers)
	if err != nil {
		return nil, fmt.Errorf("directory %s: %w", path, err)
	}
	return d, nil
}

// Len returns the number of peers, including the local one.
func (d *Directory) Len() int {
	return d.byID.Size()
}

// Lookup returns the peer with the given id.
func (d *Directory) Lookup(id Pid) (Peer, error) {
	p, ok := d.byID.Get(id)
	if !ok {
		return Peer{}, fmt.Errorf("%w: %v", ErrUnknownPeer, id)
	}
	return p.(Peer), nil
}

// Contains reports whether a peer with the given id is listed.
func (d *Directory) Contains(id Pid) bool {
	_, ok := d.byID.Get(id)
	return ok
}

// ByAddress returns the id of the peer listening on the given address.
func (d *Directory) ByAddress(addr transport.Address) (Pid, bool) {
	id, ok := d.byAddr[addr]
	return id, ok
}

// Peers returns every peer in ascending id order.
func (d *Directory) Peers() []Peer {
	peers := make([]Peer, 0, d.byID.Size())
	d.byID.Each(func(_ interface{}, value interface{}) {
		peers = append(peers, value.(Peer))
	})
	return peers
}

// IDs returns every peer id in ascending order.
func (d *Directory) IDs() []Pid {
	ids := make([]Pid, 0, d.byID.Size())
	for _, k := range d.byID.Keys() {
		ids = append(ids, k.(Pid))
	}
	return ids
}

// Others returns the ids of every peer but self, in ascending order.
func (d *Directory) Others(self Pid) []Pid {
	ids := make([]Pid, 0, d.byID.Size())
	for _, id := range d.IDs() {
		if id != self {
			ids = append(ids, id)
		}
	}
	return ids
}
