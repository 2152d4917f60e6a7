// Package status exposes a read-only view of a peer's engine over gRPC.
//
// The service has a single unary method, /ramutex.Status/Snapshot, taking a google.protobuf.Empty and answering a google.protobuf.Struct, so no generated code is needed on either side.
package status

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/mutex"
)

const (
	serviceName    = "ramutex.Status"
	snapshotMethod = "/ramutex.Status/Snapshot"
)

// Source is where snapshots come from; the engine in practice.
type Source interface {
	Snapshot() mutex.Snapshot
}

// Fields of the Struct answered by the service.
const (
	fieldPeer           = "peer"
	fieldState          = "state"
	fieldRequesting     = "requesting"
	fieldTimestamp      = "timestamp"
	fieldPendingReplies = "pending_replies"
	fieldDeferred       = "deferred"
	fieldCycle          = "cycle"
	fieldEntries        = "entries"
)

// ToStruct renders a snapshot as a protobuf Struct.
func ToStruct(s mutex.Snapshot) (*structpb.Struct, error) {
	deferred := make([]interface{}, 0, len(s.Deferred))
	for _, pid := range s.Deferred {
		deferred = append(deferred, int(pid))
	}
	return structpb.NewStruct(map[string]interface{}{
		fieldPeer:           int(s.Peer),
		fieldState:          s.State.String(),
		fieldRequesting:     s.Requesting,
		fieldTimestamp:      s.Timestamp,
		fieldPendingReplies: s.PendingReplies,
		fieldDeferred:       deferred,
		fieldCycle:          s.Cycle,
		fieldEntries:        s.Entries,
	})
}

// FromStruct reads back a snapshot rendered by [ToStruct].
func FromStruct(st *structpb.Struct) (mutex.Snapshot, error) {
	fields := st.GetFields()
	state, err := mutex.ParseState(fields[fieldState].GetStringValue())
	if err != nil {
		return mutex.Snapshot{}, err
	}

	values := fields[fieldDeferred].GetListValue().GetValues()
	deferred := make([]mutex.Pid, 0, len(values))
	for _, v := range values {
		deferred = append(deferred, mutex.Pid(v.GetNumberValue()))
	}

	return mutex.Snapshot{
		Peer:           mutex.Pid(fields[fieldPeer].GetNumberValue()),
		State:          state,
		Requesting:     fields[fieldRequesting].GetBoolValue(),
		Timestamp:      fields[fieldTimestamp].GetNumberValue(),
		PendingReplies: int(fields[fieldPendingReplies].GetNumberValue()),
		Deferred:       deferred,
		Cycle:          fields[fieldCycle].GetStringValue(),
		Entries:        uint64(fields[fieldEntries].GetNumberValue()),
	}, nil
}

// Server side of the service, as the method handler sees it.
type statusServer interface {
	Snapshot(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

type service struct {
	source Source
}

func (s *service) Snapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	st, err := ToStruct(s.source.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("could not render snapshot: %w", err)
	}
	return st, nil
}
