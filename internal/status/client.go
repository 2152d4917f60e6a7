package status

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/mutex"
)

// Client queries the status service of a peer.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient prepares a plaintext connection to the status service at target. Extra options are applied after the transport credentials.
func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Snapshot fetches the peer's current state.
func (c *Client) Snapshot(ctx context.Context) (mutex.Snapshot, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, snapshotMethod, &emptypb.Empty{}, out); err != nil {
		return mutex.Snapshot{}, err
	}
	return FromStruct(out)
}

func (c *Client) Close() error {
	return c.conn.Close()
}
