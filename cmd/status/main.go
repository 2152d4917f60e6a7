package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/logging"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/status"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/transport"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7000", "Address of the node's status endpoint")
	timeout := flag.Duration("timeout", 5*time.Second, "How long to wait for an answer")
	flag.Parse()

	logger := logging.NewStdLogger("status")
	if err := run(*addr, *timeout); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func run(addr string, timeout time.Duration) error {
	if _, err := transport.NewAddress(addr); err != nil {
		return err
	}
	client, err := status.NewClient(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s, err := client.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", addr, err)
	}

	fmt.Printf("peer            %v\n", s.Peer)
	fmt.Printf("state           %v\n", s.State)
	fmt.Printf("requesting      %v\n", s.Requesting)
	if s.Requesting {
		fmt.Printf("timestamp       %v\n", s.Timestamp)
		fmt.Printf("cycle           %s\n", s.Cycle)
	}
	fmt.Printf("pending replies %d\n", s.PendingReplies)
	fmt.Printf("deferred        %v\n", s.Deferred)
	fmt.Printf("entries         %d\n", s.Entries)
	return nil
}
