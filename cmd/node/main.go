package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/server"
)

func main() {
	conf, err := server.NewConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal("Failed to create node config: ", err)
	}

	s, err := server.NewServer(conf)
	if err != nil {
		log.Fatal("Failed to start node: ", err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		s.Close()
	}()

	err = s.Start()
	s.Close()
	if err != nil {
		log.Fatal("Node stopped: ", err)
	}
}
