package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/demand"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/logging"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/mutex"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/resource"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/server/dispatcher"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/status"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/timestamps"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/trace"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/transport"
)

// Server represents one peer of the system: its transport, engine and demand generator, plus the optional shared resource, status endpoint and trace.
type Server struct {
	logger  *logging.Logger
	logFile *logging.LogFile
	config  *Config

	network transport.NetworkInterface
	fatal   <-chan error

	dispatcher *dispatcher.Dispatcher
	engine     *mutex.Engine
	generator  *demand.Generator

	redis          *resource.Redis
	status         *status.Server
	statusListener net.Listener
	tracer         *trace.Tracer

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	ownsNetwork bool
}

/*
NewServer constructs and returns a new server instance.

It opens the log file, prints every setting and binds the UDP socket of the peer.
  - config: The configuration for the server.
*/
func NewServer(config *Config) (*Server, error) {
	logName := fmt.Sprintf("node-%v-%s.log", config.NodeID, time.Now().Format("20060102-150405"))
	logFile, err := logging.NewLogFile(filepath.Join(config.LogPath, logName), logging.DefaultMaxBytes, logging.DefaultBackups)
	if err != nil {
		return nil, err
	}

	log := logging.NewLogger(os.Stdout, logFile, fmt.Sprintf("node(%v)", config.NodeID), !config.Debug)
	log.Info("Starting node ", config.NodeID)
	config.logSettings(log)

	udp, err := transport.NewUDP(config.Addr, log.WithPostfix("udp").WithLogLevel(logging.WARN))
	if err != nil {
		log.Error("Could not open the UDP socket: ", err)
		logFile.Close()
		return nil, err
	}

	s, err := newServer(log, config, udp, udp.Fatal())
	if err != nil {
		udp.Close()
		logFile.Close()
		return nil, err
	}
	s.logFile = logFile
	s.ownsNetwork = true

	return s, nil
}

/*
Constructs a new server instance from detailed parameters. This is intended to be used directly only by the tests.
  - log: The logger instance to use.
  - config: The configuration for the server; its address is not used.
  - networkInterface: The network interface to use for communication.
  - fatal: Reports a broken network interface; may be nil.
*/
func newServer(log *logging.Logger, config *Config, networkInterface transport.NetworkInterface, fatal <-chan error) (*Server, error) {
	clock, err := timestamps.NewClock(config.Clock)
	if err != nil {
		return nil, err
	}

	s := &Server{
		logger:  log,
		config:  config,
		network: networkInterface,
		fatal:   fatal,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if config.TracePath != "" {
		s.tracer = trace.New(fmt.Sprintf("peer-%v", config.NodeID), config.TracePath)
	}

	var cs mutex.CriticalSection = resource.NewHold(log.WithPostfix("res"), config.Hold)
	if config.RedisAddr != "" {
		s.redis, err = resource.DialRedis(log.WithPostfix("redis"), config.RedisAddr, cs)
		if err != nil {
			s.release()
			return nil, err
		}
		cs = s.redis
	}

	if config.StatusAddr != "" {
		s.statusListener, err = net.Listen("tcp", config.StatusAddr)
		if err != nil {
			s.release()
			return nil, fmt.Errorf("could not listen for status on %s: %w", config.StatusAddr, err)
		}
	}

	s.dispatcher = dispatcher.NewDispatcher(log.WithPostfix("disp").WithLogLevel(logging.WARN), config.NodeID, config.Directory, networkInterface)
	s.engine = mutex.NewEngine(log.WithPostfix("ra"), config.NodeID, config.Directory.IDs(), clock, s.dispatcher, cs, s.tracer)
	s.dispatcher.Register(s.engine)

	s.generator, err = demand.NewGenerator(log.WithPostfix("demand"), s.engine, config.MinWait, config.MaxWait, nil)
	if err != nil {
		s.release()
		return nil, err
	}

	if s.statusListener != nil {
		s.status = status.NewServer(log.WithPostfix("status"), s.engine)
	}

	return s, nil
}

// Start launches the demand generator and the status endpoint, then blocks until the server is closed or its network fails.
func (s *Server) Start() error {
	s.logger.Infof("Starting peer %v among %d participants", s.engine.Self(), s.engine.PeerCount())

	if s.status != nil {
		s.status.Start(s.statusListener)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.generator.Run(s.ctx)
	}()

	select {
	case err := <-s.fatal:
		s.logger.Error("Network failure: ", err)
		return err
	case <-s.ctx.Done():
		s.logger.Warn("Server stopped due to close request")
		return nil
	}
}

// StatusAddr returns the address of the status endpoint, or nil if it is disabled.
func (s *Server) StatusAddr() net.Addr {
	if s.statusListener == nil {
		return nil
	}
	return s.statusListener.Addr()
}

// Close stops the server. An ongoing critical section completes first.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing server")
		s.cancel()
		s.wg.Wait()

		s.dispatcher.Close()
		if s.status != nil {
			s.status.Stop()
		}
		s.release()
		if s.ownsNetwork {
			// If server was created by the test, it doesn't own the network and shouldn't close it.
			s.network.Close()
		}
		if s.logFile != nil {
			s.logFile.Close()
		}
	})
}

// Releases the optional components that were set up.
func (s *Server) release() {
	s.cancel()
	if s.status == nil && s.statusListener != nil {
		s.statusListener.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("Error closing redis: ", err)
		}
	}
	if s.tracer != nil {
		s.logger.Infof("Trace recorded %d events", s.tracer.Ticks())
		s.tracer.Close()
	}
}
