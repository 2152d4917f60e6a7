package server

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/directory"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/logging"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/timestamps"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/transport"
)

var (
	ErrMissingNodeID   = errors.New("-node_id is required")
	ErrAddressMismatch = errors.New("address does not match the directory entry")
)

// Config represents the configuration of one peer, parsed from the command line and the directory file.
type Config struct {
	NodeID     directory.Pid
	Addr       transport.Address
	Directory  *directory.Directory
	ConfigPath string

	LogPath string
	Debug   bool

	Clock   string
	MinWait time.Duration
	MaxWait time.Duration
	Hold    time.Duration

	RedisAddr  string
	StatusAddr string
	TracePath  string
}

// NewConfig creates a new peer configuration from the given command-line arguments, program name excluded.
//
// The local address defaults to the directory entry of the peer; -ip and -port, when given, must agree with it.
func NewConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("node", flag.ContinueOnError)
	nodeID := fs.Int("node_id", 0, "Id of this peer in the directory (required)")
	ip := fs.String("ip", "127.0.0.1", "IP address to listen on")
	port := fs.Int("port", 5000, "UDP port to listen on")
	configPath := fs.String("config_path", "nodes.json", "Path of the JSON peer directory")
	logPath := fs.String("log_path", "logs", "Directory for log files")
	debug := fs.Bool("debug", false, "Echo logs to the console")
	clock := fs.String("clock", "wall", "Request timestamps: wall or lamport")
	minWait := fs.Duration("min_wait", 5*time.Second, "Minimum wait between requests")
	maxWait := fs.Duration("max_wait", 10*time.Second, "Maximum wait between requests")
	hold := fs.Duration("hold", 2*time.Second, "Time spent in the critical section")
	redisAddr := fs.String("redis", "", "Redis address of the shared resource (disabled if empty)")
	statusAddr := fs.String("status", "", "Address of the gRPC status endpoint (disabled if empty)")
	tracePath := fs.String("trace", "", "Path prefix of the GoVector trace (disabled if empty)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments %v", fs.Args())
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if !set["node_id"] {
		return nil, ErrMissingNodeID
	}

	dir, err := directory.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", *configPath, err)
	}
	self, err := dir.Lookup(directory.Pid(*nodeID))
	if err != nil {
		return nil, fmt.Errorf("node %d is not in %s: %w", *nodeID, *configPath, err)
	}
	if set["ip"] && *ip != self.Address.IP {
		return nil, fmt.Errorf("%w: -ip %s, directory has %v", ErrAddressMismatch, *ip, self.Address)
	}
	if set["port"] && *port != int(self.Address.Port) {
		return nil, fmt.Errorf("%w: -port %d, directory has %v", ErrAddressMismatch, *port, self.Address)
	}

	if _, err := timestamps.NewClock(*clock); err != nil {
		return nil, err
	}
	if *minWait < 0 || *maxWait < *minWait {
		return nil, fmt.Errorf("invalid wait bounds: -min_wait %v, -max_wait %v", *minWait, *maxWait)
	}
	if *hold < 0 {
		return nil, fmt.Errorf("invalid -hold %v", *hold)
	}

	return &Config{
		NodeID:     self.ID,
		Addr:       self.Address,
		Directory:  dir,
		ConfigPath: *configPath,
		LogPath:    *logPath,
		Debug:      *debug,
		Clock:      *clock,
		MinWait:    *minWait,
		MaxWait:    *maxWait,
		Hold:       *hold,
		RedisAddr:  *redisAddr,
		StatusAddr: *statusAddr,
		TracePath:  *tracePath,
	}, nil
}

// Prints every setting, one per line.
func (c *Config) logSettings(log *logging.Logger) {
	orNone := func(s string) string {
		if s == "" {
			return "disabled"
		}
		return s
	}

	log.Info("Settings:")
	log.Infof("  node_id     = %v", c.NodeID)
	log.Infof("  address     = %v", c.Addr)
	log.Infof("  config_path = %s", c.ConfigPath)
	log.Infof("  peers       = %v (%d)", c.Directory.Peers(), c.Directory.Len())
	log.Infof("  log_path    = %s", c.LogPath)
	log.Infof("  debug       = %v", c.Debug)
	log.Infof("  clock       = %s", c.Clock)
	log.Infof("  min_wait    = %v", c.MinWait)
	log.Infof("  max_wait    = %v", c.MaxWait)
	log.Infof("  hold        = %v", c.Hold)
	log.Infof("  redis       = %s", orNone(c.RedisAddr))
	log.Infof("  status      = %s", orNone(c.StatusAddr))
	log.Infof("  trace       = %s", orNone(c.TracePath))
}
