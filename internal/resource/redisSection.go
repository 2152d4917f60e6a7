package resource

import (
	"errors"
	"fmt"

	"github.com/go-redis/redis"

	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/logging"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/mutex"
)

// ErrResourceBusy is returned when the shared resource is found held by someone else on entry.
var ErrResourceBusy = errors.New("shared resource is already held")

const defaultKeyPrefix = "ramutex:"

// Redis makes the critical section act on a resource shared by every peer: a Redis server.
//
// On entry the holder key is claimed with SETNX, so two peers inside the critical section at once are detected. Each entry increments a counter and is pushed on a history list before the wrapped body runs. The holder key is deleted on the way out.
type Redis struct {
	logger *logging.Logger
	client *redis.Client
	inner  mutex.CriticalSection

	holderKey  string
	entriesKey string
	historyKey string
}

// DialRedis connects to the Redis server at addr and checks it answers.
func DialRedis(logger *logging.Logger, addr string, inner mutex.CriticalSection) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "",
		DB:       0,
	})
	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error connecting to redis at %s: %w", addr, err)
	}

	logger.Infof("Connected to redis at %s", addr)
	return newRedis(logger, client, inner, defaultKeyPrefix), nil
}

func newRedis(logger *logging.Logger, client *redis.Client, inner mutex.CriticalSection, prefix string) *Redis {
	return &Redis{
		logger:     logger,
		client:     client,
		inner:      inner,
		holderKey:  prefix + "holder",
		entriesKey: prefix + "entries",
		historyKey: prefix + "history",
	}
}

func (r *Redis) Run(c mutex.Cycle) error {
	record := fmt.Sprintf("%v:%s", c.Peer, c.ID)

	acquired, err := r.client.SetNX(r.holderKey, record, 0).Result()
	if err != nil {
		return fmt.Errorf("could not claim %s: %w", r.holderKey, err)
	}
	if !acquired {
		holder, _ := r.client.Get(r.holderKey).Result()
		r.logger.Errorf("MUTUAL EXCLUSION VIOLATED: %s entered while %s holds the resource", record, holder)
		return fmt.Errorf("%w by %s", ErrResourceBusy, holder)
	}
	defer func() {
		if err := r.client.Del(r.holderKey).Err(); err != nil {
			r.logger.Errorf("Could not release %s: %v", r.holderKey, err)
		}
	}()

	n, err := r.client.Incr(r.entriesKey).Result()
	if err != nil {
		return fmt.Errorf("could not count entry: %w", err)
	}
	if err := r.client.LPush(r.historyKey, record).Err(); err != nil {
		return fmt.Errorf("could not record entry: %w", err)
	}
	r.logger.Infof("Recorded entry #%d as %s", n, record)

	if r.inner == nil {
		return nil
	}
	return r.inner.Run(c)
}

// Close closes the connection to the server.
func (r *Redis) Close() error {
	return r.client.Close()
}
