package queue

import (
	"fmt"
	"strings"
	"time"
)

// Config describes the durable queue. A queue named "posts" is realised as a
// JetStream stream "posts" on the subject "posts.items", consumed by the
// durable consumer "posts_consumer". Dead letters go to the stream
// "posts_dead" on the subject "posts.dead".
type Config struct {
	URL             string
	Name            string
	MaxMsgs         int64
	MaxAge          time.Duration
	DuplicateWindow time.Duration
	AckWait         time.Duration
	FetchWait       time.Duration
	ClientName      string
	// Unacknowledged messages allowed across all sessions of the durable
	// consumer. Each session fetches one at a time, so this is the number of
	// workers that may hold a message concurrently. Zero means 1.
	MaxAckPending int
}

// DefaultConfig returns the queue bounds used when nothing is configured:
// 10 000 messages, 24h per-message TTL.
func DefaultConfig() Config {
	return Config{
		URL:             "nats://127.0.0.1:4222",
		Name:            "reddit_posts",
		MaxMsgs:         10000,
		MaxAge:          24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
		AckWait:         5 * time.Minute,
		FetchWait:       2 * time.Second,
	}
}

func (c Config) Subject() string     { return c.Name + ".items" }
func (c Config) DeadSubject() string { return c.Name + ".dead" }
func (c Config) Durable() string     { return c.Name + "_consumer" }
func (c Config) DeadStream() string  { return c.Name + "_dead" }

// Validate checks the fields JetStream would otherwise reject at declare time.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("queue name is required")
	}
	if strings.ContainsAny(c.Name, ". *>\t") {
		return fmt.Errorf("queue name %q must not contain '.', '*', '>' or whitespace", c.Name)
	}
	if c.MaxMsgs <= 0 {
		return fmt.Errorf("queue max length must be positive")
	}
	if c.MaxAge <= 0 {
		return fmt.Errorf("queue message ttl must be positive")
	}
	if c.DuplicateWindow > c.MaxAge {
		return fmt.Errorf("duplicate window %s exceeds message ttl %s", c.DuplicateWindow, c.MaxAge)
	}
	return nil
}
