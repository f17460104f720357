package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ricirt/community-digest/internal/queue"
)

// Logger builds the process logger: zap production config, or development
// config when log.development is set, at the configured level.
func (c LogConfig) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// Queue returns the queue description shared by the publisher and consumers.
func (c BrokerConfig) Queue(clientName string) queue.Config {
	return queue.Config{
		URL:             c.URL,
		Name:            c.QueueName,
		MaxMsgs:         c.MaxLength,
		MaxAge:          c.MessageTTL,
		DuplicateWindow: c.DuplicateWindow,
		AckWait:         c.AckWait,
		FetchWait:       c.FetchWait,
		ClientName:      clientName,
	}
}

// EmbeddedServer derives the in-process broker's listen address from the
// broker URL so other processes can reach it at the same address.
func (c BrokerConfig) EmbeddedServer() (queue.ServerConfig, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return queue.ServerConfig{}, fmt.Errorf("BROKER_URL: %w", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return queue.ServerConfig{}, fmt.Errorf("BROKER_URL %q: %w", c.URL, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return queue.ServerConfig{}, fmt.Errorf("BROKER_URL port %q: %w", portStr, err)
	}
	return queue.ServerConfig{Host: host, Port: port, StoreDir: c.StoreDir}, nil
}
