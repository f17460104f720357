package queue

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// ServerConfig configures the in-process broker used for local runs and tests.
type ServerConfig struct {
	Host     string
	Port     int // -1 picks a random free port
	StoreDir string
}

// EmbeddedServer is a JetStream-enabled NATS server running in this process.
type EmbeddedServer struct {
	server *server.Server
}

// NewEmbeddedServer starts the server and waits until it accepts clients.
func NewEmbeddedServer(cfg ServerConfig) (*EmbeddedServer, error) {
	opts := &server.Options{
		ServerName: "community-digest",
		Host:       cfg.Host,
		Port:       cfg.Port,
		JetStream:  true,
		StoreDir:   cfg.StoreDir,
		NoLog:      true,
		NoSigs:     true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}

	return &EmbeddedServer{server: ns}, nil
}

func (s *EmbeddedServer) ClientURL() string {
	return s.server.ClientURL()
}

// Shutdown stops the server and waits for it to exit.
func (s *EmbeddedServer) Shutdown() {
	s.server.Shutdown()
	s.server.WaitForShutdown()
}
