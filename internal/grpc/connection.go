package grpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/shhac/gcall/internal/domain"
)

// ConnectionManager manages the lifecycle of a gRPC client connection
type ConnectionManager struct {
	conn    *grpc.ClientConn
	address string
	logger  *slog.Logger
	mu      sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(logger *slog.Logger) *ConnectionManager {
	return &ConnectionManager{logger: logger}
}

// Connect creates a client connection for cfg. When cfg.Timeout is set the
// connection is established eagerly and must become ready within it;
// otherwise it is established lazily on the first call.
func (m *ConnectionManager) Connect(ctx context.Context, cfg domain.Connection) (*grpc.ClientConn, error) {
	m.logger.Debug("connecting", slog.String("address", cfg.Address))

	creds, err := m.transportCredentials(cfg)
	if err != nil {
		return nil, err
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithUserAgent("gcall"),
	}

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		m.logger.Debug("failed to create gRPC client",
			slog.String("address", cfg.Address),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("connect to %s: %w", cfg.Address, err)
	}

	if cfg.Timeout > 0 {
		if err := waitForReady(ctx, conn, cfg.Timeout); err != nil {
			conn.Close()
			m.logger.Debug("connection not ready",
				slog.String("address", cfg.Address),
				slog.Any("error", err),
			)
			return nil, fmt.Errorf("connect to %s: %w", cfg.Address, err)
		}
	}

	m.mu.Lock()
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.logger.Warn("failed to close old connection", slog.Any("error", err))
		}
	}
	m.conn = conn
	m.address = cfg.Address
	m.mu.Unlock()

	m.logger.Debug("gRPC connection created",
		slog.String("address", cfg.Address),
		slog.Bool("tls", cfg.UseTLS),
	)
	return conn, nil
}

func (m *ConnectionManager) transportCredentials(cfg domain.Connection) (credentials.TransportCredentials, error) {
	if !cfg.UseTLS {
		m.logger.Debug("using plaintext connection", slog.String("address", cfg.Address))
		return insecure.NewCredentials(), nil
	}

	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.SkipVerify,
	}
	if cfg.TLS.SkipVerify {
		m.logger.Warn("using insecure TLS connection (skipping certificate verification)")
	}
	if cfg.TLS.CertFile != "" {
		pem, err := os.ReadFile(cfg.TLS.CertFile)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.TLS.CertFile)
		}
		tlsCfg.RootCAs = pool
	}
	return credentials.NewTLS(tlsCfg), nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("connection not ready (last state %s): %w", state, ctx.Err())
		}
	}
}

// Disconnect closes the gRPC connection
func (m *ConnectionManager) Disconnect() error {
	m.mu.Lock()
	conn, addr := m.conn, m.address
	m.conn = nil
	m.address = ""
	m.mu.Unlock()

	if conn == nil {
		return nil
	}

	if err := conn.Close(); err != nil {
		m.logger.Debug("failed to close connection",
			slog.String("address", addr),
			slog.Any("error", err),
		)
		return err
	}

	m.logger.Debug("gRPC connection closed", slog.String("address", addr))
	return nil
}

// Conn returns the current gRPC client connection
// Returns nil if not connected
func (m *ConnectionManager) Conn() *grpc.ClientConn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}
