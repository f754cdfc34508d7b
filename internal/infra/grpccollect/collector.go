// Package grpccollect adapts a remote gRPC error collector behind the
// reporter contract. Records are converted to google.rpc.Status and
// delivered with a raw invoke, so no generated client is required.
package grpccollect

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genproto/googleapis/rpc/code"
	spb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/brahim-guaali/error-boundary/internal/core/domain"
)

const reportMethod = "/errorboundary.v1.Collector/Report"

// Config holds collector connection configuration.
type Config struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Collector is a gRPC-backed reporter sink.
type Collector struct {
	conn    *grpc.ClientConn
	timeout time.Duration

	mu     sync.Mutex
	userID string
	keys   map[string]string
}

// NewCollector dials the collector endpoint. TLS is used for https://
// endpoints and :443 targets, plaintext otherwise.
func NewCollector(ctx context.Context, cfg Config) (*Collector, error) {
	target := cfg.Endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(target, "https://") || strings.HasSuffix(target, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial collector %s: %w", target, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Collector{
		conn:    conn,
		timeout: timeout,
		keys:    make(map[string]string),
	}, nil
}

// Name identifies the reporter in logs and metrics.
func (c *Collector) Name() string { return "grpc_collector" }

// Report converts the record to a google.rpc.Status and invokes the
// collector's Report method. User identity and custom keys travel as
// request metadata.
func (c *Collector) Report(ctx context.Context, record *domain.Record) error {
	st := &spb.Status{
		Code:    severityCode(record.Severity),
		Message: record.Message(),
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	md := metadata.Pairs(
		"x-record-id", record.ID,
		"x-classification", string(record.Classification),
		"x-severity", string(record.Severity),
	)
	if record.Source != "" {
		md.Append("x-source", record.Source)
	}

	c.mu.Lock()
	if c.userID != "" {
		md.Append("x-user-id", c.userID)
	}
	for k, v := range c.keys {
		md.Append("x-custom-"+k, v)
	}
	c.mu.Unlock()

	ctx = metadata.NewOutgoingContext(ctx, md)
	if err := c.conn.Invoke(ctx, reportMethod, st, new(emptypb.Empty)); err != nil {
		return fmt.Errorf("collector report failed: %w", err)
	}
	return nil
}

// SetUserIdentifier attaches a user identity to subsequent reports.
func (c *Collector) SetUserIdentifier(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = id
}

// SetCustomKey attaches a key to subsequent reports; nil removes. Values
// are stringified since they travel as gRPC metadata.
func (c *Collector) SetCustomKey(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value == nil {
		delete(c.keys, key)
		return
	}
	c.keys[key] = fmt.Sprint(value)
}

// Close tears down the connection.
func (c *Collector) Close() error {
	return c.conn.Close()
}

func severityCode(s domain.Severity) int32 {
	switch s {
	case domain.SeverityLow:
		return int32(code.Code_UNKNOWN)
	case domain.SeverityMedium:
		return int32(code.Code_ABORTED)
	case domain.SeverityHigh:
		return int32(code.Code_INTERNAL)
	case domain.SeverityCritical:
		return int32(code.Code_DATA_LOSS)
	}
	return int32(code.Code_UNKNOWN)
}
