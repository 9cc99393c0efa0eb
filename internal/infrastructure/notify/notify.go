// Package notify publishes lifecycle transitions to NATS so that other
// components on the device can follow which applications are foreground,
// background or dead.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/keepalive/internal/domain/app"
	"github.com/GriffinCanCode/keepalive/internal/shared/id"
)

// DefaultPrefix is the subject prefix of lifecycle notifications
const DefaultPrefix = "keepalive.lifecycle"

// ErrClosed is returned after Close
var ErrClosed = errors.New("publisher closed")

// Event is the wire form of a transition
type Event struct {
	ID        string `json:"id"`
	App       string `json:"app"`
	UserID    int    `json:"user_id"`
	Package   string `json:"package"`
	From      string `json:"from"`
	To        string `json:"to"`
	Component string `json:"component,omitempty"`
	At        int64  `json:"at_unix_ms"`
}

// NewEvent converts a transition
func NewEvent(t app.Transition) Event {
	return Event{
		ID:        id.NewEventID().String(),
		App:       t.Identity.Key(),
		UserID:    t.Identity.UserID,
		Package:   t.Identity.Package,
		From:      t.From.String(),
		To:        t.To.String(),
		Component: t.Component,
		At:        t.At.UnixMilli(),
	}
}

// Publisher delivers transitions
type Publisher interface {
	Publish(ctx context.Context, t app.Transition) error
	Close() error
}

// Conn is the part of *nats.Conn the publisher uses
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Config configures the NATS connection
type Config struct {
	URL     string
	Name    string
	Prefix  string
	Timeout time.Duration
}

// NATSPublisher publishes transitions on <prefix>.<state>
type NATSPublisher struct {
	conn   Conn
	prefix string
	logger *zap.Logger
	closed atomic.Bool
}

// Connect dials NATS and returns a publisher over the connection
func Connect(cfg Config, logger *zap.Logger) (*NATSPublisher, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "keepalive"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("notify")

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return NewPublisher(conn, cfg.Prefix, logger), nil
}

// NewPublisher creates a publisher over an existing connection
func NewPublisher(conn Conn, prefix string, logger *zap.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the subject a transition into state is published on
func (p *NATSPublisher) Subject(t app.Transition) string {
	return p.prefix + "." + t.To.String()
}

// Publish implements Publisher
func (p *NATSPublisher) Publish(ctx context.Context, t app.Transition) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := sonic.Marshal(NewEvent(t))
	if err != nil {
		return fmt.Errorf("encode transition: %w", err)
	}
	if err := p.conn.Publish(p.Subject(t), data); err != nil {
		return fmt.Errorf("publish transition: %w", err)
	}
	return nil
}

// Close drains the connection
func (p *NATSPublisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.conn.Drain()
}

// Nop discards every transition
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(context.Context, app.Transition) error { return nil }

// Close implements Publisher
func (Nop) Close() error { return nil }

// Decode parses a published event
func Decode(data []byte) (Event, error) {
	var e Event
	if err := sonic.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode transition: %w", err)
	}
	return e, nil
}
