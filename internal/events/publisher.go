// Package events publishes pass reports to NATS.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/user/connwatch/internal/config"
	"github.com/user/connwatch/internal/logger"
	"github.com/user/connwatch/internal/monitor"
)

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher sends every CycleReport as JSON to a NATS subject. It
// implements monitor.Hook.
type Publisher struct {
	nc      conn
	subject string
}

// NewPublisher connects to the configured NATS server.
func NewPublisher(cfg config.NATS) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("connwatch"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	logger.Info("Connected to NATS server at %s", cfg.URL)
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Encode serializes r for the wire.
func Encode(r *monitor.CycleReport) ([]byte, error) {
	return json.Marshal(r)
}

// Publish encodes r and publishes it to the subject.
func (p *Publisher) Publish(r *monitor.CycleReport) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// CycleCompleted publishes r. Failures are logged; they never stop the monitor.
func (p *Publisher) CycleCompleted(r *monitor.CycleReport) {
	if err := p.Publish(r); err != nil {
		logger.Error("Failed to publish pass %s to %s: %v", r.PassID, p.subject, err)
	}
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			logger.Warning("NATS drain failed: %v", err)
			return
		}
		logger.Info("NATS connection drained and closed")
	}
}
