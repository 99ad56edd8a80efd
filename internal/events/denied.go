// Package events is a thin publisher into the platform's pub/sub broker.
// It exists so downstream consumers (alerting, dashboards) can react to
// sustained rate-limit denials without the admission gate knowing anything
// about them.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

const deniedSubject = "flarenet.ratelimit.denied"

// Publisher publishes one message per denied admission check.
type Publisher struct {
	nc *nats.Conn
}

func NewPublisher(url string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Timeout(5*time.Second))
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc}, nil
}

type deniedEvent struct {
	Identifier string    `json:"identifier"`
	At         time.Time `json:"at"`
	RetryAfter int64     `json:"retryAfterSeconds"`
}

// PublishDenied is fire-and-forget: it does not block the admission
// decision on the broker being reachable.
func (p *Publisher) PublishDenied(_ context.Context, identifier string, retryAfter time.Duration) error {
	payload, err := json.Marshal(deniedEvent{
		Identifier: identifier,
		At:         time.Now(),
		RetryAfter: int64(retryAfter.Seconds()),
	})
	if err != nil {
		return err
	}
	return p.nc.Publish(deniedSubject, payload)
}

func (p *Publisher) Close() {
	p.nc.Close()
}
