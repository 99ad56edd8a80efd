// Package analytics is a thin, best-effort emitter into the platform's
// analytics column store. The admission middleware fires one event per
// decision here as a side channel; failures are swallowed since this is
// explicitly not part of the admission contract.
package analytics

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/flarenet/backend/pkg/limiter"
)

// AdmissionLogger writes one row per admission decision to ClickHouse.
type AdmissionLogger struct {
	conn clickhouse.Conn
}

func NewAdmissionLogger(ctx context.Context, addr, database, username, password string) (*AdmissionLogger, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, err
	}
	return &AdmissionLogger{conn: conn}, nil
}

// RecordAdmission inserts one admission-decision row. Errors are returned
// to the caller (the admission middleware itself chooses to ignore them —
// analytics is fire-and-forget, never part of the request's outcome).
func (a *AdmissionLogger) RecordAdmission(ctx context.Context, identifier string, dec limiter.Decision) error {
	return a.conn.Exec(ctx,
		`INSERT INTO admission_events (ts, identifier, allowed, remaining, retry_after_ms) VALUES (?, ?, ?, ?, ?)`,
		time.Now(), identifier, dec.Allow, dec.Remaining, dec.RetryAfter.Milliseconds(),
	)
}

func (a *AdmissionLogger) Close() error {
	return a.conn.Close()
}
