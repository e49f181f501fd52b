package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"example.com/calendarapi/internal/domain"
)

type KeySource string

const (
	KeyFromRequestID KeySource = "request_id"
	KeyFromComposite KeySource = "composite"
)

// DeriveKey returns a stable idempotency key for a journaled change and the
// source used.
//   - Prefer the request id, scoped by op, event id and date, when the change
//     carries one. A client reusing a request id still gets distinct keys
//     for distinct changes.
//   - Fall back to a composite of op, event id, date, payload and commit time.
//
// Both forms are hex SHA-256 so the column has a fixed length.
func DeriveKey(c *domain.Change) (key string, src KeySource) {
	if c.RequestID != "" {
		scoped := fmt.Sprintf("%s|%s|%d|%s", c.RequestID, c.Op, c.Event.ID, c.Event.Date)
		return digest(scoped), KeyFromRequestID
	}
	composite := fmt.Sprintf("%s|%d|%s|%s|%s|%d",
		c.Op, c.Event.ID, c.Event.Date, c.Event.Title, c.Event.Text, c.At.UnixNano())
	return digest(composite), KeyFromComposite
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
