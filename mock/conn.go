// Package mock provides test doubles for relay interfaces using function fields.
package mock

import "github.com/fwojciec/relay"

// Interface compliance checks.
var (
	_ relay.Conn           = (*Conn)(nil)
	_ relay.TranscriptLog  = (*TranscriptLog)(nil)
	_ relay.UsageLog       = (*UsageLog)(nil)
	_ relay.SchemaRegistry = (*SchemaRegistry)(nil)
	_ relay.Schema         = (*Schema)(nil)
)

// Conn is a test double for relay.Conn.
// Set IDFn and SendFn before use.
type Conn struct {
	IDFn   func() string
	SendFn func(data []byte) error
}

// ID delegates to IDFn.
func (c *Conn) ID() string {
	return c.IDFn()
}

// Send delegates to SendFn.
func (c *Conn) Send(data []byte) error {
	return c.SendFn(data)
}
