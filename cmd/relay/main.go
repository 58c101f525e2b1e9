// Command relay pairs design-tool plugins with agents over WebSocket.
//
// Usage:
//
//	relay serve [--addr :3055] [--audit-db relay.db]
//	relay watch [--channel c1]
//	relay usage [--db relay.db] [--json]
//	relay config
//
// Settings are read from flags, RELAY_* environment variables and an
// optional relay.toml, in that order of precedence.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}
