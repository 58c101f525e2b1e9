package mock

import "github.com/fwojciec/relay"

// SchemaRegistry is a test double for relay.SchemaRegistry.
// Set LookupFn before calling Lookup.
type SchemaRegistry struct {
	LookupFn func(command string) (relay.Schema, bool)
}

// Lookup delegates to LookupFn.
func (r *SchemaRegistry) Lookup(command string) (relay.Schema, bool) {
	return r.LookupFn(command)
}

// Schema is a test double for relay.Schema.
// Set ValidateFn before calling Validate.
type Schema struct {
	ValidateFn func(params any) error
}

// Validate delegates to ValidateFn.
func (s *Schema) Validate(params any) error {
	return s.ValidateFn(params)
}
