package relay

import "fmt"

// Schema validates the params of one command.
type Schema interface {
	Validate(params any) error
}

// SchemaRegistry maps command names to parameter schemas. Commands without
// a schema are passed through unchecked.
type SchemaRegistry interface {
	Lookup(command string) (Schema, bool)
}

type fieldKind uint8

const (
	kindPresent fieldKind = iota // any non-null value
	kindString
	kindNonEmpty // non-empty string
	kindBool
)

type fieldRule struct {
	name     string
	kind     fieldKind
	optional bool
}

// frameRules lists the required and typed optional fields of every known
// frame type. A type with no rules accepts any payload.
var frameRules = map[MessageType][]fieldRule{
	TypeJoin:               {{name: "role", kind: kindString}, {name: "channel", kind: kindNonEmpty}},
	TypeSystem:             {{name: "message", kind: kindPresent}, {name: "channel", kind: kindString}},
	TypeError:              {{name: "message", kind: kindPresent}, {name: "channel", kind: kindString, optional: true}},
	TypePing:               nil,
	TypePong:               nil,
	TypeNewChat:            nil,
	TypeUserPrompt:         {{name: "prompt", kind: kindString}},
	TypeAgentResponse:      {{name: "prompt", kind: kindString}, {name: "is_final", kind: kindBool, optional: true}},
	TypeAgentResponseChunk: {{name: "chunk", kind: kindString}, {name: "is_partial", kind: kindBool}},
	TypeToolCall:           {{name: "id", kind: kindNonEmpty}, {name: "command", kind: kindNonEmpty}, {name: "params", kind: kindPresent}},
	TypeToolResponse:       {{name: "id", kind: kindNonEmpty}},
	TypeProgressUpdate:     nil,
}

// ValidateFrame checks f against the field rules of its type. tool_call
// params are additionally checked against the schema registered for the
// command, if any; schemas may be nil. All failures wrap ErrValidation.
func ValidateFrame(f *Frame, schemas SchemaRegistry) error {
	t := f.Type()
	rules, ok := frameRules[t]
	if !ok {
		return fmt.Errorf("unknown frame type %q: %w", t, ErrValidation)
	}
	for _, r := range rules {
		if err := r.check(f); err != nil {
			return fmt.Errorf("%s: %w", t, err)
		}
	}
	switch t {
	case TypeJoin:
		role, _ := f.String("role")
		if !Role(role).Valid() {
			return fmt.Errorf("join: role %q: %w", role, ErrValidation)
		}
	case TypeToolResponse:
		if !hasValue(f, "result") && !hasValue(f, "error") && !hasValue(f, "error_structured") {
			return fmt.Errorf("tool_response: result or error required: %w", ErrValidation)
		}
	case TypeToolCall:
		if schemas == nil {
			return nil
		}
		command, _ := f.String("command")
		schema, ok := schemas.Lookup(command)
		if !ok || schema == nil {
			return nil
		}
		params, _ := f.Get("params")
		if err := schema.Validate(params); err != nil {
			return fmt.Errorf("tool_call %s params: %w", command, err)
		}
	}
	return nil
}

// hasValue reports whether key is present with a non-null value.
func hasValue(f *Frame, key string) bool {
	v, ok := f.Get(key)
	return ok && v != nil
}

func (r fieldRule) check(f *Frame) error {
	v, ok := f.Get(r.name)
	if !ok || v == nil {
		if r.optional {
			return nil
		}
		return fmt.Errorf("missing %s: %w", r.name, ErrValidation)
	}
	switch r.kind {
	case kindString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("%s must be a string: %w", r.name, ErrValidation)
		}
	case kindNonEmpty:
		if s, ok := v.(string); !ok || s == "" {
			return fmt.Errorf("%s must be a non-empty string: %w", r.name, ErrValidation)
		}
	case kindBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%s must be a boolean: %w", r.name, ErrValidation)
		}
	}
	return nil
}
