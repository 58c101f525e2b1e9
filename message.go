package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MessageType is the discriminant carried in every frame's "type" field.
type MessageType string

const (
	TypeJoin               MessageType = "join"
	TypeNewChat            MessageType = "new_chat"
	TypeUserPrompt         MessageType = "user_prompt"
	TypeAgentResponse      MessageType = "agent_response"
	TypeAgentResponseChunk MessageType = "agent_response_chunk"
	TypeSystem             MessageType = "system"
	TypeError              MessageType = "error"
	TypePing               MessageType = "ping"
	TypePong               MessageType = "pong"
	TypeToolCall           MessageType = "tool_call"
	TypeToolResponse       MessageType = "tool_response"
	TypeProgressUpdate     MessageType = "progress_update"
)

// Frame is a decoded JSON envelope exchanged over a channel.
//
// A frame parsed from the wire keeps its original bytes. Bytes returns
// them unchanged unless a field was modified with Set or Delete, so frames
// the relay does not touch are forwarded verbatim. Numbers decode as
// json.Number to survive re-encoding without loss.
type Frame struct {
	fields map[string]any
	raw    []byte
	dirty  bool
}

// NewFrame creates an empty frame of the given type.
func NewFrame(t MessageType) *Frame {
	return &Frame{
		fields: map[string]any{"type": string(t)},
		dirty:  true,
	}
}

// ParseFrame decodes a single JSON object. Anything else, including
// trailing data after the object, is a validation error.
func ParseFrame(data []byte) (*Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode frame: %v: %w", err, ErrValidation)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after frame: %w", ErrValidation)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("frame is not a JSON object: %w", ErrValidation)
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	return &Frame{fields: obj, raw: raw}, nil
}

// Type returns the frame's discriminant, or "" when it is missing or not a
// string.
func (f *Frame) Type() MessageType {
	s, _ := f.String("type")
	return MessageType(s)
}

// Get returns the raw value of key.
func (f *Frame) Get(key string) (any, bool) {
	v, ok := f.fields[key]
	return v, ok
}

// Has reports whether key is present, including when its value is null.
func (f *Frame) Has(key string) bool {
	_, ok := f.fields[key]
	return ok
}

// String returns the value of key when it is a string.
func (f *Frame) String(key string) (string, bool) {
	s, ok := f.fields[key].(string)
	return s, ok
}

// Bool returns the value of key when it is a boolean.
func (f *Frame) Bool(key string) (bool, bool) {
	b, ok := f.fields[key].(bool)
	return b, ok
}

// Object returns the value of key when it is a JSON object.
func (f *Frame) Object(key string) (map[string]any, bool) {
	m, ok := f.fields[key].(map[string]any)
	return m, ok
}

// Fields exposes the decoded object. Callers must treat it as read-only;
// use Set and Delete to modify the frame.
func (f *Frame) Fields() map[string]any {
	return f.fields
}

// Set assigns key and marks the frame as modified.
func (f *Frame) Set(key string, v any) *Frame {
	f.fields[key] = v
	f.dirty = true
	return f
}

// Delete removes key. Removing an absent key does not modify the frame.
func (f *Frame) Delete(key string) {
	if _, ok := f.fields[key]; !ok {
		return
	}
	delete(f.fields, key)
	f.dirty = true
}

// Modified reports whether the frame differs from the bytes it was parsed
// from.
func (f *Frame) Modified() bool { return f.dirty }

// Bytes returns the wire encoding of the frame.
func (f *Frame) Bytes() ([]byte, error) {
	if !f.dirty && f.raw != nil {
		return f.raw, nil
	}
	return json.Marshal(f.fields)
}

func systemFrame(channel string, message any) *Frame {
	return NewFrame(TypeSystem).Set("message", message).Set("channel", channel)
}

func errorFrame(message, channel string) *Frame {
	f := NewFrame(TypeError).Set("message", message)
	if channel != "" {
		f.Set("channel", channel)
	}
	return f
}
