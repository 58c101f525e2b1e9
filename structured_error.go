package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CodeUnknownPluginError is the code assigned to tool errors that carry no
// code of their own.
const CodeUnknownPluginError = "unknown_plugin_error"

// StructuredError is the canonical envelope every tool error is
// normalized into before it is logged or forwarded.
type StructuredError struct {
	Code    string
	Message string
	Details map[string]any
}

// Map returns the wire shape of e. Details is omitted when nil.
func (e StructuredError) Map() map[string]any {
	m := map[string]any{
		"code":    e.Code,
		"message": e.Message,
	}
	if e.Details != nil {
		m["details"] = e.Details
	}
	return m
}

// RawError is an error payload as found on a tool_response frame: either
// ErrorString or ErrorObject.
type RawError interface {
	rawError()
}

// ErrorString is an error payload sent as a JSON string. The string itself
// may hold encoded JSON.
type ErrorString string

func (ErrorString) rawError() {}

// ErrorObject is an error payload sent as a JSON object.
type ErrorObject map[string]any

func (ErrorObject) rawError() {}

// Interface compliance checks.
var (
	_ RawError = ErrorString("")
	_ RawError = ErrorObject(nil)
)

// NormalizeError converts any raw error payload into a StructuredError.
// Payloads that already carry a code are canonical; everything else is
// wrapped under CodeUnknownPluginError with the original payload in
// details.raw_payload. Normalizing the Map of a StructuredError returns an
// equal StructuredError.
func NormalizeError(raw RawError) StructuredError {
	switch e := raw.(type) {
	case ErrorString:
		return normalizeString(string(e))
	case ErrorObject:
		if se, ok := canonicalError(e); ok {
			return se
		}
		return StructuredError{
			Code:    CodeUnknownPluginError,
			Message: describeObject(e),
			Details: map[string]any{"raw_payload": map[string]any(e)},
		}
	default:
		return StructuredError{
			Code:    CodeUnknownPluginError,
			Message: fmt.Sprint(raw),
		}
	}
}

// RawErrorOf classifies a decoded JSON value as a RawError. Values that are
// neither strings nor objects are rendered to their JSON text.
func RawErrorOf(v any) RawError {
	switch e := v.(type) {
	case string:
		return ErrorString(e)
	case map[string]any:
		return ErrorObject(e)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ErrorString(fmt.Sprint(v))
		}
		return ErrorString(data)
	}
}

// NormalizeFrameError derives the structured error of a tool_response
// frame and stores it under "error_structured". A canonical
// error_structured already on the frame wins and is mirrored into "error"
// when that field is absent or null. Otherwise the first of "error" and
// "error_structured" holding a value is normalized. It returns false when
// the frame carries no error at all.
func NormalizeFrameError(f *Frame) (StructuredError, bool) {
	if obj, ok := f.Object("error_structured"); ok {
		if se, ok := canonicalError(obj); ok {
			f.Set("error_structured", se.Map())
			// A sender-supplied error is forwarded unchanged, so the
			// canonical envelope is mirrored only into an absent or null one.
			if !hasValue(f, "error") {
				f.Set("error", se.Map())
			}
			return se, true
		}
	}
	var raw RawError
	switch {
	case hasValue(f, "error"):
		v, _ := f.Get("error")
		raw = RawErrorOf(v)
	case hasValue(f, "error_structured"):
		v, _ := f.Get("error_structured")
		raw = RawErrorOf(v)
	default:
		return StructuredError{}, false
	}
	se := NormalizeError(raw)
	f.Set("error_structured", se.Map())
	return se, true
}

func normalizeString(s string) StructuredError {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var parsed any
	if err := dec.Decode(&parsed); err != nil || dec.More() {
		return StructuredError{
			Code:    CodeUnknownPluginError,
			Message: s,
			Details: map[string]any{"raw_payload": s},
		}
	}
	if obj, ok := parsed.(map[string]any); ok {
		if se, ok := canonicalError(obj); ok {
			return se
		}
	}
	return StructuredError{
		Code:    CodeUnknownPluginError,
		Message: s,
		Details: map[string]any{"raw_payload": parsed},
	}
}

// canonicalError accepts an object carrying a non-empty code.
func canonicalError(obj map[string]any) (StructuredError, bool) {
	code, ok := obj["code"]
	if !ok || code == nil {
		return StructuredError{}, false
	}
	se := StructuredError{Code: stringify(code)}
	if se.Code == "" {
		return StructuredError{}, false
	}
	if msg, ok := obj["message"]; ok && msg != nil {
		se.Message = stringify(msg)
	}
	if details, ok := obj["details"].(map[string]any); ok {
		se.Details = details
	}
	return se, true
}

func describeObject(obj map[string]any) string {
	if msg, ok := obj["message"].(string); ok && msg != "" {
		return msg
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Sprint(obj)
	}
	return string(data)
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
