package relay

import (
	"slices"
	"strings"
	"unicode"
)

// Normalization is a compatibility rewrite applied to inbound frames before
// validation so older senders keep working against newer schemas. Every
// normalization is idempotent and only modifies a frame when it changes
// something. schemas may be nil.
type Normalization struct {
	Version int
	Name    string
	Apply   func(f *Frame, schemas SchemaRegistry)
}

// Normalizations lists the compatibility rewrites in the order they run.
var Normalizations = []Normalization{
	{Version: 1, Name: "tool_call field aliases", Apply: aliasToolCallFields},
	{Version: 2, Name: "snake_case tool_call params", Apply: snakeCaseParams},
	{Version: 3, Name: "error_structured alias", Apply: aliasErrorStructured},
	{Version: 4, Name: "join role case", Apply: canonicalRole},
}

// Normalize applies every normalization to f in version order. Rewrites of
// tool_call params only apply to commands registered in schemas; params of
// other commands are passed through untouched.
func Normalize(f *Frame, schemas SchemaRegistry) {
	for _, n := range Normalizations {
		n.Apply(f, schemas)
	}
}

func aliasToolCallFields(f *Frame, _ SchemaRegistry) {
	if f.Type() != TypeToolCall {
		return
	}
	rename(f, "tool", "command")
	rename(f, "args", "params")
	rename(f, "arguments", "params")
}

func aliasErrorStructured(f *Frame, _ SchemaRegistry) {
	if f.Type() != TypeToolResponse {
		return
	}
	rename(f, "errorStructured", "error_structured")
}

// rename moves from to to when to is absent.
func rename(f *Frame, from, to string) {
	if f.Has(to) {
		return
	}
	v, ok := f.Get(from)
	if !ok {
		return
	}
	f.Delete(from)
	f.Set(to, v)
}

// snakeCaseParams renames camelCase params of schema-backed commands. Keys
// are visited in sorted order and a rename never overwrites an existing or
// already produced key, so colliding spellings resolve the same way every
// time and the losing key is kept as sent.
func snakeCaseParams(f *Frame, schemas SchemaRegistry) {
	if f.Type() != TypeToolCall || schemas == nil {
		return
	}
	command, _ := f.String("command")
	if _, ok := schemas.Lookup(command); !ok {
		return
	}
	params, ok := f.Object("params")
	if !ok {
		return
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var out map[string]any
	for _, k := range keys {
		snake := SnakeCase(k)
		if snake == k {
			continue
		}
		if _, exists := params[snake]; exists {
			continue
		}
		if out == nil {
			out = make(map[string]any, len(params))
			for k2, v2 := range params {
				out[k2] = v2
			}
		} else if _, produced := out[snake]; produced {
			continue
		}
		delete(out, k)
		out[snake] = params[k]
	}
	if out != nil {
		f.Set("params", out)
	}
}

func canonicalRole(f *Frame, _ SchemaRegistry) {
	if f.Type() != TypeJoin {
		return
	}
	role, ok := f.String("role")
	if !ok {
		return
	}
	canon := strings.ToLower(strings.TrimSpace(role))
	if canon != role {
		f.Set("role", canon)
	}
}

// SnakeCase converts a camelCase or PascalCase identifier to snake_case.
// Acronyms stay together: "parentID" becomes "parent_id" and "HTTPServer"
// becomes "http_server". Identifiers without upper-case letters are
// returned unchanged.
func SnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '_' {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
