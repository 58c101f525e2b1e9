// Package jsonschema validates tool_call params with JSON Schema documents.
package jsonschema

import (
	"embed"
	"fmt"
	iofs "io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fwojciec/relay"
	"github.com/xeipuuv/gojsonschema"
)

// DefaultPattern matches schema files in an extra schema directory.
const DefaultPattern = "**/*.json"

//go:embed catalog/*.json
var catalog embed.FS

// ValidationError reports params that do not conform to a command schema.
type ValidationError struct {
	Command string
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("params of %s do not match schema: %s", e.Command, strings.Join(e.Details, "; "))
}

// Unwrap makes errors.Is(err, relay.ErrValidation) hold.
func (e *ValidationError) Unwrap() error { return relay.ErrValidation }

// Schema is a compiled parameter schema for one command.
type Schema struct {
	command  string
	compiled *gojsonschema.Schema
}

// Validate checks params against the schema.
func (s *Schema) Validate(params any) error {
	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return fmt.Errorf("validate params of %s: %v: %w", s.command, err, relay.ErrValidation)
	}
	if result.Valid() {
		return nil
	}
	verr := &ValidationError{Command: s.command}
	for _, desc := range result.Errors() {
		verr.Details = append(verr.Details, desc.String())
	}
	return verr
}

// Registry is an immutable table of command schemas.
type Registry struct {
	schemas map[string]*Schema
}

// Lookup implements relay.SchemaRegistry.
func (r *Registry) Lookup(command string) (relay.Schema, bool) {
	s, ok := r.schemas[command]
	if !ok {
		return nil, false
	}
	return s, true
}

// Commands returns the commands with a schema, sorted.
func (r *Registry) Commands() []string {
	out := make([]string, 0, len(r.schemas))
	for c := range r.schemas {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Compile builds a Registry from schema documents keyed by command.
func Compile(sources map[string][]byte) (*Registry, error) {
	r := &Registry{schemas: make(map[string]*Schema, len(sources))}
	for command, data := range sources {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", command, err)
		}
		r.schemas[command] = &Schema{command: command, compiled: compiled}
	}
	return r, nil
}

// LoadFS reads the schema files of fsys matching pattern. Each file's base
// name without extension is the command it describes.
func LoadFS(fsys iofs.FS, pattern string) (map[string][]byte, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid schema pattern: %s", pattern)
	}
	sources := make(map[string][]byte)
	err := doublestar.GlobWalk(fsys, pattern, func(p string, d iofs.DirEntry) error {
		if d.IsDir() {
			return nil
		}
		data, err := iofs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		command := strings.TrimSuffix(path.Base(p), path.Ext(p))
		if _, dup := sources[command]; dup {
			return fmt.Errorf("duplicate schema for %s at %s", command, p)
		}
		sources[command] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sources, nil
}

// Default returns the registry of the embedded command catalogue.
func Default() (*Registry, error) {
	return Load("", "")
}

// Load returns the embedded catalogue extended with the schemas in dir
// matching pattern. A file overrides the embedded schema of the same
// command. An empty dir loads the catalogue alone; an empty pattern means
// DefaultPattern.
func Load(dir, pattern string) (*Registry, error) {
	sources, err := LoadFS(catalog, "catalog/*.json")
	if err != nil {
		return nil, fmt.Errorf("load catalogue: %w", err)
	}
	if dir != "" {
		if pattern == "" {
			pattern = DefaultPattern
		}
		extra, err := LoadFS(os.DirFS(dir), pattern)
		if err != nil {
			return nil, fmt.Errorf("load schemas from %s: %w", dir, err)
		}
		for command, data := range extra {
			sources[command] = data
		}
	}
	return Compile(sources)
}

// Interface compliance checks.
var (
	_ relay.SchemaRegistry = (*Registry)(nil)
	_ relay.Schema         = (*Schema)(nil)
)
