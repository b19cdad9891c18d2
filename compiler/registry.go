package compiler

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/isdmx/coderunner/config"
)

// Builtin returns the built-in catalog in a fixed order.
func Builtin() []LanguageCompiler {
	return []LanguageCompiler{
		{
			Kind:           KindPython,
			Language:       "python",
			Command:        "python3",
			IsInterpreter:  true,
			ImageName:      "python:3.11-slim",
			StdoutFileName: "python.out",
			StderrFileName: "python.error.out",
			Environment:    map[string]string{"PYTHONDONTWRITEBYTECODE": "1", "PYTHONUNBUFFERED": "1"},
		},
		{
			Kind:           KindNode,
			Language:       "node",
			Command:        "node",
			IsInterpreter:  true,
			ImageName:      "node:20-alpine",
			StdoutFileName: "node.out",
			StderrFileName: "node.error.out",
		},
		{
			Kind:             KindCPP,
			Language:         "cpp",
			Command:          "g++",
			IsInterpreter:    false,
			CompileArguments: "-std=c++17 -O2 -x c++ -o {binary} {source}",
			BinaryName:       "cpp.bin",
			ImageName:        "gcc:13",
			StdoutFileName:   "cpp.out",
			StderrFileName:   "cpp.error.out",
		},
		{
			Kind:             KindGo,
			Language:         "go",
			Command:          "sh",
			IsInterpreter:    false,
			CompileArguments: `-c "cp {source} main.go && go build -o {binary} main.go"`,
			BinaryName:       "go.bin",
			ImageName:        "golang:1.23-alpine",
			StdoutFileName:   "go.out",
			StderrFileName:   "go.error.out",
			Environment: map[string]string{
				"GOCACHE":     "/tmp/go-cache",
				"GOFLAGS":     "-buildvcs=false",
				"GO111MODULE": "off",
				"HOME":        "/tmp",
			},
		},
	}
}

// Registry is the read-only catalog of supported languages. It is filled once
// by NewRegistry and never mutated afterwards, so concurrent Lookup calls need
// no synchronisation.
type Registry struct {
	order   []string
	entries map[string]LanguageCompiler
}

// NewRegistry validates entries and builds a registry. Later entries with the
// same language replace earlier ones.
func NewRegistry(entries ...LanguageCompiler) (*Registry, error) {
	r := &Registry{entries: make(map[string]LanguageCompiler, len(entries))}
	for _, entry := range entries {
		if err := entry.Validate(); err != nil {
			return nil, fmt.Errorf("invalid compiler entry: %w", err)
		}
		key := strings.ToLower(entry.Language)
		if _, exists := r.entries[key]; !exists {
			r.order = append(r.order, key)
		}
		r.entries[key] = entry.clone()
	}
	if err := r.checkFileNames(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewFromConfig builds the process-wide registry: built-in entries, then
// language overrides from cfg, then the optional catalog file.
func NewFromConfig(cfg *config.Config) (*Registry, error) {
	entries := Builtin()
	for i := range entries {
		override, ok := cfg.Languages[entries[i].Language]
		if !ok {
			continue
		}
		if override.Image != "" {
			entries[i].ImageName = override.Image
		}
		if override.AdditionalArguments != "" {
			entries[i].AdditionalArguments = override.AdditionalArguments
		}
		env, err := override.EnvironmentMap()
		if err != nil {
			return nil, fmt.Errorf("languages.%s: %w", entries[i].Language, err)
		}
		if len(env) > 0 {
			if entries[i].Environment == nil {
				entries[i].Environment = map[string]string{}
			}
			maps.Copy(entries[i].Environment, env)
		}
	}

	if cfg.Sandbox.CatalogFile != "" {
		data, err := os.ReadFile(cfg.Sandbox.CatalogFile)
		if err != nil {
			return nil, fmt.Errorf("read catalog file: %w", err)
		}
		extra, err := ParseCatalog(data)
		if err != nil {
			return nil, fmt.Errorf("parse catalog file %s: %w", cfg.Sandbox.CatalogFile, err)
		}
		entries = append(entries, extra...)
	}

	return NewRegistry(entries...)
}

// ParseCatalog decodes a YAML list of compiler descriptors.
func ParseCatalog(data []byte) ([]LanguageCompiler, error) {
	var doc struct {
		Compilers []LanguageCompiler `yaml:"compilers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	builtin := make(map[string]Kind)
	for _, entry := range Builtin() {
		builtin[entry.Language] = entry.Kind
	}
	for i := range doc.Compilers {
		doc.Compilers[i].Kind = builtin[strings.ToLower(doc.Compilers[i].Language)]
	}
	return doc.Compilers, nil
}

// Lookup returns a copy of the descriptor for language.
func (r *Registry) Lookup(language string) (LanguageCompiler, error) {
	entry, ok := r.entries[strings.ToLower(language)]
	if !ok {
		return LanguageCompiler{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}
	return entry.clone(), nil
}

// Languages lists the registered language names in registration order.
func (r *Registry) Languages() []string {
	return slices.Clone(r.order)
}

// All returns copies of every descriptor in registration order.
func (r *Registry) All() []LanguageCompiler {
	out := make([]LanguageCompiler, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.entries[key].clone())
	}
	return out
}

// checkFileNames rejects catalogs where two languages would share an output file.
func (r *Registry) checkFileNames() error {
	seen := make(map[string]string)
	for _, key := range r.order {
		entry := r.entries[key]
		for _, name := range []string{entry.StdoutFileName, entry.StderrFileName} {
			if owner, dup := seen[name]; dup {
				return fmt.Errorf("invalid compiler entry: %s and %s both use output file %s", owner, entry.Language, name)
			}
			seen[name] = entry.Language
		}
	}
	return nil
}
