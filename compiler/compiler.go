package compiler

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/google/shlex"
)

// ErrUnsupportedLanguage is returned when no catalog entry matches a language.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Kind identifies a catalog variant.
type Kind int

// Catalog variants. New languages are added here, never by wrapping a descriptor.
const (
	KindCustom Kind = iota
	KindPython
	KindNode
	KindCPP
	KindGo
)

func (k Kind) String() string {
	switch k {
	case KindPython:
		return "python"
	case KindNode:
		return "node"
	case KindCPP:
		return "cpp"
	case KindGo:
		return "go"
	default:
		return "custom"
	}
}

// Placeholders expanded inside CompileArguments.
const (
	PlaceholderSource = "{source}"
	PlaceholderBinary = "{binary}"
)

// LanguageCompiler describes how one language runtime is invoked inside the
// isolated environment. Values are copied out of the Registry; mutating a copy
// never changes the catalog.
type LanguageCompiler struct {
	Kind     Kind   `yaml:"-"`
	Language string `yaml:"language"`
	// Command is the interpreter or compiler executable inside the image.
	Command       string `yaml:"command"`
	IsInterpreter bool   `yaml:"interpreter"`
	// AdditionalArguments is split with shell quoting rules and appended after
	// the fixed part of the invocation.
	AdditionalArguments string `yaml:"additional_arguments"`
	// CompileArguments and BinaryName are only used when IsInterpreter is false.
	CompileArguments string            `yaml:"compile_arguments"`
	BinaryName       string            `yaml:"binary_name"`
	ImageName        string            `yaml:"image"`
	StdoutFileName   string            `yaml:"stdout_file"`
	StderrFileName   string            `yaml:"stderr_file"`
	Environment      map[string]string `yaml:"environment"`
}

// SourceFileName is the workspace file the source code is written to.
func (c LanguageCompiler) SourceFileName() string {
	return c.Language + ".source"
}

// StdinFileName is the workspace file test input is written to.
func (c LanguageCompiler) StdinFileName() string {
	return c.Language + ".stdin"
}

// Validate checks the descriptor invariants.
func (c LanguageCompiler) Validate() error {
	switch {
	case c.Language == "":
		return errors.New("language must not be empty")
	case c.Command == "":
		return fmt.Errorf("%s: command must not be empty", c.Language)
	case c.ImageName == "":
		return fmt.Errorf("%s: image must not be empty", c.Language)
	case c.StdoutFileName == "" || c.StderrFileName == "":
		return fmt.Errorf("%s: stdout and stderr file names are required", c.Language)
	case c.StdoutFileName == c.StderrFileName:
		return fmt.Errorf("%s: stdout and stderr file names must differ", c.Language)
	case !c.IsInterpreter && c.BinaryName == "":
		return fmt.Errorf("%s: compiled languages need a binary name", c.Language)
	}
	if _, err := shlex.Split(c.AdditionalArguments); err != nil {
		return fmt.Errorf("%s: parse additional arguments: %w", c.Language, err)
	}
	if _, err := shlex.Split(c.CompileArguments); err != nil {
		return fmt.Errorf("%s: parse compile arguments: %w", c.Language, err)
	}
	return nil
}

// RunCommand returns the argv executed for the program itself.
//
// Interpreters: command, additional arguments..., source file.
// Compiled languages: ./binary (additional arguments belong to the compile step).
func (c LanguageCompiler) RunCommand() ([]string, error) {
	if !c.IsInterpreter {
		return []string{"./" + c.BinaryName}, nil
	}
	extra, err := shlex.Split(c.AdditionalArguments)
	if err != nil {
		return nil, fmt.Errorf("parse additional arguments: %w", err)
	}
	argv := make([]string, 0, len(extra)+2)
	argv = append(argv, c.Command)
	argv = append(argv, extra...)
	argv = append(argv, c.SourceFileName())
	return argv, nil
}

// CompileCommand returns the argv of the compile step: command, expanded
// compile arguments..., additional arguments. It returns nil for interpreters.
func (c LanguageCompiler) CompileCommand() ([]string, error) {
	if c.IsInterpreter {
		return nil, nil
	}
	expanded := strings.ReplaceAll(c.CompileArguments, PlaceholderSource, c.SourceFileName())
	expanded = strings.ReplaceAll(expanded, PlaceholderBinary, c.BinaryName)
	fixed, err := shlex.Split(expanded)
	if err != nil {
		return nil, fmt.Errorf("parse compile arguments: %w", err)
	}
	extra, err := shlex.Split(c.AdditionalArguments)
	if err != nil {
		return nil, fmt.Errorf("parse additional arguments: %w", err)
	}
	argv := make([]string, 0, len(fixed)+len(extra)+1)
	argv = append(argv, c.Command)
	argv = append(argv, fixed...)
	argv = append(argv, extra...)
	return argv, nil
}

func (c LanguageCompiler) clone() LanguageCompiler {
	if c.Environment != nil {
		c.Environment = maps.Clone(c.Environment)
	}
	return c
}
