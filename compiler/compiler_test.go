package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/coderunner/config"
)

func TestBuiltinRegistry(t *testing.T) {
	registry, err := NewRegistry(Builtin()...)
	require.NoError(t, err)

	assert.Equal(t, []string{"python", "node", "cpp", "go"}, registry.Languages())

	tests := []struct {
		language    string
		kind        Kind
		command     string
		interpreter bool
		stdout      string
		stderr      string
	}{
		{"python", KindPython, "python3", true, "python.out", "python.error.out"},
		{"node", KindNode, "node", true, "node.out", "node.error.out"},
		{"cpp", KindCPP, "g++", false, "cpp.out", "cpp.error.out"},
		{"go", KindGo, "sh", false, "go.out", "go.error.out"},
	}

	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			entry, err := registry.Lookup(tt.language)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, entry.Kind)
			assert.Equal(t, tt.kind.String(), entry.Language)
			assert.Equal(t, tt.command, entry.Command)
			assert.Equal(t, tt.interpreter, entry.IsInterpreter)
			assert.Equal(t, tt.stdout, entry.StdoutFileName)
			assert.Equal(t, tt.stderr, entry.StderrFileName)
			assert.NotEmpty(t, entry.ImageName)
		})
	}
}

func TestLookupUnsupported(t *testing.T) {
	registry, err := NewRegistry(Builtin()...)
	require.NoError(t, err)

	_, err = registry.Lookup("cobol")
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
	assert.Contains(t, err.Error(), "cobol")
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	registry, err := NewRegistry(Builtin()...)
	require.NoError(t, err)

	entry, err := registry.Lookup("Python")
	require.NoError(t, err)
	assert.Equal(t, "python", entry.Language)
}

func TestLookupReturnsCopy(t *testing.T) {
	registry, err := NewRegistry(Builtin()...)
	require.NoError(t, err)

	entry, err := registry.Lookup("python")
	require.NoError(t, err)
	entry.ImageName = "evil:latest"
	entry.Environment["INJECTED"] = "1"

	again, err := registry.Lookup("python")
	require.NoError(t, err)
	assert.Equal(t, "python:3.11-slim", again.ImageName)
	assert.NotContains(t, again.Environment, "INJECTED")
}

func TestValidate(t *testing.T) {
	base := LanguageCompiler{
		Language:       "ruby",
		Command:        "ruby",
		IsInterpreter:  true,
		ImageName:      "ruby:3",
		StdoutFileName: "ruby.out",
		StderrFileName: "ruby.error.out",
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*LanguageCompiler)
		errMsg string
	}{
		{"EmptyLanguage", func(c *LanguageCompiler) { c.Language = "" }, "language must not be empty"},
		{"EmptyCommand", func(c *LanguageCompiler) { c.Command = "" }, "command must not be empty"},
		{"EmptyImage", func(c *LanguageCompiler) { c.ImageName = "" }, "image must not be empty"},
		{"MissingOutputFile", func(c *LanguageCompiler) { c.StdoutFileName = "" }, "file names are required"},
		{"SharedOutputFile", func(c *LanguageCompiler) { c.StderrFileName = c.StdoutFileName }, "must differ"},
		{"CompiledWithoutBinary", func(c *LanguageCompiler) { c.IsInterpreter = false }, "binary name"},
		{"UnterminatedQuote", func(c *LanguageCompiler) { c.AdditionalArguments = `-c "oops` }, "additional arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := base
			tt.mutate(&entry)
			err := entry.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNewRegistryRejectsSharedOutputFiles(t *testing.T) {
	entries := Builtin()
	clash := entries[0]
	clash.Language = "python2"
	clash.Kind = KindCustom

	_, err := NewRegistry(append(entries, clash)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both use output file python.out")
}

func TestRunCommand(t *testing.T) {
	t.Run("InterpreterAppendsAdditionalArguments", func(t *testing.T) {
		entry := Builtin()[0]
		entry.AdditionalArguments = `-u -X "utf8=1"`

		argv, err := entry.RunCommand()
		require.NoError(t, err)
		assert.Equal(t, []string{"python3", "-u", "-X", "utf8=1", "python.source"}, argv)
	})

	t.Run("InterpreterWithoutArguments", func(t *testing.T) {
		argv, err := Builtin()[1].RunCommand()
		require.NoError(t, err)
		assert.Equal(t, []string{"node", "node.source"}, argv)
	})

	t.Run("CompiledRunsBinary", func(t *testing.T) {
		argv, err := Builtin()[2].RunCommand()
		require.NoError(t, err)
		assert.Equal(t, []string{"./cpp.bin"}, argv)
	})
}

func TestCompileCommand(t *testing.T) {
	t.Run("InterpreterHasNoCompileStep", func(t *testing.T) {
		argv, err := Builtin()[0].CompileCommand()
		require.NoError(t, err)
		assert.Nil(t, argv)
	})

	t.Run("AdditionalArgumentsAppendedLast", func(t *testing.T) {
		entry := Builtin()[2]
		entry.AdditionalArguments = "-Wall -lm"

		argv, err := entry.CompileCommand()
		require.NoError(t, err)
		assert.Equal(t, []string{
			"g++", "-std=c++17", "-O2", "-x", "c++", "-o", "cpp.bin", "cpp.source", "-Wall", "-lm",
		}, argv)
	})

	t.Run("QuotedTemplate", func(t *testing.T) {
		argv, err := Builtin()[3].CompileCommand()
		require.NoError(t, err)
		assert.Equal(t, []string{"sh", "-c", "cp go.source main.go && go build -o go.bin main.go"}, argv)
	})
}

func TestNewFromConfig(t *testing.T) {
	t.Run("AppliesOverrides", func(t *testing.T) {
		cfg := &config.Config{
			Languages: map[string]config.Language{
				"python": {
					Image:               "python:3.12-slim",
					AdditionalArguments: "-u",
					Environment:         []string{"PYTHONPATH=/sandbox"},
				},
				"node": {
					Environment: []string{"NODE_ENV=production"},
				},
			},
		}

		registry, err := NewFromConfig(cfg)
		require.NoError(t, err)

		python, err := registry.Lookup("python")
		require.NoError(t, err)
		assert.Equal(t, "python:3.12-slim", python.ImageName)
		assert.Equal(t, "-u", python.AdditionalArguments)
		assert.Equal(t, "/sandbox", python.Environment["PYTHONPATH"])
		assert.Equal(t, "1", python.Environment["PYTHONUNBUFFERED"])

		node, err := registry.Lookup("node")
		require.NoError(t, err)
		assert.Equal(t, "node:20-alpine", node.ImageName)
		assert.Equal(t, "production", node.Environment["NODE_ENV"])
	})

	t.Run("EnvironmentFromConfigFile", func(t *testing.T) {
		dir := t.TempDir()
		content := `
languages:
  python:
    environment:
      - PYTHONHASHSEED=0
      - MixedCase=a=b
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))
		t.Chdir(dir)

		cfg, err := config.New()
		require.NoError(t, err)
		registry, err := NewFromConfig(cfg)
		require.NoError(t, err)

		python, err := registry.Lookup("python")
		require.NoError(t, err)
		assert.Equal(t, "0", python.Environment["PYTHONHASHSEED"])
		assert.Equal(t, "a=b", python.Environment["MixedCase"])
		assert.NotContains(t, python.Environment, "pythonhashseed")
		assert.Equal(t, "1", python.Environment["PYTHONUNBUFFERED"])
	})

	t.Run("MalformedEnvironment", func(t *testing.T) {
		cfg := &config.Config{
			Languages: map[string]config.Language{
				"python": {Environment: []string{"NOEQUALS"}},
			},
		}
		_, err := NewFromConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "KEY=VALUE")
	})

	t.Run("LoadsCatalogFile", func(t *testing.T) {
		catalog := `
compilers:
  - language: ruby
    command: ruby
    interpreter: true
    image: ruby:3.3-alpine
    stdout_file: ruby.out
    stderr_file: ruby.error.out
`
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		require.NoError(t, os.WriteFile(path, []byte(catalog), 0o600))

		registry, err := NewFromConfig(&config.Config{Sandbox: config.SandboxConfig{CatalogFile: path}})
		require.NoError(t, err)

		ruby, err := registry.Lookup("ruby")
		require.NoError(t, err)
		assert.Equal(t, KindCustom, ruby.Kind)
		assert.Equal(t, "ruby:3.3-alpine", ruby.ImageName)
		assert.Len(t, registry.All(), 5)
	})

	t.Run("MissingCatalogFile", func(t *testing.T) {
		_, err := NewFromConfig(&config.Config{Sandbox: config.SandboxConfig{CatalogFile: "/does/not/exist.yaml"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read catalog file")
	})

	t.Run("InvalidCatalogEntry", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		require.NoError(t, os.WriteFile(path, []byte("compilers:\n  - language: broken\n"), 0o600))

		_, err := NewFromConfig(&config.Config{Sandbox: config.SandboxConfig{CatalogFile: path}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid compiler entry")
	})
}

func TestParseCatalogKeepsBuiltinKind(t *testing.T) {
	entries, err := ParseCatalog([]byte(`
compilers:
  - language: python
    command: pypy3
    interpreter: true
    image: pypy:3
    stdout_file: python.out
    stderr_file: python.error.out
`))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, KindPython, entries[0].Kind)
	assert.Equal(t, "pypy3", entries[0].Command)
}
