// Package compiler holds the catalog of language runtimes the sandbox can run.
//
// Each LanguageCompiler names the container image, the interpreter or
// compiler executable, and the fixed stdout/stderr file names the launcher
// script redirects to. The Registry is built once at startup from the
// built-in entries, config overrides and an optional YAML catalog file, and
// is read-only afterwards.
package compiler
