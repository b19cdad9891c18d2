package sandbox

import (
	_ "embed"
	"strconv"
)

// LauncherFileName is the launcher's name inside every workspace.
const LauncherFileName = "script.sh"

// NoStdin is passed to the launcher when the request has no input file.
const NoStdin = "-"

//go:embed script.sh
var defaultLauncher []byte

// DefaultLauncher returns the built-in launcher script.
func DefaultLauncher() []byte {
	out := make([]byte, len(defaultLauncher))
	copy(out, defaultLauncher)
	return out
}

// launcherArgs builds the argv that runs program through the launcher.
func launcherArgs(inv Invocation) []string {
	stdin := inv.StdinFile
	if stdin == "" {
		stdin = NoStdin
	}
	args := make([]string, 0, len(inv.Argv)+6)
	args = append(args, "sh", LauncherFileName, stdin, inv.StdoutFile, inv.StderrFile, strconv.Itoa(int(inv.TimeoutSeconds)))
	return append(args, inv.Argv...)
}
