// Package deps reports which external tools the capture, injection and
// notification backends shell out to are installed.
package deps

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// Status represents the installation status of a dependency
type Status struct {
	Installed bool
	Path      string
	Version   string
}

// Tool is an external program one of the backends needs.
type Tool struct {
	Name        string
	VersionArgs []string
	UsedBy      string // config value that needs it
}

var Tools = []Tool{
	{Name: "pw-record", VersionArgs: []string{"--version"}, UsedBy: "recording.backend = pipewire"},
	{Name: "pw-cli", VersionArgs: []string{"--version"}, UsedBy: "recording.backend = pipewire"},
	{Name: "ydotool", UsedBy: "injection.backends: ydotool"},
	{Name: "wtype", UsedBy: "injection.backends: wtype"},
	{Name: "wl-copy", VersionArgs: []string{"--version"}, UsedBy: "injection.backends: clipboard"},
	{Name: "notify-send", VersionArgs: []string{"--version"}, UsedBy: "notifications.type = desktop"},
}

const versionTimeout = 2 * time.Second

// Check looks tool up in PATH and, when it has a version flag, records the
// first line it prints.
func Check(ctx context.Context, tool Tool) Status {
	path, err := exec.LookPath(tool.Name)
	if err != nil {
		return Status{Installed: false}
	}

	status := Status{
		Installed: true,
		Path:      path,
	}
	if len(tool.VersionArgs) == 0 {
		return status
	}

	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, tool.VersionArgs...).Output()
	if err == nil {
		status.Version = firstLine(string(output))
	}

	return status
}

// CheckAll checks every entry in Tools, keyed by tool name.
func CheckAll(ctx context.Context) map[string]Status {
	out := make(map[string]Status, len(Tools))
	for _, t := range Tools {
		out[t.Name] = Check(ctx, t)
	}
	return out
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
