package injection

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type ydotoolBackend struct {
	socketCandidates func() []string
}

func NewYdotoolBackend() Backend {
	return &ydotoolBackend{socketCandidates: ydotoolSockets}
}

func (y *ydotoolBackend) Name() string {
	return "ydotool"
}

// Available requires the ydotool client and, when the ydotoold daemon is
// installed, a socket that accepts connections.
func (y *ydotoolBackend) Available() error {
	if _, err := lookPath("ydotool"); err != nil {
		return fmt.Errorf("ydotool not found: %w (install ydotool package)", err)
	}
	if _, err := lookPath("ydotoold"); err != nil {
		return nil
	}

	sock := firstExisting(y.socketCandidates())
	if sock == "" {
		return fmt.Errorf("ydotoold socket not found - ensure ydotoold is running")
	}
	// ydotoold >= 1.0.4 listens on a datagram socket, older builds on a stream socket
	conn, err := net.Dial("unixgram", sock)
	if err != nil {
		conn, err = net.DialTimeout("unix", sock, 500*time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("ydotoold not responding at %s: %w", sock, err)
	}
	return conn.Close()
}

func (y *ydotoolBackend) Inject(ctx context.Context, text string, timeout time.Duration) error {
	return run(ctx, timeout, "ydotool", "type", "--", text)
}

func ydotoolSockets() []string {
	var paths []string
	if sock := os.Getenv("YDOTOOL_SOCKET"); sock != "" {
		paths = append(paths, sock)
	}
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, ".ydotool_socket"))
	}
	return append(paths,
		filepath.Join("/run/user", strconv.Itoa(os.Getuid()), ".ydotool_socket"),
		"/tmp/.ydotool_socket",
	)
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
