// Package bus is the control channel between the CLI and the daemon: a
// unix socket carrying one-byte commands and one-line replies, plus the
// pid file that keeps a single daemon per user.
package bus

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	SockName = "control.sock"
	PidName  = "audioflow.pid"
	ProtoVer = "1.0"
)

// Commands understood by the daemon.
const (
	CmdToggle  byte = 't' // start a session, or finish the running one
	CmdCancel  byte = 'c' // abort the running session without injecting
	CmdCommit  byte = 'm' // finalize the current utterance and keep recording
	CmdStatus  byte = 's'
	CmdVersion byte = 'v'
	CmdQuit    byte = 'q'
)

const replyTimeout = 5 * time.Second

var ErrDaemonNotRunning = errors.New("daemon not running")

func runtimeDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "audioflow"), nil
}

func getSockPath() (string, error) {
	dir, err := runtimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SockName), nil
}

func getPidPath() (string, error) {
	dir, err := runtimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, PidName), nil
}

// SockPath is ~/.cache/audioflow/control.sock
func SockPath() (string, error) { return getSockPath() }

// PidPath is ~/.cache/audioflow/audioflow.pid
func PidPath() (string, error) { return getPidPath() }

type socketManager struct {
	path string
}

func (s *socketManager) listen() (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(s.path) // stale socket from last run
	return net.Listen("unix", s.path)
}

func (s *socketManager) dial() (net.Conn, error) {
	return net.DialTimeout("unix", s.path, time.Second)
}

type pidManager struct {
	path string
}

func (p *pidManager) create() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func (p *pidManager) remove() error {
	err := os.Remove(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// checkExisting fails if the pid file names a live process. Stale and
// unreadable pid files are removed.
func (p *pidManager) checkExisting() error {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || !p.isProcessAlive(pid) {
		log.Printf("Bus: removing stale pid file %s", p.path)
		return p.remove()
	}
	return fmt.Errorf("daemon already running with PID %d", pid)
}

func (p *pidManager) isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func defaultSocket() (*socketManager, error) {
	path, err := getSockPath()
	if err != nil {
		return nil, err
	}
	return &socketManager{path: path}, nil
}

func defaultPid() (*pidManager, error) {
	path, err := getPidPath()
	if err != nil {
		return nil, err
	}
	return &pidManager{path: path}, nil
}

func Listen() (net.Listener, error) {
	sm, err := defaultSocket()
	if err != nil {
		return nil, err
	}
	return sm.listen()
}

func Dial() (net.Conn, error) {
	sm, err := defaultSocket()
	if err != nil {
		return nil, err
	}
	return sm.dial()
}

// SendCommand sends cmd and returns the daemon's one-line reply.
func SendCommand(cmd byte) (string, error) {
	c, err := Dial()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
	}
	defer c.Close()
	return exchange(c, cmd)
}

func exchange(c net.Conn, cmd byte) (string, error) {
	_ = c.SetDeadline(time.Now().Add(replyTimeout))
	if _, err := c.Write([]byte{cmd, '\n'}); err != nil {
		return "", err
	}
	return bufio.NewReader(c).ReadString('\n')
}

// ParseReply splits "STATUS status=idle connected=false" into its kind and
// key/value fields.
func ParseReply(line string) (kind string, fields map[string]string) {
	parts := strings.Fields(line)
	fields = map[string]string{}
	if len(parts) == 0 {
		return "", fields
	}
	for _, p := range parts[1:] {
		if k, v, ok := strings.Cut(p, "="); ok {
			fields[k] = v
		}
	}
	return parts[0], fields
}

func CheckExistingDaemon() error {
	pm, err := defaultPid()
	if err != nil {
		return err
	}
	return pm.checkExisting()
}

func CreatePidFile() error {
	pm, err := defaultPid()
	if err != nil {
		return err
	}
	return pm.create()
}

func RemovePidFile() error {
	pm, err := defaultPid()
	if err != nil {
		return err
	}
	return pm.remove()
}
