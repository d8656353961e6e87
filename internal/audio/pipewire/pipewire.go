// Package pipewire captures microphone input by running pw-record.
package pipewire

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/leonardotrapani/audioflow/internal/audio"
)

// Backend implements audio.Backend on top of the PipeWire CLI tools.
type Backend struct{}

func New() *Backend {
	return &Backend{}
}

// Available checks that pw-record can be run.
func Available(ctx context.Context) error {
	if _, err := exec.LookPath("pw-record"); err != nil {
		return fmt.Errorf("pw-record not found: %w (install pipewire-tools)", err)
	}
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := exec.CommandContext(checkCtx, "pw-cli", "info").Run(); err != nil {
		return fmt.Errorf("PipeWire not running or accessible: %w", err)
	}
	return nil
}

func (b *Backend) Devices() ([]audio.DeviceInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "pw-record", "--list-targets").Output()
	if err != nil {
		return nil, fmt.Errorf("list pipewire targets: %w", err)
	}
	devices := parseTargets(out)
	if len(devices) == 0 {
		return nil, errors.New("no pipewire capture targets")
	}
	return devices, nil
}

func (b *Backend) DefaultDevice() (audio.DeviceInfo, error) {
	devices, err := b.Devices()
	if err != nil {
		// pw-record still works with its own default target
		return audio.DeviceInfo{Name: "default", Default: true}, nil
	}
	for _, d := range devices {
		if d.Default {
			return d, nil
		}
	}
	return devices[0], nil
}

var targetLine = regexp.MustCompile(`^(\*)?\s*(\d+): description="([^"]*)"`)

func parseTargets(out []byte) []audio.DeviceInfo {
	var devices []audio.DeviceInfo
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		m := targetLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		devices = append(devices, audio.DeviceInfo{
			ID:      m[2],
			Name:    m[3],
			Default: m[1] == "*",
		})
	}
	return devices
}

func (b *Backend) Open(dev audio.DeviceInfo, params audio.StreamParams, cb func(in []float32)) (audio.Stream, error) {
	if params.SampleRate <= 0 || params.Channels <= 0 || params.FramesPerBuffer <= 0 {
		return nil, fmt.Errorf("invalid stream params %+v", params)
	}
	return &stream{
		args:   recordArgs(dev, params),
		chunk:  params.FramesPerBuffer * params.Channels,
		cb:     cb,
		target: dev.Name,
	}, nil
}

func recordArgs(dev audio.DeviceInfo, params audio.StreamParams) []string {
	args := []string{
		"--format", "s16",
		"--rate", strconv.Itoa(params.SampleRate),
		"--channels", strconv.Itoa(params.Channels),
	}
	if dev.ID != "" {
		args = append(args, "--target", dev.ID)
	}
	return append(args, "-")
}

type stream struct {
	args   []string
	chunk  int
	cb     func([]float32)
	target string

	mu     sync.Mutex
	cmd    *exec.Cmd
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (s *stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "pw-record", s.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start pw-record: %w", err)
	}

	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			log.Printf("pw-record stderr: %s", sc.Text())
		}
	}()

	s.cmd, s.cancel = cmd, cancel
	s.wg.Add(1)
	go s.readLoop(stdout)
	log.Printf("pw-record: capturing from %q", s.target)
	return nil
}

func (s *stream) readLoop(r io.Reader) {
	defer s.wg.Done()
	buf := make([]byte, s.chunk*2)
	for {
		n, err := io.ReadFull(r, buf)
		if n >= 2 {
			s.cb(decodeS16LE(buf[:n-n%2]))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				log.Printf("pw-record: read error: %v", err)
			}
			return
		}
	}
}

func decodeS16LE(b []byte) []float32 {
	out := make([]float32, len(b)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(b[2*i:]))) / 32768
	}
	return out
}

func (s *stream) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Close stops the process and reaps it.
func (s *stream) Close() error {
	s.Stop()

	s.mu.Lock()
	cmd := s.cmd
	s.cmd, s.cancel = nil, nil
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}
	s.wg.Wait()
	_ = cmd.Wait()
	return nil
}
