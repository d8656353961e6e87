// Package injection delivers committed transcripts to the focused
// application through external Wayland tools.
package injection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"time"
)

var ErrNoBackend = errors.New("no injection backend available")

// seams for tests
var (
	lookPath    = exec.LookPath
	commandFunc = exec.CommandContext
)

// Injector consumes final text.
type Injector interface {
	Inject(ctx context.Context, text string) error
}

// Backend is one way of getting text into the focused window.
type Backend interface {
	Name() string
	Available() error
	Inject(ctx context.Context, text string, timeout time.Duration) error
}

type Config struct {
	Backends         []string // tried in order: "ydotool", "wtype", "clipboard"
	YdotoolTimeout   time.Duration
	WtypeTimeout     time.Duration
	ClipboardTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Backends:         []string{"ydotool", "wtype", "clipboard"},
		YdotoolTimeout:   5 * time.Second,
		WtypeTimeout:     5 * time.Second,
		ClipboardTimeout: 3 * time.Second,
	}
}

func (c Config) timeoutFor(name string) time.Duration {
	switch name {
	case "ydotool":
		return c.YdotoolTimeout
	case "wtype":
		return c.WtypeTimeout
	default:
		return c.ClipboardTimeout
	}
}

// NewBackend returns the backend registered under name.
func NewBackend(name string) (Backend, error) {
	switch name {
	case "ydotool":
		return NewYdotoolBackend(), nil
	case "wtype":
		return NewWtypeBackend(), nil
	case "clipboard":
		return NewClipboardBackend(), nil
	default:
		return nil, fmt.Errorf("unknown injection backend: %q", name)
	}
}

type injector struct {
	config   Config
	backends []Backend
}

func NewInjector(config Config) (Injector, error) {
	inj := &injector{config: config}
	for _, name := range config.Backends {
		b, err := NewBackend(name)
		if err != nil {
			return nil, err
		}
		inj.backends = append(inj.backends, b)
	}
	if len(inj.backends) == 0 {
		return nil, ErrNoBackend
	}
	return inj, nil
}

// Inject tries each backend in order until one succeeds.
func (i *injector) Inject(ctx context.Context, text string) error {
	if text == "" {
		return fmt.Errorf("cannot inject empty text")
	}

	var errs []error
	for _, b := range i.backends {
		if err := b.Available(); err != nil {
			log.Printf("Injection: %s unavailable: %v", b.Name(), err)
			errs = append(errs, err)
			continue
		}
		if err := b.Inject(ctx, text, i.config.timeoutFor(b.Name())); err != nil {
			log.Printf("Injection: %s failed: %v", b.Name(), err)
			errs = append(errs, err)
			continue
		}
		log.Printf("Injection: text injected via %s", b.Name())
		return nil
	}
	return fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(errs...))
}

func run(ctx context.Context, timeout time.Duration, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := commandFunc(ctx, name, args...).Run(); err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}
