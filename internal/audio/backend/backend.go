// Package backend opens the capture backend named in the config.
package backend

import (
	"context"
	"fmt"
	"log"

	"github.com/leonardotrapani/audioflow/internal/audio"
	"github.com/leonardotrapani/audioflow/internal/audio/pipewire"
	"github.com/leonardotrapani/audioflow/internal/audio/portaudio"
)

// Factory opens a backend and returns a func that releases it.
type Factory func(ctx context.Context, name string) (audio.Backend, func(), error)

// Open is the default Factory.
func Open(ctx context.Context, name string) (audio.Backend, func(), error) {
	switch name {
	case "portaudio", "":
		b := portaudio.New()
		if err := b.Initialize(); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", audio.ErrNoDevice, err)
		}
		return b, func() {
			if err := b.Terminate(); err != nil {
				log.Printf("backend: %v", err)
			}
		}, nil
	case "pipewire":
		if err := pipewire.Available(ctx); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", audio.ErrNoDevice, err)
		}
		return pipewire.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown backend %q", audio.ErrConfigurationFailed, name)
	}
}
