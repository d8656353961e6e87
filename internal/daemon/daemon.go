package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/leonardotrapani/audioflow/internal/audio/backend"
	"github.com/leonardotrapani/audioflow/internal/bus"
	"github.com/leonardotrapani/audioflow/internal/config"
	"github.com/leonardotrapani/audioflow/internal/events"
	"github.com/leonardotrapani/audioflow/internal/notify"
	"github.com/leonardotrapani/audioflow/internal/observe"
	"github.com/leonardotrapani/audioflow/internal/pipeline"
)

var Version = "0.3.0"

const eventBuffer = 256

type Option func(*Daemon)

func WithBackendFactory(f backend.Factory) Option {
	return func(d *Daemon) { d.openBackend = f }
}

// WithPipelineOptions are applied after the daemon's own options.
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(d *Daemon) { d.pipelineOpts = append(d.pipelineOpts, opts...) }
}

// WithNotifier fixes the notifier instead of following notifications.type.
func WithNotifier(n notify.Notifier) Option {
	return func(d *Daemon) {
		d.notifier = n
		d.fixedNotifier = true
	}
}

type Daemon struct {
	configMgr    *config.Manager
	openBackend  backend.Factory
	pipelineOpts []pipeline.Option

	dispatcher *events.Dispatcher
	metrics    *observe.Metrics
	flags      *pipeline.Flags

	mu            sync.Mutex
	notifier      notify.Notifier
	fixedNotifier bool
	pipeline      pipeline.Pipeline
	sessions      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func New(configMgr *config.Manager, opts ...Option) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		configMgr:   configMgr,
		openBackend: backend.Open,
		dispatcher:  events.NewDispatcher(eventBuffer),
		metrics:     observe.Nop(),
		flags:       &pipeline.Flags{},
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	if !d.fixedNotifier {
		d.notifier = notifierFor(configMgr.GetConfig())
		configMgr.OnReload(func(c *config.Config) {
			d.mu.Lock()
			d.notifier = notifierFor(c)
			d.mu.Unlock()
		})
	}
	d.dispatcher.Subscribe(func(ev events.Event) {
		d.mu.Lock()
		n := d.notifier
		d.mu.Unlock()
		notify.Handler(n)(ev)
	})
	return d
}

func notifierFor(c *config.Config) notify.Notifier {
	if !c.Notifications.Enabled {
		return notify.Nop{}
	}
	return notify.New(c.Notifications.Type)
}

// Events is the daemon's dispatcher, for additional subscribers.
func (d *Daemon) Events() *events.Dispatcher { return d.dispatcher }

// Flags reports whether a session is recording and connected.
func (d *Daemon) Flags() *pipeline.Flags { return d.flags }

func (d *Daemon) Status() pipeline.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipeline == nil {
		return pipeline.Idle
	}
	return d.pipeline.Status()
}

func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("Received signal %v, shutting down gracefully", sig)
			d.cancel()
		case <-d.ctx.Done():
		}
	}()

	if err := d.configMgr.StartWatching(d.ctx); err != nil {
		log.Printf("Config watcher disabled: %v", err)
	}
	defer d.configMgr.Stop()

	if shutdown := d.startMetrics(); shutdown != nil {
		defer shutdown()
	}
	defer d.shutdown()

	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	log.Printf("Daemon started, listening on socket")

	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				log.Printf("Shutdown requested")
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		go d.handle(c)
	}
}

// startMetrics installs the Prometheus exporter when enabled. Metrics
// settings are read once at startup.
func (d *Daemon) startMetrics() func() {
	cfg := d.configMgr.GetConfig()
	if !cfg.Metrics.Enabled {
		return nil
	}

	shutdown, err := observe.InitProvider(d.ctx, observe.ProviderConfig{ServiceName: "audioflow", ServiceVersion: Version})
	if err != nil {
		log.Printf("Metrics disabled: %v", err)
		return nil
	}
	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		log.Printf("Metrics disabled: %v", err)
		_ = shutdown(context.Background())
		return nil
	}
	d.metrics = m

	go func() {
		if err := observe.Serve(d.ctx, cfg.Metrics.Address); err != nil {
			log.Printf("Metrics server stopped: %v", err)
		}
	}()
	log.Printf("Metrics available at http://%s/metrics", cfg.Metrics.Address)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			log.Printf("Metrics shutdown: %v", err)
		}
	}
}

func (d *Daemon) shutdown() {
	d.mu.Lock()
	p := d.pipeline
	d.mu.Unlock()
	if p != nil {
		p.Stop()
	}
	d.sessions.Wait()
	d.dispatcher.Close()
}

// Stop asks a running daemon loop to exit.
func (d *Daemon) Stop() {
	d.cancel()
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		log.Printf("Client read error: %v", err)
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}
	if len(line) == 0 {
		fmt.Fprint(c, "ERR empty\n")
		return
	}

	fmt.Fprint(c, d.execute(line[0]))
}

func (d *Daemon) execute(cmd byte) string {
	switch cmd {
	case bus.CmdToggle:
		return d.toggle()
	case bus.CmdCancel:
		return d.act(pipeline.Cancel, "OK cancelled\n")
	case bus.CmdCommit:
		return d.act(pipeline.Commit, "OK committed\n")
	case bus.CmdStatus:
		return fmt.Sprintf("STATUS status=%s connected=%t\n", d.Status(), d.flags.Connected())
	case bus.CmdVersion:
		return fmt.Sprintf("STATUS proto=%s version=%s\n", bus.ProtoVer, Version)
	case bus.CmdQuit:
		d.cancel()
		return "OK quitting\n"
	default:
		log.Printf("Unknown command: %c", cmd)
		return fmt.Sprintf("ERR unknown=%q\n", cmd)
	}
}

func (d *Daemon) toggle() string {
	d.mu.Lock()
	p := d.pipeline
	d.mu.Unlock()

	if p == nil {
		id, err := d.start()
		if err != nil {
			log.Printf("Failed to start session: %v", err)
			d.dispatcher.Publish(events.FromError(err))
			return fmt.Sprintf("ERR start_failed: %v\n", err)
		}
		return fmt.Sprintf("OK started id=%s\n", id)
	}

	switch p.Status() {
	case pipeline.Connecting, pipeline.Recording:
		return d.act(pipeline.Finish, "OK finishing\n")
	default:
		return fmt.Sprintf("ERR busy status=%s\n", p.Status())
	}
}

func (d *Daemon) act(action pipeline.Action, reply string) string {
	d.mu.Lock()
	p := d.pipeline
	d.mu.Unlock()
	if p == nil {
		return "ERR idle\n"
	}

	select {
	case p.GetActionCh() <- action:
		return reply
	default:
		return fmt.Sprintf("ERR busy status=%s\n", p.Status())
	}
}

var errSessionRunning = errors.New("session already running")

func (d *Daemon) start() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipeline != nil {
		return "", errSessionRunning
	}

	cfg := d.configMgr.GetConfig()
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	b, release, err := d.openBackend(d.ctx, cfg.Recording.Backend)
	if err != nil {
		return "", err
	}

	opts := append([]pipeline.Option{
		pipeline.WithBackend(b),
		pipeline.WithDispatcher(d.dispatcher),
		pipeline.WithMetrics(d.metrics),
		pipeline.WithFlags(d.flags),
	}, d.pipelineOpts...)

	p := pipeline.New(cfg, opts...)
	p.Run(d.ctx)
	d.pipeline = p

	d.sessions.Add(1)
	go func() {
		defer d.sessions.Done()
		<-p.Done()
		release()

		res := p.Result()
		switch {
		case res.Err != nil:
			log.Printf("Session %s ended: %v", res.ID, res.Err)
		default:
			log.Printf("Session %s finished (%d characters)", res.ID, len(res.Text))
		}

		d.mu.Lock()
		if d.pipeline == p {
			d.pipeline = nil
		}
		d.mu.Unlock()
	}()

	return p.ID(), nil
}
