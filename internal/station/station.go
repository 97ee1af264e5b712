package station

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/dimchat/station/internal/barrack"
	"github.com/dimchat/station/internal/config"
	"github.com/dimchat/station/internal/dispatcher"
	"github.com/dimchat/station/internal/handshake"
	"github.com/dimchat/station/internal/id"
	"github.com/dimchat/station/internal/mailbox"
	"github.com/dimchat/station/internal/metrics"
	"github.com/dimchat/station/internal/monitor"
	"github.com/dimchat/station/internal/neighbor"
	"github.com/dimchat/station/internal/receptionist"
	"github.com/dimchat/station/internal/server"
	"github.com/dimchat/station/internal/session"
)

// guestQueueCapacity bounds how many just-online identities may be
// waiting for the receptionist worker at once.
const guestQueueCapacity = 256

// ContextConfig groups the configuration and optional overrides needed
// to build a Context. TLSConfig, Collector, Monitor and Logger are
// caller-supplied; the rest default the same way the station's own
// main entrypoint defaults them.
type ContextConfig struct {
	Config    *config.Config
	TLSConfig *tls.Config
	Barrack   barrack.Barrack  // nil → in-memory barrack
	Collector metrics.Collector // nil → NoopCollector
	Monitor   monitor.Monitor   // nil → LoggingMonitor
	Logger    *slog.Logger      // nil → slog.Default()
}

// Context owns every collaborator of a running station and their
// lifecycle: the session registry, handshake machine, dispatcher,
// mailbox store, receptionist worker, neighbor forwarder and server.
type Context struct {
	cfg *config.Config

	server       *server.Server
	registry     *session.Registry
	dispatcher   *dispatcher.Dispatcher
	mailbox      *mailbox.Store
	guestQueue   *receptionist.GuestQueue
	receptionist *receptionist.Worker
	neighbor     *neighbor.Forwarder

	logger *slog.Logger

	closers []io.Closer
}

// New wires every collaborator together from cc and returns a Context
// ready to Run.
func New(cc ContextConfig) (*Context, error) {
	if cc.Config == nil {
		return nil, errors.New("station: config is required")
	}

	logger := cc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	collector := cc.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}

	mon := cc.Monitor
	if mon == nil {
		mon = monitor.LoggingMonitor{Logger: logger}
	}

	b := cc.Barrack
	if b == nil {
		b = barrack.NewMemoryBarrack()
		logger.Info("no barrack configured, using in-memory barrack")
	}

	stationID, err := resolveStationIdentity(cc.Config.Station.ID, cc.Config.Station.Hostname)
	if err != nil {
		return nil, fmt.Errorf("station.id: %w", err)
	}

	var neighborID id.ID
	if cc.Config.Neighbor.Address != "" {
		parsed, ok := id.Parse(cc.Config.Neighbor.ID)
		if !ok {
			return nil, fmt.Errorf("neighbor.id: invalid identifier %q", cc.Config.Neighbor.ID)
		}
		neighborID = parsed.WithKind(id.KindStation)
	}

	store, err := mailbox.NewStore(filepath.Join(cc.Config.Mailbox.StateRoot, "mailbox"))
	if err != nil {
		return nil, fmt.Errorf("mailbox store: %w", err)
	}

	forwarder, err := neighbor.Dial(cc.Config.Neighbor.Address, cc.Config.Neighbor.NeighborTimeoutDuration())
	if err != nil {
		return nil, fmt.Errorf("neighbor dial: %w", err)
	}

	registry := session.NewRegistry(nil)
	guestQueue := receptionist.NewGuestQueue(guestQueueCapacity)
	machine := handshake.NewMachine(registry, guestQueue.Push)
	disp := dispatcher.New(stationID, neighborID, registry, store, b, forwarder)
	worker := receptionist.NewWorker(guestQueue, registry, store, logger)

	srv, err := server.New(server.Config{
		Cfg:       cc.Config,
		TLSConfig: cc.TLSConfig,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	handler := Handler(Dependencies{
		Registry:   registry,
		Machine:    machine,
		Dispatcher: disp,
		Barrack:    b,
		Collector:  collector,
		Monitor:    mon,
		Logger:     logger,
	})
	srv.SetHandler(handler)

	ctxt := &Context{
		cfg:          cc.Config,
		server:       srv,
		registry:     registry,
		dispatcher:   disp,
		mailbox:      store,
		guestQueue:   guestQueue,
		receptionist: worker,
		neighbor:     forwarder,
		logger:       logger,
		closers:      []io.Closer{forwarder},
	}
	return ctxt, nil
}

// Run starts the receptionist worker and the server, blocking until ctx
// is cancelled or the server fails.
func (c *Context) Run(ctx context.Context) error {
	go c.receptionist.Run(ctx)
	return c.server.Run(ctx)
}

// Close releases every closeable collaborator, in reverse registration
// order, joining any errors.
func (c *Context) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Registry exposes the session registry, for diagnostics and tests.
func (c *Context) Registry() *session.Registry { return c.registry }

// resolveStationIdentity parses raw as a "name@address" identifier
// tagged KindStation. If raw is empty, it falls back to "station@hostname".
func resolveStationIdentity(raw, hostname string) (id.ID, error) {
	if raw != "" {
		parsed, ok := id.Parse(raw)
		if !ok {
			return id.ID{}, fmt.Errorf("invalid identifier %q", raw)
		}
		return parsed.WithKind(id.KindStation), nil
	}
	if hostname == "" {
		return id.ID{}, errors.New("no station.id and no hostname to fall back to")
	}
	return id.New("station", hostname, "", id.KindStation), nil
}
