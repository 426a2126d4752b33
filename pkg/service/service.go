package service

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openclinic/fhirsub/pkg/authz"
	"github.com/openclinic/fhirsub/pkg/binder"
	"github.com/openclinic/fhirsub/pkg/config"
	"github.com/openclinic/fhirsub/pkg/discovery"
	"github.com/openclinic/fhirsub/pkg/dispatch"
	"github.com/openclinic/fhirsub/pkg/log"
	"github.com/openclinic/fhirsub/pkg/registry"
	"github.com/openclinic/fhirsub/pkg/resource"
	"github.com/openclinic/fhirsub/pkg/store"
	"github.com/openclinic/fhirsub/pkg/transport"
)

// Service is a composed notification server.
type Service struct {
	config *config.Config
	logger *slog.Logger

	store      Store
	registry   *registry.Registry
	binder     *binder.Binder
	rules      *authz.Rules
	dispatcher *dispatch.Dispatcher
	handler    *transport.Handler
	advertiser discovery.Advertiser
	tlsConfig  *tls.Config

	mux    *http.ServeMux
	server *http.Server

	// closers release what New opened, in order.
	closers []io.Closer

	mu       sync.RWMutex
	state    ServiceState
	listener net.Listener
}

// New builds a service from cfg. Nothing listens until Start or Run.
func New(cfg *config.Config, opts Options) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Service{
		config: cfg,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	if err := s.build(opts); err != nil {
		s.closeAll()
		return nil, err
	}
	return s, nil
}

func (s *Service) build(opts Options) error {
	cfg := s.config

	s.store = opts.Store
	if s.store == nil {
		st, err := openStore(cfg.Database)
		if err != nil {
			return err
		}
		if c, ok := st.(io.Closer); ok {
			s.closers = append(s.closers, c)
		}
		s.store = st
	}

	var plog log.Logger = log.NoopLogger{}
	if cfg.ProtocolLog != "" {
		fl, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		s.closers = append(s.closers, fl)
		plog = log.NewMultiLogger(fl, opts.ProtocolLogger)
	} else if opts.ProtocolLogger != nil {
		plog = opts.ProtocolLogger
	}

	rules, err := buildRules(cfg)
	if err != nil {
		return err
	}
	s.rules = rules

	s.registry = registry.New(registry.Config{
		Store:  s.store,
		Logger: s.logger.With("component", "registry"),
	})
	s.binder = binder.New(s.registry, s.logger.With("component", "binder"))
	s.dispatcher = dispatch.New(dispatch.Config{
		Registry:       s.registry,
		Binder:         s.binder,
		Rules:          s.rules,
		Resolver:       store.NewResolver(s.store),
		QueueSize:      cfg.Dispatcher.QueueSize,
		Overflow:       cfg.OverflowPolicy(),
		ShutdownGrace:  cfg.Dispatcher.ShutdownGrace,
		Logger:         s.logger.With("component", "dispatcher"),
		ProtocolLogger: plog,
	})
	s.store.SetPublisher(s.dispatcher)

	auth := transport.NewTokenAuthenticator()
	for token, p := range cfg.Principals() {
		auth.Add(token, p)
	}
	for hash, p := range cfg.HashedPrincipals() {
		if err := auth.AddHash(hash, p); err != nil {
			return err
		}
	}

	s.handler = transport.NewHandler(transport.Config{
		Binder:             s.binder,
		Authenticator:      auth,
		RequiredCapability: authz.Capability(cfg.Transport.RequiredCapability),
		Heartbeat:          transport.HeartbeatConfig{Interval: cfg.Heartbeat.Interval},
		MaxMessageSize:     int64(cfg.Transport.MaxMessageSize.Bytes()),
		WriteTimeout:       cfg.Transport.WriteTimeout,
		Logger:             s.logger.With("component", "transport"),
		ProtocolLogger:     plog,
	})

	if cfg.Transport.TLS.CertFile != "" {
		s.tlsConfig, err = transport.NewServerTLSConfig(&transport.TLSConfig{
			CertFile: cfg.Transport.TLS.CertFile,
			KeyFile:  cfg.Transport.TLS.KeyFile,
			CAFile:   cfg.Transport.TLS.ClientCAFile,
		})
		if err != nil {
			return fmt.Errorf("tls: %w", err)
		}
	}

	if cfg.Discovery.Enabled {
		s.advertiser = opts.Advertiser
		if s.advertiser == nil {
			s.advertiser = discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
				Interface: cfg.Discovery.Interface,
				TTL:       discovery.DefaultAdvertiserConfig().TTL,
			})
		}
	}

	s.registerRoutes()
	s.server = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	return nil
}

func openStore(path string) (Store, error) {
	if path == "" {
		return store.NewMemoryStore(), nil
	}
	st, err := store.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

func buildRules(cfg *config.Config) (*authz.Rules, error) {
	rules := authz.NewRules()
	if cfg.Authorization.DefaultRules {
		rules = authz.DefaultRules()
	}
	for _, spec := range cfg.RuleSpecs() {
		if err := rules.AddSpec(spec); err != nil {
			return nil, fmt.Errorf("authorization: %w", err)
		}
	}
	return rules, nil
}

func (s *Service) registerRoutes() {
	s.mux.Handle(s.config.WebSocketPath, s.handler)
	s.mux.HandleFunc("/healthz", s.handleHealth)
}

// Handler returns the HTTP handler serving the websocket and health routes.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// State returns the service state.
func (s *Service) State() ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Addr returns the listen address once started.
func (s *Service) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Store returns the resource store.
func (s *Service) Store() Store { return s.store }

// Registry returns the subscription registry.
func (s *Service) Registry() *registry.Registry { return s.registry }

// Dispatcher returns the event dispatcher.
func (s *Service) Dispatcher() *dispatch.Dispatcher { return s.dispatcher }

// Transport returns the websocket handler.
func (s *Service) Transport() *transport.Handler { return s.handler }

// Put writes a resource. The committed change is dispatched.
func (s *Service) Put(ctx context.Context, r *resource.Resource) (resource.Event, error) {
	return s.store.Put(ctx, r)
}

// Delete removes a resource.
func (s *Service) Delete(ctx context.Context, ref resource.Reference) (resource.Event, error) {
	return s.store.Delete(ctx, ref)
}

// Publish hands an event from another write path to the dispatcher and
// reports whether it was queued.
func (s *Service) Publish(ev resource.Event) bool {
	return s.dispatcher.HandleEvent(ev)
}

// Start builds the first registry generation, starts the dispatcher, binds
// the listener and begins advertising. Serving starts with Serve or Run.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.mu.Unlock()

	if err := s.registry.Refresh(ctx); err != nil {
		// The dispatcher and binder rebuild on demand.
		s.logger.Warn("initial registry build failed", "error", err)
	}

	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		s.setState(StateIdle)
		return fmt.Errorf("listen %s: %w", s.config.Listen, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	s.dispatcher.Start()

	if s.advertiser != nil {
		if err := s.advertiser.Advertise(ctx, s.serviceInfo(ln.Addr())); err != nil {
			s.logger.Warn("mDNS advertisement failed", "error", err)
		}
	}

	s.mu.Lock()
	s.listener = ln
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.Info("service started",
		"addr", ln.Addr().String(),
		"path", s.config.WebSocketPath,
		"tls", s.tlsConfig != nil,
		"subscriptions", s.registry.Stats().Subscriptions)
	return nil
}

// Serve serves HTTP on the started listener until Stop.
func (s *Service) Serve() error {
	s.mu.RLock()
	ln := s.listener
	s.mu.RUnlock()
	if ln == nil {
		return ErrNotStarted
	}
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run starts the service and serves until ctx is done or serving fails,
// then stops it.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(s.Serve)
	g.Go(func() error {
		<-gctx.Done()
		return s.Stop()
	})
	return g.Wait()
}

// Stop closes every connection with a normal close, drains the dispatcher
// within the configured grace and releases what the service opened.
func (s *Service) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopping
	s.mu.Unlock()

	var errs []error
	if s.advertiser != nil {
		if err := s.advertiser.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop advertiser: %w", err))
		}
	}

	grace := s.config.Dispatcher.ShutdownGrace
	if grace <= 0 {
		grace = dispatch.DefaultShutdownGrace
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := s.handler.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close connections: %w", err))
	}
	if err := s.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop http: %w", err))
	}
	// Shutdown only closes listeners Serve has seen.
	_ = s.listener.Close()
	s.dispatcher.Stop()
	s.closeAll()

	s.setState(StateStopped)
	s.logger.Info("service stopped")
	return errors.Join(errs...)
}

func (s *Service) closeAll() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Warn("close failed", "error", err)
		}
	}
	s.closers = nil
}

func (s *Service) setState(state ServiceState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Service) serviceInfo(addr net.Addr) *discovery.ServiceInfo {
	info := &discovery.ServiceInfo{
		Instance: s.config.Discovery.Instance,
		Path:     s.config.WebSocketPath,
		Version:  discovery.ProtocolVersion,
		TLS:      s.tlsConfig != nil,
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		info.Port = uint16(tcp.Port)
	}
	return info
}
