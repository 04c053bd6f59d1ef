package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skynet-agent/internal/aggregator"
	"skynet-agent/internal/cache"
	"skynet-agent/internal/collector"
	"skynet-agent/internal/config"
	"skynet-agent/internal/libvirt"
	"skynet-agent/internal/metering"
	"skynet-agent/internal/metrics"
	"skynet-agent/internal/model"
	"skynet-agent/internal/zabbix"
)

type Agent struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	health  *HealthStatus

	api      *zabbix.Client
	creds    zabbix.Credentials
	sender   *zabbix.Sender
	cache    *cache.Cache
	pool     *libvirt.Pool
	metering *metering.GRPCClient
	collab   aggregator.Collaborators

	agg       *aggregator.Aggregator
	scheduler *collector.Scheduler
}

// New wires every component from cfg. It does no network I/O; the backend
// session is acquired by Bootstrap.
func New(cfg config.Config, logger *slog.Logger) (*Agent, error) {
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}

	m := metrics.New()
	pool := libvirt.NewPool(cfg.Libvirt.URIs, cfg.Libvirt.ReconnectInterval, cfg.Libvirt.MaxReconnectJitter, logger)
	meter := metering.NewGRPCClient(metering.Options{
		Addr:             cfg.Metering.GRPCAddr,
		TLS:              tlsCfg,
		Token:            cfg.Metering.Token,
		StatisticsMethod: cfg.Metering.StatisticsMethod,
		AlarmsMethod:     cfg.Metering.AlarmsMethod,
		DialTimeout:      cfg.Metering.DialTimeout,
	}, logger)

	return &Agent{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		health:   NewHealthStatus(),
		api:      zabbix.NewClient(cfg.Zabbix.Host, cfg.Zabbix.WebPort, cfg.Zabbix.WebApp, cfg.Zabbix.HTTPTimeout, logger),
		creds:    zabbix.Credentials{User: cfg.Zabbix.User, Password: cfg.Zabbix.Password},
		sender:   zabbix.NewSender(cfg.Zabbix.Host, cfg.Zabbix.Port, cfg.Zabbix.SocketTimeout, logger, m),
		cache:    cache.New(),
		pool:     pool,
		metering: meter,
		collab: aggregator.Collaborators{
			Instances:   libvirt.NewInstanceSource(pool, logger),
			Hypervisors: libvirt.NewHypervisorSource(pool, logger),
			Meters:      meter,
			Alarms:      meter,
		},
	}, nil
}

func (a *Agent) Health() *HealthStatus {
	return a.health
}

func (a *Agent) Metrics() *metrics.Metrics {
	return a.metrics
}

// Bootstrap logs in and builds the aggregator, retrying the whole
// construction up to the configured attempt count with a fixed delay. The
// last failure is returned once attempts run out.
func (a *Agent) Bootstrap(ctx context.Context) error {
	opts := aggregator.Options{
		HostGroups:   a.cfg.Skynet.HostGroups,
		Top:          a.cfg.Skynet.Top,
		VMWindow:     a.cfg.Skynet.VMWindow,
		ActiveSetTTL: a.cfg.Skynet.ActiveSetTTL,
	}
	agg, err := zabbix.WithRetry(ctx, a.logger, a.cfg.Zabbix.HTTPMaxRetries, a.cfg.Zabbix.HTTPRetriesInterval,
		func(ctx context.Context) (*aggregator.Aggregator, error) {
			session, err := zabbix.Login(ctx, a.api, a.creds, a.logger)
			a.metrics.ObserveBootstrap(err)
			if err != nil {
				return nil, err
			}
			return aggregator.New(session, a.collab, a.cache, opts, a.logger, a.metrics), nil
		})
	if err != nil {
		return fmt.Errorf("bootstrap %s: %w", a.api.URL(), err)
	}

	a.agg = agg
	a.scheduler = collector.NewScheduler(a.logger, agg, a.sender, a.cache, a.metrics, collector.Options{
		Host:           a.cfg.Zabbix.SenderHost,
		Interval:       a.cfg.Skynet.PollInterval,
		ErrorBackoff:   a.cfg.Agent.CollectorErrorBackoff,
		FullClearEvery: a.cfg.Skynet.FullClearEvery,
	})
	a.scheduler.OnCycle(func(r collector.Report) {
		a.health.MarkCycle(r.At, r.Items > 0, r.Ack.Success())
	})
	a.health.SetBootstrapped(true)
	a.health.SetBackendReachable(true)
	a.logger.Info("backend session acquired", "url", a.api.URL(), "user", a.creds.User)
	return nil
}

// IsActive re-runs the login call and reports whether the backend accepts
// the credentials.
func (a *Agent) IsActive(ctx context.Context) bool {
	if err := zabbix.Ping(ctx, a.api, a.creds); err != nil {
		a.logger.Error("backend is not active", "url", a.api.URL(), "error", err)
		return false
	}
	return true
}

// Push sends items in one batch and returns the typed failure, if any.
func (a *Agent) Push(ctx context.Context, items []model.SenderItem) (*zabbix.SenderResponse, error) {
	return a.sender.Exchange(ctx, model.SenderRequest{Request: model.SenderRequestData, Data: items})
}

func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("starting skynet-agent", "zabbix_host", a.cfg.Zabbix.Host, "hostgroups", a.cfg.Skynet.HostGroups, "hypervisors", len(a.cfg.Libvirt.URIs))
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- a.run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received, starting graceful shutdown", "signal", sig.String(), "timeout", a.cfg.Agent.ShutdownTimeout)
		cancelRun()

		graceTimer := time.NewTimer(a.cfg.Agent.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
		case sig2 := <-sigCh:
			a.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			a.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", a.cfg.Agent.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	a.shutdown()

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	a.logger.Info("skynet-agent stopped")
	return nil
}

// BuildLogger returns a JSON or text handler on stdout at the configured
// level.
func BuildLogger(cfg config.LogConfig) *slog.Logger {
	hOpts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, hOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, hOpts))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
