package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"eventdigest/internal/config"
	"eventdigest/internal/digest"
	"eventdigest/internal/ics"
	appLog "eventdigest/internal/log"
	"eventdigest/internal/metrics"
	"eventdigest/internal/notify"
	"eventdigest/internal/scheduler"
	"eventdigest/internal/slackclient"
	"eventdigest/internal/web"
)

const version = "0.3.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	dryRun     bool
	logLevel   string
}

func main() {
	flags := parseFlags()
	appLog.SetLevel(appLog.ParseLevel(flags.logLevel))
	appLog.Info("eventdigest starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv(os.Getenv)

	// CLI flags override the file and the environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.dryRun {
		conf.DryRun = true
	}

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if conf.Slack.Token == "" {
		appLog.Error("missing slack token", errors.New("set SLACK_BOT_TOKEN or slack.token"))
		os.Exit(1)
	}
	loc := conf.Location()

	appLog.Info("effective config",
		"timezone", loc.String(),
		"schedule", conf.Schedule,
		"source_channels", len(conf.SourceChannels),
		"destination", conf.DestinationChannel,
		"dry_run", conf.DryRun,
		"listen", conf.Listen,
		"email", conf.Email != nil && conf.Email.Enabled(),
		"ics_path", conf.ICSPath,
		"once", flags.once,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sc := slackclient.New(conf.Slack.Token, conf.Slack.PageSize)

	var pub digest.Publisher = sc
	if conf.Email != nil && conf.Email.Enabled() {
		pub = notify.Fanout{sc, notify.BestEffort("email", notify.NewEmailPublisher(*conf.Email))}
	}

	exporter := ics.NewExporter(conf.ICSPath)
	if err := exporter.Load(loc); err != nil {
		appLog.Error("failed to load existing ics feed", err, "ics_path", conf.ICSPath)
	}
	engine := digest.New(conf, sc, pub,
		digest.WithMetrics(metrics.New(reg)),
		digest.WithSink(exporter),
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run := func(ctx context.Context, now time.Time) {
		sc.Reset()
		if _, err := engine.Run(ctx, now); err != nil {
			appLog.Error("run failed", err)
		}
	}

	if flags.once {
		sc.Reset()
		if _, err := engine.Run(ctx, time.Now().In(loc)); err != nil {
			os.Exit(1)
		}
		return
	}

	// One guard for scheduled and manual runs.
	var runGuard sync.Mutex
	sched, err := scheduler.New(conf.Schedule, loc, run, scheduler.WithGuard(&runGuard))
	if err != nil {
		appLog.Error("invalid schedule", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	if conf.Listen != "" {
		srv := web.NewServer(conf, engine,
			web.WithGatherer(reg),
			web.WithCalendar(exporter.Bytes),
			web.WithRunGuard(&runGuard),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Serve(ctx); err != nil {
				appLog.Error("HTTP server stopped", err)
				stop()
			}
		}()
	}

	sched.Run(ctx)
	wg.Wait()
	appLog.Info("eventdigest exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/eventdigest/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one digest cycle and exit")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "Log the digest instead of posting it")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	flag.Parse()

	return cfg
}
