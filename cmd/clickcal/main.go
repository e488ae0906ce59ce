package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"clickcal/internal/browser"
	"clickcal/internal/config"
	"clickcal/internal/ics"
	"clickcal/internal/jobs"
	appLog "clickcal/internal/log"
	"clickcal/internal/metric"
	"clickcal/internal/schedule"
	"clickcal/internal/store"
	"clickcal/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values; they override the config file.
type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	snapshot   string
	view       string
	date       string
	debug      bool
}

func main() {
	flags := parseFlags()

	if err := config.LoadEnv(flags.envFile); err != nil {
		appLog.Error("failed to load env file", err, "env_file", flags.envFile)
		os.Exit(1)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.LogLevel = "debug"
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("clickcal starting", "version", version)

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Warn("unknown timezone, using local", "timezone", conf.Timezone, "err", err)
		loc = time.Local
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"week_start", conf.WeekStart,
		"default_view", conf.DefaultView,
		"initial_date", conf.InitialDate,
		"db_path", conf.DBPath,
		"feeds", len(conf.Feeds),
		"metrics", conf.Metrics,
		"allow_reset", conf.AllowReset,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, loc, flags); err != nil {
		appLog.Error("clickcal failed", err)
		os.Exit(1)
	}
	appLog.Info("clickcal exiting")
}

func run(ctx context.Context, conf *config.Config, loc *time.Location, flags flagConfig) error {
	st, err := store.Open(ctx, conf.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			appLog.Error("failed to close store", err)
		}
	}()

	// cancelled before the store closes
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics := metric.New(nil)
	go metrics.WatchStore(ctx, st, 30*time.Second)

	svc := schedule.NewService(st, metrics, loc)

	fetcher := ics.NewFetcher(filepath.Join(filepath.Dir(conf.DBPath), "ics-cache"), nil)
	feeds := ics.NewFeeds(fetcher, ics.SourcesFromConfig(conf.Feeds), loc)
	if feeds.Len() > 0 {
		// A failing feed only loses its overlay; the calendar still serves.
		if err := feeds.Refresh(ctx); err != nil {
			appLog.Warn("initial feed refresh incomplete", "err", err)
		}
	}

	sched := jobs.New(jobs.Options{
		Location:    loc,
		RefreshSpec: conf.RefreshCron,
		Feeds:       feeds,
		Reminders:   svc,
	})
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	opts := web.Options{
		Config:   conf,
		Service:  svc,
		Feeds:    feeds,
		Location: loc,
	}
	if conf.Metrics {
		opts.Metrics = metrics.Handler()
	}
	srv, err := web.NewServer(opts)
	if err != nil {
		return fmt.Errorf("init web server: %w", err)
	}

	httpSrv := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", conf.Listen, err)
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("HTTP server listening", "addr", "http://"+ln.Addr().String())
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if flags.snapshot != "" {
		err := snapshot(ctx, ln.Addr().String(), flags)
		shutdown(httpSrv)
		return err
	}

	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	shutdown(httpSrv)
	return nil
}

func snapshot(ctx context.Context, listen string, flags flagConfig) error {
	url := "http://" + listen + "/?view=" + flags.view
	if flags.date != "" {
		url += "&date=" + flags.date
	}
	appLog.Info("capturing snapshot", "url", url, "output", flags.snapshot)
	if err := browser.Capture(ctx, browser.CaptureOptions{
		URL:        url,
		OutputPath: flags.snapshot,
	}); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	appLog.Info("snapshot written", "output", flags.snapshot)
	return nil
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLog.Error("http shutdown failed", err)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Path to dotenv file (ignored if missing)")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.snapshot, "snapshot", "", "Write a PNG of the calendar page to this path and exit")
	flag.StringVar(&cfg.view, "view", "month", "View for -snapshot (month or week)")
	flag.StringVar(&cfg.date, "date", "", "Reference date for -snapshot (YYYY-MM-DD)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
