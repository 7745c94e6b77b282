package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"movetracker/internal/client/agent"
	"movetracker/internal/client/fanout"
	"movetracker/internal/config"
	"movetracker/internal/platform/logger"
	"movetracker/internal/platform/metrics"
	"movetracker/internal/position"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

var snapshotInterval = 30 * time.Second

var errNoSource = errors.New("no position source: set GPS_DEVICE or TRACK_FILE")

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig func() config.Config
	newSource  func(config.Config) (position.Source, error)
	notify     func(chan<- os.Signal, ...os.Signal)
	run        func(context.Context, config.Config, *slog.Logger, position.Source, <-chan os.Signal) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig: config.Load,
		newSource:  newSource,
		notify:     signal.Notify,
		run:        Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		return
	}
	if cfg.ParticipantToken == "" {
		log.Error("PARTICIPANT_TOKEN is required")
		return
	}

	source, err := deps.newSource(cfg)
	if err != nil {
		log.Error("position source unavailable", "error", err)
		return
	}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, log, source, signals); err != nil {
		log.Error("tracker exited with error", "error", err)
	}
}

func newSource(cfg config.Config) (position.Source, error) {
	switch {
	case cfg.GPSDevice != "":
		return position.NewSerialSource(cfg.GPSDevice, cfg.GPSBaud), nil
	case cfg.TrackFile != "":
		track, err := position.LoadTrack(cfg.TrackFile)
		if err != nil {
			return nil, err
		}
		return position.NewReplaySource(track), nil
	}
	return nil, errNoSource
}

// Run tracks until a signal arrives or ctx is done, logging the cached
// distances periodically.
func Run(ctx context.Context, cfg config.Config, log *slog.Logger, source position.Source, signals <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a := agent.New(agent.Options{
		AuthorityURL: cfg.AuthorityURL,
		StreamURL:    cfg.StreamURL,
		Token:        cfg.ParticipantToken,
		Source:       source,
		Reconnect:    fanout.DefaultReconnectConfig(),
	}, log, metrics.New())

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
	}()

	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-signals:
			log.Info("shutting down tracker")
			cancel()
			return <-errCh
		case <-ctx.Done():
			return <-errCh
		case err := <-errCh:
			return err
		case <-ticker.C:
			a.LogSnapshot()
		}
	}
}
