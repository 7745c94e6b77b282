// Package agent assembles the tracker: position source, controller,
// mutation channel, local cache, stream subscriptions and resync monitor.
package agent

import (
	"context"
	"errors"
	"log/slog"

	"movetracker/internal/client/cache"
	"movetracker/internal/client/controller"
	"movetracker/internal/client/fanout"
	"movetracker/internal/client/mutation"
	"movetracker/internal/client/remote"
	"movetracker/internal/client/resync"
	"movetracker/internal/platform/metrics"
	"movetracker/internal/position"
	"movetracker/internal/shared/geo"
)

type Options struct {
	AuthorityURL string
	StreamURL    string
	Token        string
	Source       position.Source
	Reconnect    fanout.ReconnectConfig
}

type Agent struct {
	Cache         *cache.Cache
	Controller    *controller.Controller
	Mutations     *mutation.Channel
	Link          *fanout.Link
	Subscriptions *fanout.Subscriptions
	Monitor       *resync.Monitor

	log *slog.Logger
}

func New(opts Options, log *slog.Logger, m *metrics.Metrics) *Agent {
	if log == nil {
		log = slog.Default()
	}
	client := remote.New(opts.AuthorityURL, opts.Token)
	c := cache.New()
	mutations := mutation.NewChannel(client, c, log, m)
	link := fanout.NewLink(opts.StreamURL, opts.Token, opts.Reconnect, log, m)
	subs := fanout.NewSubscriptions(link, c, log, m)
	monitor := resync.New(client, c, log, m)

	c.Observe(subs.Ensure)
	monitor.Attach(link)

	a := &Agent{
		Cache:         c,
		Controller:    controller.New(opts.Source, mutations, log),
		Mutations:     mutations,
		Link:          link,
		Subscriptions: subs,
		Monitor:       monitor,
		log:           log,
	}
	a.Controller.Subscribe(a.logEvent)
	return a
}

// Run loads the participant, starts tracking and serves the stream link
// until ctx is cancelled. Tracking is stopped and pending submissions are
// drained before it returns.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Monitor.Resync(ctx); err != nil {
		return err
	}
	if err := a.Controller.Start(); err != nil {
		return err
	}
	defer func() {
		a.Controller.Stop()
		a.Mutations.Wait()
	}()

	err := a.Link.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// LogSnapshot writes the cached distances the way the tracker displays
// them.
func (a *Agent) LogSnapshot() {
	p, ok := a.Cache.Snapshot()
	if !ok {
		return
	}
	a.log.Info("distance",
		"participant", geo.FormatDistance(p.Distance, 5),
		"state", p.State,
		"group", geo.FormatDistance(p.Group.Distance, 1),
		"event", geo.FormatDistance(p.Event.Distance, 0),
		"phase", a.Controller.Phase(),
	)
}

func (a *Agent) logEvent(ev controller.Event) {
	switch ev.Type {
	case controller.PositionObserved:
		a.log.Debug("position", "latitude", deref(ev.Sample.Latitude), "longitude", deref(ev.Sample.Longitude))
	case controller.TrackingError:
		a.log.Warn("tracking error", "message", ev.Message)
	}
}

func deref(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
