package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/slotrace/internal/config"
	"github.com/rickgao/slotrace/internal/feed"
	"github.com/rickgao/slotrace/internal/race"
)

// Telemetry is the combined sink for feed and race events.
type Telemetry interface {
	feed.Recorder
	race.Recorder
}

// Runner owns one session against the two configured feeds.
type Runner struct {
	cfg     *config.Config
	logger  *slog.Logger
	tel     Telemetry
	dialers [2]feed.Dialer
}

// Option configures a Runner.
type Option func(*Runner)

// WithTelemetry attaches a metrics sink.
func WithTelemetry(t Telemetry) Option {
	return func(r *Runner) {
		r.tel = t
	}
}

// WithDialers replaces the dialers derived from the feed kinds.
func WithDialers(a, b feed.Dialer) Option {
	return func(r *Runner) {
		r.dialers = [2]feed.Dialer{a, b}
	}
}

// New creates a runner. cfg must already be validated.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		cfg:    cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RaceConfig derives the race loop settings from the run configuration.
func (r *Runner) RaceConfig() race.Config {
	rc := race.Config{
		Window:           r.cfg.Run.Duration,
		ProgressInterval: r.cfg.Run.ProgressInterval,
		WarmupRaces:      r.cfg.Race.WarmupRaces,
		Names:            r.cfg.Names(),
	}
	if r.cfg.Race.MaxSlotAge > 0 {
		rc.MaxSlotAge = uint64(r.cfg.Race.MaxSlotAge)
	}
	if rc.ProgressInterval < 0 {
		rc.ProgressInterval = 0
	}
	return rc
}

// session is a pair of connected adapters and the goroutines draining them.
type session struct {
	adapters [2]*feed.Adapter
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// stop cancels the producers, closes every stream and waits for the
// producer goroutines to exit.
func (s *session) stop() {
	s.cancel()
	for _, a := range s.adapters {
		if a != nil {
			a.Close()
		}
	}
	s.wg.Wait()
}

func (s *session) observations(f race.Feed) <-chan race.Observation {
	return s.adapters[f].Observations()
}

// start builds and connects both adapters, then starts draining them.
// A connect failure on either feed closes both and is returned.
func (r *Runner) start(ctx context.Context) (*session, error) {
	feeds := [2]config.FeedConfig{r.cfg.Feeds.A, r.cfg.Feeds.B}

	// Streams live as long as the session, not the connect phase.
	sessCtx, cancel := context.WithCancel(ctx)
	s := &session{cancel: cancel}

	for f := race.FeedA; f <= race.FeedB; f++ {
		a, err := r.buildAdapter(f, feeds[f])
		if err != nil {
			s.stop()
			return nil, err
		}
		s.adapters[f] = a
	}

	var g errgroup.Group
	for _, a := range s.adapters {
		g.Go(func() error {
			r.logger.Info("connecting feed", "feed", a.Name())
			return a.Connect(sessCtx)
		})
	}
	if err := g.Wait(); err != nil {
		s.stop()
		return nil, err
	}

	for _, a := range s.adapters {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := a.Run(sessCtx); err != nil {
				r.logger.Error("feed ended with error", "feed", a.Name(), "error", err)
			}
		}()
	}
	return s, nil
}

func (r *Runner) buildAdapter(f race.Feed, fc config.FeedConfig) (*feed.Adapter, error) {
	dialer := r.dialers[f]
	if dialer == nil {
		var err error
		dialer, err = DialerFor(fc, r.cfg.Run.ConnectTimeout, r.logger)
		if err != nil {
			return nil, err
		}
	}

	var rec feed.Recorder = feed.NopRecorder()
	if r.tel != nil {
		rec = r.tel
	}
	return BuildAdapter(fc, dialer, r.logger, rec)
}

// Race connects both feeds, races them for the configured window and
// returns the result. An error means setup failed and nothing was raced.
func (r *Runner) Race(ctx context.Context) (race.Result, error) {
	s, err := r.start(ctx)
	if err != nil {
		return race.Result{}, fmt.Errorf("setup: %w", err)
	}
	defer s.stop()

	var opts []race.Option
	if r.tel != nil {
		opts = append(opts, race.WithRecorder(r.tel))
	}
	loop := race.NewLoop(r.RaceConfig(), r.logger, opts...)
	return loop.Run(ctx, s.observations(race.FeedA), s.observations(race.FeedB)), nil
}
