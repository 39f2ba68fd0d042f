package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/AdamBeresnev/bot-arena/internal/apperr"
	"github.com/AdamBeresnev/bot-arena/internal/bracket"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Scheduler drives started tournaments to completion. Each tournament gets
// its own polling loop; matches of a round run on a bounded worker pool.
type Scheduler struct {
	tournaments *TournamentService
	matches     *MatchService
	workers     int
	interval    time.Duration

	mu      sync.Mutex
	running map[uuid.UUID]*loopHandle
	wg      sync.WaitGroup
}

// loopHandle stays registered until its loop returns, so a stopped loop that
// is still finishing a pass blocks new launches for the same tournament.
type loopHandle struct {
	stop     chan struct{}
	stopping bool
}

func (h *loopHandle) signal() {
	if !h.stopping {
		h.stopping = true
		close(h.stop)
	}
}

func NewScheduler(tournaments *TournamentService, matches *MatchService, workers int, interval time.Duration) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		tournaments: tournaments,
		matches:     matches,
		workers:     workers,
		interval:    interval,
		running:     make(map[uuid.UUID]*loopHandle),
	}
}

// Launch runs the tournament loop in the background. It returns false when a
// loop for the tournament is already running.
func (s *Scheduler) Launch(ctx context.Context, id uuid.UUID) bool {
	h, ok := s.register(id)
	if !ok {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.unregister(id, h)

		if err := s.loop(ctx, id, h.stop); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Tournament loop stopped", "tournament", id, "error", err)
		}
	}()
	return true
}

// Run drives the tournament in the calling goroutine until it completes, is
// cancelled, Stop is called or ctx is done.
func (s *Scheduler) Run(ctx context.Context, id uuid.UUID) error {
	h, ok := s.register(id)
	if !ok {
		return apperr.Newf(apperr.CodeInvalidState, "tournament %s is already being driven", id)
	}
	defer s.unregister(id, h)

	return s.loop(ctx, id, h.stop)
}

// Stop signals the tournament loop to exit after its in-flight matches. The
// tournament counts as running until the loop has returned.
func (s *Scheduler) Stop(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.running[id]; ok {
		h.signal()
	}
}

// Shutdown stops every loop and waits for the background ones to return
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for _, h := range s.running {
		h.signal()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) Running(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	return ok
}

func (s *Scheduler) register(id uuid.UUID) (*loopHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.running[id]; exists {
		return nil, false
	}
	h := &loopHandle{stop: make(chan struct{})}
	s.running[id] = h
	return h, true
}

func (s *Scheduler) unregister(id uuid.UUID, h *loopHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h.signal()
	if s.running[id] == h {
		delete(s.running, id)
	}
}

func (s *Scheduler) loop(ctx context.Context, id uuid.UUID, stop <-chan struct{}) error {
	slog.Info("Driving tournament", "tournament", id, "workers", s.workers, "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			slog.Info("Tournament loop stopped", "tournament", id)
			return nil
		default:
		}

		done, progressed, err := s.pass(ctx, id)
		if err != nil {
			return err
		}
		if done {
			slog.Info("Tournament loop finished", "tournament", id)
			return nil
		}
		if progressed {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			slog.Info("Tournament loop stopped", "tournament", id)
			return nil
		case <-ticker.C:
		}
	}
}

// pass plays the pending round and tries to advance. done is true once the
// tournament reached a terminal status.
func (s *Scheduler) pass(ctx context.Context, id uuid.UUID) (done, progressed bool, err error) {
	ctx, span := tracer.Start(ctx, "scheduler.pass", trace.WithAttributes(attribute.String("tournament.id", id.String())))
	defer span.End()

	tournament, err := s.tournaments.Get(ctx, id)
	if err != nil {
		return false, false, err
	}
	if tournament.Status.IsTerminal() {
		return true, false, nil
	}

	waiting, err := s.matches.WaitingMatches(ctx, id)
	if err != nil {
		return false, false, err
	}
	span.SetAttributes(attribute.Int("matches.waiting", len(waiting)))

	if len(waiting) > 0 {
		if err := s.runMatches(ctx, id, waiting); err != nil {
			slog.Error("Match execution failed, cancelling tournament", "tournament", id, "error", err)
			if cerr := s.tournaments.Cancel(context.WithoutCancel(ctx), id, err.Error()); cerr != nil && !errors.Is(cerr, apperr.ErrInvalidState) {
				slog.Error("Failed to cancel tournament", "tournament", id, "error", cerr)
			}
			return false, false, err
		}
	}

	advanced, err := s.tournaments.Advance(ctx, id)
	if err != nil {
		return false, false, err
	}
	return false, advanced || len(waiting) > 0, nil
}

func (s *Scheduler) runMatches(ctx context.Context, tournamentID uuid.UUID, waiting []bracket.Match) error {
	// In-flight matches always finish, even when ctx is cancelled
	matchCtx := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	g.SetLimit(s.workers)

	for _, m := range waiting {
		g.Go(func() error {
			res, err := s.matches.ExecuteMatch(matchCtx, m.ID)
			if err != nil {
				if errors.Is(err, apperr.ErrInvalidState) {
					slog.Debug("Skipping match", "match", m.ID, "reason", err)
					return nil
				}
				return err
			}
			if res.Err != nil {
				slog.Warn("Match cancelled during execution", "tournament", tournamentID, "match", m.ID, "error", res.Err)
			}
			return nil
		})
	}
	return g.Wait()
}
