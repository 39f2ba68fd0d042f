package service

import (
	"context"
	"testing"
	"time"

	"github.com/AdamBeresnev/bot-arena/internal/apperr"
	"github.com/AdamBeresnev/bot-arena/internal/bracket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsTournamentToCompletion(t *testing.T) {
	testCases := []struct {
		name   string
		format bracket.TournamentFormat
		count  int
	}{
		{name: "single elimination", format: bracket.SingleElimination, count: 7},
		{name: "round robin", format: bracket.RoundRobin, count: 5},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, WithRand(NewRand(11)))
			scheduler := NewScheduler(env.tournaments, env.matches, 4, time.Millisecond)

			tournament := env.createTournament(t, tc.format, "rps", tc.count)
			_, err := env.tournaments.Start(context.Background(), tournament.ID)
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			require.NoError(t, scheduler.Run(ctx, tournament.ID))
			assert.False(t, scheduler.Running(tournament.ID))

			finished, err := env.tournaments.Get(ctx, tournament.ID)
			require.NoError(t, err)
			assert.Equal(t, bracket.TournamentCompleted, finished.Status)

			waiting, err := env.store.CountMatchesByStatus(ctx, tournament.ID.String(), bracket.MatchWaiting)
			require.NoError(t, err)
			assert.Zero(t, waiting)

			for _, p := range env.participantsBySeed(t, tournament.ID) {
				assert.NotNil(t, p.FinalRank)
			}
		})
	}
}

func TestSchedulerLaunchAndShutdown(t *testing.T) {
	env := newTestEnv(t)
	scheduler := NewScheduler(env.tournaments, env.matches, 2, time.Millisecond)
	ctx := context.Background()

	tournament := env.createTournament(t, bracket.SingleElimination, "rps", 4)
	_, err := env.tournaments.Start(ctx, tournament.ID)
	require.NoError(t, err)

	require.True(t, scheduler.Launch(ctx, tournament.ID))
	scheduler.Shutdown()
	assert.False(t, scheduler.Running(tournament.ID))

	// A fresh launch picks up where the stopped loop left off
	require.True(t, scheduler.Launch(ctx, tournament.ID))
	require.Eventually(t, func() bool {
		current, err := env.tournaments.Get(ctx, tournament.ID)
		return err == nil && current.Status == bracket.TournamentCompleted
	}, 10*time.Second, 5*time.Millisecond)
	scheduler.Shutdown()
}

func TestSchedulerRejectsSecondLoop(t *testing.T) {
	env := newTestEnv(t)
	scheduler := NewScheduler(env.tournaments, env.matches, 1, time.Hour)
	ctx := context.Background()

	// Registration is still open: the loop idles until stopped
	tournament := env.createTournament(t, bracket.RoundRobin, "rps", 2)

	require.True(t, scheduler.Launch(ctx, tournament.ID))
	assert.False(t, scheduler.Launch(ctx, tournament.ID))
	assert.ErrorIs(t, scheduler.Run(ctx, tournament.ID), apperr.ErrInvalidState)

	scheduler.Stop(tournament.ID)
	scheduler.Shutdown()
	assert.False(t, scheduler.Running(tournament.ID))
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	scheduler := NewScheduler(env.tournaments, env.matches, 1, time.Millisecond)
	ctx := context.Background()

	tournament := env.createTournament(t, bracket.RoundRobin, "rps", 4)
	_, err := env.tournaments.Start(ctx, tournament.ID)
	require.NoError(t, err)
	require.NoError(t, env.tournaments.Cancel(ctx, tournament.ID, "stopped by host"))

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, scheduler.Run(runCtx, tournament.ID))

	played, err := env.store.CountMatchesByStatus(ctx, tournament.ID.String(), bracket.MatchCompleted)
	require.NoError(t, err)
	assert.Zero(t, played)
}

func TestSchedulerStoppedLoopBlocksRelaunchUntilItReturns(t *testing.T) {
	env := newTestEnv(t)
	scheduler := NewScheduler(env.tournaments, env.matches, 1, time.Hour)
	id := uuid.New()

	// A loop that has been told to stop but is still finishing its pass
	h, ok := scheduler.register(id)
	require.True(t, ok)
	scheduler.Stop(id)
	scheduler.Stop(id)

	assert.True(t, scheduler.Running(id))
	assert.False(t, scheduler.Launch(context.Background(), id))
	select {
	case <-h.stop:
	default:
		t.Fatal("stop channel was not closed")
	}

	scheduler.unregister(id, h)
	assert.False(t, scheduler.Running(id))

	h2, ok := scheduler.register(id)
	require.True(t, ok, "a fresh loop may start once the old one returned")
	scheduler.unregister(id, h2)
}
