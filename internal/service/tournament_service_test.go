package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AdamBeresnev/bot-arena/internal/apperr"
	"github.com/AdamBeresnev/bot-arena/internal/bracket"
	"github.com/AdamBeresnev/bot-arena/internal/db"
	"github.com/AdamBeresnev/bot-arena/internal/game"
	"github.com/AdamBeresnev/bot-arena/internal/store"
	"github.com/AdamBeresnev/bot-arena/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := db.Open("file::memory:")
	require.NoError(t, err, "Failed to connect to in-memory DB")

	require.NoError(t, db.RunMigrations(database), "Failed to apply migrations")

	return database
}

func fixedNow() time.Time {
	return time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
}

// testEngine is a game that never ends; it can fail or panic on every move
type testEngine struct {
	players []string
	fail    error
	panics  bool
}

func (e *testEngine) Players() []string { return e.players }
func (e *testEngine) ValidMoves(player string) []string { return []string{"tick"} }
func (e *testEngine) IsValidMove(move game.Move) bool { return move.Action == "tick" }
func (e *testEngine) IsTerminal() bool { return false }
func (e *testEngine) Winner() (string, bool) { return "", false }
func (e *testEngine) State() any { return map[string]any{"players": e.players} }

func (e *testEngine) ApplyMove(move game.Move) error {
	if e.panics {
		panic("engine exploded")
	}
	return e.fail
}

const (
	gameBroken    = "broken"
	gameExplosive = "explosive"
	gameEndless   = "endless"
)

func testRegistry() *game.Registry {
	registry := game.DefaultRegistry()
	registry.Register(gameBroken, func(players []string, _ game.Config) (game.Engine, error) {
		return &testEngine{players: players, fail: errors.New("engine exploded")}, nil
	})
	registry.Register(gameExplosive, func(players []string, _ game.Config) (game.Engine, error) {
		return &testEngine{players: players, panics: true}, nil
	})
	registry.Register(gameEndless, func(players []string, _ game.Config) (game.Engine, error) {
		return &testEngine{players: players}, nil
	})
	return registry
}

// firstSeatWins makes the lower seed of every match win: the first mover
// always plays rock, the second scissors.
var firstSeatWins = PolicyFunc(func(_ context.Context, req MoveRequest) (string, error) {
	if req.Sequence%2 == 1 {
		return game.Rock, nil
	}
	return game.Scissors, nil
})

var alwaysRock = PolicyFunc(func(context.Context, MoveRequest) (string, error) {
	return game.Rock, nil
})

type testEnv struct {
	db          *sqlx.DB
	store       *store.TournamentStore
	bots        *store.BotStore
	tournaments *TournamentService
	matches     *MatchService
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	database := setupTestDB(t)
	t.Cleanup(func() { database.Close() })

	registry := testRegistry()
	tournamentStore := store.NewTournamentStore(database)
	bots := store.NewBotStore(database)

	return &testEnv{
		db:          database,
		store:       tournamentStore,
		bots:        bots,
		tournaments: NewTournamentService(database, tournamentStore, bots, registry, opts...),
		matches:     NewMatchService(database, tournamentStore, registry, opts...),
	}
}

func (e *testEnv) createBot(t *testing.T, name string) uuid.UUID {
	t.Helper()
	bot := &bracket.Bot{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	require.NoError(t, e.bots.CreateBot(context.Background(), bot))
	return bot.ID
}

// createTournament creates a tournament and joins n fresh bots to it
func (e *testEnv) createTournament(t *testing.T, format bracket.TournamentFormat, gameType string, n int) *bracket.Tournament {
	t.Helper()
	ctx := context.Background()

	tournament, err := e.tournaments.Create(ctx, CreateInput{
		Name:     fmt.Sprintf("%s %d", format, n),
		GameType: gameType,
		Format:   format,
	})
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		botID := e.createBot(t, fmt.Sprintf("%s-bot-%d", tournament.ID, i+1))
		_, err := e.tournaments.Join(ctx, tournament.ID, botID)
		require.NoError(t, err)
	}
	return tournament
}

// playOut executes matches and advances synchronously until the tournament
// reaches a terminal status
func (e *testEnv) playOut(t *testing.T, id uuid.UUID) *bracket.Tournament {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		waiting, err := e.matches.WaitingMatches(ctx, id)
		require.NoError(t, err)
		for _, m := range waiting {
			_, err := e.matches.ExecuteMatch(ctx, m.ID)
			require.NoError(t, err)
		}

		changed, err := e.tournaments.Advance(ctx, id)
		require.NoError(t, err)

		tournament, err := e.tournaments.Get(ctx, id)
		require.NoError(t, err)
		if tournament.Status.IsTerminal() {
			return tournament
		}
		require.True(t, changed || len(waiting) > 0, "tournament stalled")
	}
	t.Fatal("tournament did not finish")
	return nil
}

func (e *testEnv) participantsBySeed(t *testing.T, id uuid.UUID) map[int]bracket.Participant {
	t.Helper()
	participants, err := e.tournaments.Participants(context.Background(), id)
	require.NoError(t, err)

	bySeed := make(map[int]bracket.Participant)
	for _, p := range participants {
		require.NotNil(t, p.Seed)
		bySeed[*p.Seed] = p
	}
	return bySeed
}

func TestCreateTournamentValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	testCases := []struct {
		name  string
		input CreateInput
	}{
		{name: "unknown format", input: CreateInput{Name: "x", GameType: "rps", Format: "swiss"}},
		{name: "unknown game", input: CreateInput{Name: "x", GameType: "chess", Format: bracket.RoundRobin}},
		{name: "empty name", input: CreateInput{Name: "  ", GameType: "rps", Format: bracket.RoundRobin}},
		{name: "max participants too small", input: CreateInput{Name: "x", GameType: "rps", Format: bracket.RoundRobin, MaxParticipants: utils.Ptr(1)}},
		{name: "bad game config", input: CreateInput{Name: "x", GameType: "rps", Format: bracket.RoundRobin, Config: bracket.Config{"game_config": map[string]any{"total_rounds": 0}}}},
		{name: "game config not an object", input: CreateInput{Name: "x", GameType: "rps", Format: bracket.RoundRobin, Config: bracket.Config{"game_config": 3}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.tournaments.Create(ctx, tc.input)
			assert.ErrorIs(t, err, apperr.ErrConfig)
		})
	}

	tournament, err := env.tournaments.Create(ctx, CreateInput{
		Name:     "Friday Cup",
		GameType: "rock_paper_scissors",
		Format:   bracket.SingleElimination,
		Config:   bracket.Config{"game_config": map[string]any{"total_rounds": 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, bracket.TournamentRegistrationOpen, tournament.Status)

	fetched, err := env.tournaments.Get(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, "Friday Cup", fetched.Name)

	matches, err := env.store.GetMatches(ctx, tournament.ID.String())
	require.NoError(t, err)
	assert.Empty(t, matches, "no matches while registration is open")
}

func TestJoinErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tournament, err := env.tournaments.Create(ctx, CreateInput{
		Name:            "Small",
		GameType:        "rps",
		Format:          bracket.RoundRobin,
		MaxParticipants: utils.Ptr(2),
	})
	require.NoError(t, err)

	bot1 := env.createBot(t, "one")
	bot2 := env.createBot(t, "two")
	bot3 := env.createBot(t, "three")

	_, err = env.tournaments.Join(ctx, tournament.ID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound, "unknown bot")

	_, err = env.tournaments.Join(ctx, uuid.New(), bot1)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "unknown tournament")

	participant, err := env.tournaments.Join(ctx, tournament.ID, bot1)
	require.NoError(t, err)
	assert.Equal(t, bot1, participant.BotID)
	assert.Equal(t, "one", participant.BotName)
	assert.Nil(t, participant.Seed)

	_, err = env.tournaments.Join(ctx, tournament.ID, bot1)
	assert.ErrorIs(t, err, apperr.ErrAlreadyRegistered)

	_, err = env.tournaments.Join(ctx, tournament.ID, bot2)
	require.NoError(t, err)

	_, err = env.tournaments.Join(ctx, tournament.ID, bot3)
	assert.ErrorIs(t, err, apperr.ErrFull)

	_, err = env.tournaments.Start(ctx, tournament.ID)
	require.NoError(t, err)

	other, err := env.tournaments.Create(ctx, CreateInput{Name: "Open", GameType: "rps", Format: bracket.RoundRobin})
	require.NoError(t, err)
	_, err = env.tournaments.Join(ctx, other.ID, bot3)
	require.NoError(t, err)

	_, err = env.tournaments.Join(ctx, tournament.ID, bot3)
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "join after start")
}

func TestStartSeedsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tournament := env.createTournament(t, bracket.SingleElimination, "rps", 5)

	started, err := env.tournaments.Start(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.TournamentInProgress, started.Status)
	assert.NotNil(t, started.StartTime)

	seeds := env.participantsBySeed(t, tournament.ID)
	require.Len(t, seeds, 5)
	for seed := 1; seed <= 5; seed++ {
		assert.Contains(t, seeds, seed)
	}

	_, err = env.tournaments.Start(ctx, tournament.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	again := env.participantsBySeed(t, tournament.ID)
	for seed, p := range seeds {
		assert.Equal(t, p.ID, again[seed].ID, "seed %d was reassigned", seed)
	}

	_, err = env.tournaments.Start(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStartNeedsTwoParticipants(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.createTournament(t, bracket.RoundRobin, "rps", 1)

	_, err := env.tournaments.Start(context.Background(), tournament.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	fetched, err := env.tournaments.Get(context.Background(), tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.TournamentRegistrationOpen, fetched.Status)
}

func TestSingleEliminationFourParticipants(t *testing.T) {
	env := newTestEnv(t, WithPolicy(firstSeatWins))
	ctx := context.Background()

	tournament := env.createTournament(t, bracket.SingleElimination, "rps", 4)
	_, err := env.tournaments.Start(ctx, tournament.ID)
	require.NoError(t, err)

	// Round not played yet
	changed, err := env.tournaments.Advance(ctx, tournament.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	finished := env.playOut(t, tournament.ID)
	assert.Equal(t, bracket.TournamentCompleted, finished.Status)
	assert.NotNil(t, finished.EndTime)

	matches, err := env.store.GetMatches(ctx, tournament.ID.String())
	require.NoError(t, err)
	perRound := map[int]int{}
	for _, m := range matches {
		perRound[m.RoundNumber]++
		assert.Equal(t, bracket.MatchCompleted, m.Status)
		assert.NotNil(t, m.WinnerID)
	}
	assert.Equal(t, map[int]int{1: 2, 2: 1}, perRound)

	seeds := env.participantsBySeed(t, tournament.ID)
	champion := seeds[1]
	assert.False(t, champion.Eliminated)
	require.NotNil(t, champion.FinalRank)
	assert.Equal(t, 1, *champion.FinalRank)
	assert.Equal(t, 2, champion.Wins)
	assert.Equal(t, 6, champion.Score)

	for seed := 2; seed <= 4; seed++ {
		assert.True(t, seeds[seed].Eliminated, "seed %d", seed)
		require.NotNil(t, seeds[seed].FinalRank)
		assert.NotEqual(t, 1, *seeds[seed].FinalRank)
	}

	// Completed tournaments do not move
	changed, err = env.tournaments.Advance(ctx, tournament.ID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSingleEliminationDecisiveMatches(t *testing.T) {
	for n := 2; n <= 9; n++ {
		t.Run(fmt.Sprintf("%d participants", n), func(t *testing.T) {
			env := newTestEnv(t, WithPolicy(firstSeatWins))
			ctx := context.Background()

			tournament := env.createTournament(t, bracket.SingleElimination, "rps", n)
			_, err := env.tournaments.Start(ctx, tournament.ID)
			require.NoError(t, err)
			env.playOut(t, tournament.ID)

			matches, err := env.store.GetMatches(ctx, tournament.ID.String())
			require.NoError(t, err)
			decisive := 0
			for _, m := range matches {
				if m.Status == bracket.MatchCompleted && m.WinnerID != nil {
					decisive++
				}
			}
			assert.Len(t, matches, n-1)
			assert.Equal(t, n-1, decisive)

			participants, err := env.tournaments.Participants(ctx, tournament.ID)
			require.NoError(t, err)
			survivors, ranks := 0, map[int]bool{}
			for _, p := range participants {
				require.NotNil(t, p.FinalRank)
				ranks[*p.FinalRank] = true
				if !p.Eliminated {
					survivors++
					assert.Equal(t, 1, *p.FinalRank)
				}
			}
			assert.Equal(t, 1, survivors)
			assert.Len(t, ranks, n, "ranks are distinct")
		})
	}
}

func TestSingleEliminationBye(t *testing.T) {
	env := newTestEnv(t, WithPolicy(firstSeatWins))
	ctx := context.Background()

	tournament := env.createTournament(t, bracket.SingleElimination, "rps", 3)
	_, err := env.tournaments.Start(ctx, tournament.ID)
	require.NoError(t, err)

	seeds := env.participantsBySeed(t, tournament.ID)
	bye := seeds[3]
	assert.Equal(t, 1, bye.Wins)
	assert.Equal(t, 1, bye.GamesPlayed)
	assert.Zero(t, bye.Score)

	matches, err := env.store.GetMatches(ctx, tournament.ID.String())
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.False(t, matches[0].HasParticipant(bye.ID))
	assert.Equal(t, seeds[1].ID, matches[0].Participant1ID)
	assert.Equal(t, seeds[2].ID, matches[0].Participant2ID)

	env.playOut(t, tournament.ID)

	matches, err = env.store.GetMatches(ctx, tournament.ID.String())
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.True(t, matches[1].HasParticipant(bye.ID), "bye participant plays the next round")
}

func TestSingleEliminationTieBreak(t *testing.T) {
	eliminatedSeed := func(seed uint64) int {
		env := newTestEnv(t, WithPolicy(alwaysRock), WithRand(NewRand(seed)))
		ctx := context.Background()

		tournament := env.createTournament(t, bracket.SingleElimination, "rps", 2)
		_, err := env.tournaments.Start(ctx, tournament.ID)
		require.NoError(t, err)

		waiting, err := env.matches.WaitingMatches(ctx, tournament.ID)
		require.NoError(t, err)
		require.Len(t, waiting, 1)

		res, err := env.matches.ExecuteMatch(ctx, waiting[0].ID)
		require.NoError(t, err)
		require.NoError(t, res.Err)
		assert.Nil(t, res.Match.WinnerID, "the game itself is a draw")

		var out, through bracket.Participant
		for _, p := range env.participantsBySeed(t, tournament.ID) {
			if p.Eliminated {
				out = p
			} else {
				through = p
			}
		}
		require.NotEqual(t, uuid.Nil, out.ID, "one participant is eliminated")
		require.NotEqual(t, uuid.Nil, through.ID, "one participant goes through")

		assert.Equal(t, 1, through.Wins)
		assert.Equal(t, 0, through.Draws)
		assert.Equal(t, 3, through.Score)
		assert.Equal(t, 1, out.Draws)
		assert.Equal(t, 1, out.Losses)
		assert.Equal(t, 0, out.Score)
		assert.Equal(t, 1, out.GamesPlayed)

		finished := env.playOut(t, tournament.ID)
		assert.Equal(t, bracket.TournamentCompleted, finished.Status)

		return *out.Seed
	}

	for _, seed := range []uint64{1, 7, 42} {
		assert.Equal(t, eliminatedSeed(seed), eliminatedSeed(seed), "seed %d must be deterministic", seed)
	}
}

func TestRoundRobinThreeParticipants(t *testing.T) {
	env := newTestEnv(t, WithPolicy(firstSeatWins))
	ctx := context.Background()

	tournament := env.createTournament(t, bracket.RoundRobin, "rps", 3)
	_, err := env.tournaments.Start(ctx, tournament.ID)
	require.NoError(t, err)

	matches, err := env.store.GetMatches(ctx, tournament.ID.String())
	require.NoError(t, err)
	assert.Len(t, matches, 3)

	finished := env.playOut(t, tournament.ID)
	assert.Equal(t, bracket.TournamentCompleted, finished.Status)

	view, err := env.tournaments.GetBracket(ctx, tournament.ID)
	require.NoError(t, err)
	require.NotNil(t, view.RoundRobin)
	rows := view.RoundRobin.Rows
	require.Len(t, rows, 3)
	for i := 1; i < len(rows); i++ {
		assert.GreaterOrEqual(t, rows[i-1].Score, rows[i].Score)
	}
	assert.Equal(t, 3, view.RoundRobin.TotalMatches)
	assert.Zero(t, view.RoundRobin.MatchesRemaining)

	for _, p := range env.participantsBySeed(t, tournament.ID) {
		assert.Equal(t, 2, p.GamesPlayed)
		assert.False(t, p.Eliminated)
		assert.NotNil(t, p.FinalRank)
	}
}

func TestRoundRobinPairsAreUnique(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tournament := env.createTournament(t, bracket.RoundRobin, "rps", 6)
	_, err := env.tournaments.Start(ctx, tournament.ID)
	require.NoError(t, err)

	matches, err := env.store.GetMatches(ctx, tournament.ID.String())
	require.NoError(t, err)
	assert.Len(t, matches, 15)

	pairs := make(map[[2]string]bool)
	perRound := make(map[int]map[uuid.UUID]bool)
	for _, m := range matches {
		a, b := m.Participant1ID.String(), m.Participant2ID.String()
		if a > b {
			a, b = b, a
		}
		key := [2]string{a, b}
		assert.False(t, pairs[key], "pair scheduled twice")
		pairs[key] = true

		if perRound[m.RoundNumber] == nil {
			perRound[m.RoundNumber] = make(map[uuid.UUID]bool)
		}
		for _, id := range []uuid.UUID{m.Participant1ID, m.Participant2ID} {
			assert.False(t, perRound[m.RoundNumber][id], "participant plays twice in round %d", m.RoundNumber)
			perRound[m.RoundNumber][id] = true
		}
	}
	assert.Len(t, perRound, 5)
}

func TestRoundRobinLargeField(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tournament := env.createTournament(t, bracket.RoundRobin, "rps", 100)
	_, err := env.tournaments.Start(ctx, tournament.ID)
	require.NoError(t, err)

	waiting, err := env.store.CountMatchesByStatus(ctx, tournament.ID.String(), bracket.MatchWaiting)
	require.NoError(t, err)
	assert.Equal(t, 4950, waiting)
}

func TestConcurrentStartSeedsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tournament := env.createTournament(t, bracket.SingleElimination, "rps", 8)

	var wg sync.WaitGroup
	var started, rejected atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.tournaments.Start(ctx, tournament.ID)
			switch {
			case err == nil:
				started.Add(1)
			case errors.Is(err, apperr.ErrInvalidState):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(7), rejected.Load())

	matches, err := env.store.GetMatches(ctx, tournament.ID.String())
	require.NoError(t, err)
	assert.Len(t, matches, 4, "round one is scheduled exactly once")

	seeds := make(map[int]bool)
	for seed := range env.participantsBySeed(t, tournament.ID) {
		seeds[seed] = true
	}
	assert.Len(t, seeds, 8)
}

func TestConcurrentAdvanceSchedulesRoundOnce(t *testing.T) {
	env := newTestEnv(t, WithPolicy(firstSeatWins))
	ctx := context.Background()

	tournament := env.createTournament(t, bracket.SingleElimination, "rps", 8)
	_, err := env.tournaments.Start(ctx, tournament.ID)
	require.NoError(t, err)

	waiting, err := env.matches.WaitingMatches(ctx, tournament.ID)
	require.NoError(t, err)
	for _, m := range waiting {
		_, err := env.matches.ExecuteMatch(ctx, m.ID)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	var advanced atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := env.tournaments.Advance(ctx, tournament.ID)
			assert.NoError(t, err)
			if ok {
				advanced.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), advanced.Load())
	assert.Zero(t, env.tournaments.locks.size())

	matches, err := env.store.GetMatches(ctx, tournament.ID.String())
	require.NoError(t, err)
	second := 0
	for _, m := range matches {
		if m.RoundNumber == 2 {
			second++
		}
	}
	assert.Equal(t, 2, second)
}

func TestRoundRobinDraws(t *testing.T) {
	env := newTestEnv(t, WithPolicy(alwaysRock))
	ctx := context.Background()

	tournament := env.createTournament(t, bracket.RoundRobin, "rps", 4)
	_, err := env.tournaments.Start(ctx, tournament.ID)
	require.NoError(t, err)
	env.playOut(t, tournament.ID)

	view, err := env.tournaments.GetBracket(ctx, tournament.ID)
	require.NoError(t, err)
	for _, row := range view.RoundRobin.Rows {
		assert.Equal(t, 3, row.Draws)
		assert.Equal(t, 3, row.Score)
		assert.Zero(t, row.Wins)

		results := view.RoundRobin.HeadToHead[row.ParticipantID]
		assert.Len(t, results, 3)
		for _, r := range results {
			assert.Equal(t, ResultDraw, r)
		}
	}
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tournament := env.createTournament(t, bracket.SingleElimination, "rps", 4)
	_, err := env.tournaments.Start(ctx, tournament.ID)
	require.NoError(t, err)

	waiting, err := env.matches.WaitingMatches(ctx, tournament.ID)
	require.NoError(t, err)
	require.NotEmpty(t, waiting)

	require.NoError(t, env.tournaments.Cancel(ctx, tournament.ID, "host left"))

	cancelled, err := env.tournaments.Get(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.TournamentCancelled, cancelled.Status)
	require.NotNil(t, cancelled.Error)
	assert.Equal(t, "host left", *cancelled.Error)

	count, err := env.store.CountMatchesByStatus(ctx, tournament.ID.String(), bracket.MatchWaiting)
	require.NoError(t, err)
	assert.Zero(t, count)

	changed, err := env.tournaments.Advance(ctx, tournament.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = env.matches.ExecuteMatch(ctx, waiting[0].ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	assert.ErrorIs(t, env.tournaments.Cancel(ctx, tournament.ID, ""), apperr.ErrInvalidState)
	assert.ErrorIs(t, env.tournaments.Cancel(ctx, uuid.New(), ""), apperr.ErrNotFound)
}

func TestAdvanceFailureCancelsTournament(t *testing.T) {
	env := newTestEnv(t, WithPolicy(firstSeatWins))
	ctx := context.Background()

	tournament := env.createTournament(t, bracket.SingleElimination, "rps", 4)
	_, err := env.tournaments.Start(ctx, tournament.ID)
	require.NoError(t, err)

	waiting, err := env.matches.WaitingMatches(ctx, tournament.ID)
	require.NoError(t, err)
	for _, m := range waiting {
		_, err := env.matches.ExecuteMatch(ctx, m.ID)
		require.NoError(t, err)
	}

	// Make scheduling the next round fail inside the advance transaction
	_, err = env.db.Exec(`CREATE TRIGGER reject_round BEFORE INSERT ON matches
		WHEN NEW.round_number > 1
		BEGIN SELECT RAISE(ABORT, 'disk on fire'); END`)
	require.NoError(t, err)

	changed, err := env.tournaments.Advance(ctx, tournament.ID)
	require.Error(t, err)
	assert.False(t, changed)

	failed, err := env.tournaments.Get(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.TournamentCancelled, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Contains(t, *failed.Error, "advance failed")
}

func TestListTournaments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		env.createTournament(t, bracket.RoundRobin, "rps", 0)
	}
	started := env.createTournament(t, bracket.SingleElimination, "rock_paper_scissors", 2)
	_, err := env.tournaments.Start(ctx, started.ID)
	require.NoError(t, err)

	page, err := env.tournaments.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, defaultPageSize, page.Limit)

	page, err = env.tournaments.List(ctx, ListFilter{Status: bracket.TournamentInProgress})
	require.NoError(t, err)
	require.Len(t, page.Tournaments, 1)
	assert.Equal(t, started.ID, page.Tournaments[0].ID)

	page, err = env.tournaments.List(ctx, ListFilter{GameType: "rps", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Tournaments, 2)
}
