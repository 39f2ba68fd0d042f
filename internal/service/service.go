package service

import (
	"context"
	"database/sql"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/AdamBeresnev/bot-arena/internal/apperr"
	"github.com/google/uuid"
)

// BotDirectory answers whether a bot is registered.
type BotDirectory interface {
	Exists(ctx context.Context, botID uuid.UUID) (bool, error)
}

// Rand is the randomness source used for seeding, tie-breaks and the default
// move policy. Implementations must be safe for concurrent use.
type Rand interface {
	IntN(n int) int
	Perm(n int) []int
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand returns a deterministic Rand for the given seed.
func NewRand(seed uint64) Rand {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed))}
}

func newDefaultRand() Rand {
	return &lockedRand{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func (l *lockedRand) Perm(n int) []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Perm(n)
}

type options struct {
	rng      Rand
	now      func() time.Time
	policy   MovePolicy
	maxMoves int
}

// Option configures the services in this package.
type Option func(*options)

func WithRand(r Rand) Option {
	return func(o *options) { o.rng = r }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithPolicy sets the move source used by the match executor
func WithPolicy(p MovePolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithMaxMoves caps the number of moves a single match may take
func WithMaxMoves(n int) Option {
	return func(o *options) { o.maxMoves = n }
}

const DefaultMaxMoves = 1000

func buildOptions(opts []Option) options {
	o := options{
		now:      func() time.Time { return time.Now().UTC() },
		maxMoves: DefaultMaxMoves,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = newDefaultRand()
	}
	if o.policy == nil {
		o.policy = NewRandomPolicy(o.rng)
	}
	if o.maxMoves <= 0 {
		o.maxMoves = DefaultMaxMoves
	}
	return o
}

// notFound converts sql.ErrNoRows into an apperr NotFound for the named entity
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Newf(apperr.CodeNotFound, "%s not found", what)
	}
	return err
}

// keyedMutex hands out one mutex per key. Entries are dropped once no caller
// holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
