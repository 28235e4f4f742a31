package portfolio

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
)

// PositionSource answers position queries. *Aggregator implements it.
type PositionSource interface {
	Positions(ctx context.Context, chainID uint64, user common.Address) []Position
}

// State is the view of the latest request. Loading with no positions means a
// query is in flight; not Connected means there is no wallet to query.
type State struct {
	Seq       uint64
	ChainID   uint64
	User      common.Address
	Connected bool
	Loading   bool
	Positions []Position
}

// Session serializes interactive queries so that only the most recently
// issued request can change the state. Older requests finish silently.
type Session struct {
	source PositionSource
	seq    atomic.Uint64

	mu    sync.Mutex
	state State
}

// NewSession creates a session reading from source
func NewSession(source PositionSource) *Session {
	return &Session{source: source}
}

// Request queries positions for user on chainID. It returns the committed
// state and true, or a zero State and false when a newer request was issued
// before this one completed.
func (s *Session) Request(ctx context.Context, chainID uint64, user common.Address, connected bool) (State, bool) {
	seq := s.seq.Add(1)

	pending := State{
		Seq:       seq,
		ChainID:   chainID,
		User:      user,
		Connected: connected,
		Loading:   connected,
	}
	if !s.commit(seq, pending) {
		return State{}, false
	}
	if !connected {
		return pending, true
	}

	positions := s.source.Positions(ctx, chainID, user)

	done := pending
	done.Loading = false
	done.Positions = positions
	if !s.commit(seq, done) {
		return State{}, false
	}
	return done, true
}

// State returns the last committed state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Latest returns the sequence number of the most recently issued request
func (s *Session) Latest() uint64 {
	return s.seq.Load()
}

func (s *Session) commit(seq uint64, st State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seq.Load() != seq {
		return false
	}
	s.state = st
	return true
}
