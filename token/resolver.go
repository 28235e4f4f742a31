// Package token resolves and memoizes ERC-20 metadata.
//
// Metadata is immutable on-chain, so the cache never evicts and never updates
// an entry once written. A token is cached only after all of decimals, symbol
// and name were read successfully.
package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/korjavin/defiportfolio/chain"
	"github.com/korjavin/defiportfolio/portfolio"
)

// ErrUnresolved is returned when token metadata could not be read.
var ErrUnresolved = errors.New("token metadata unresolved")

const (
	resolveAllLimit = 8

	// fetchTimeout bounds a shared metadata read
	fetchTimeout = 15 * time.Second
)

// Resolver fetches token metadata per chain and memoizes it for the process lifetime
type Resolver struct {
	readers map[uint64]chain.Reader
	cache   sync.Map
	group   singleflight.Group
	logger  *zap.SugaredLogger
}

// NewResolver creates a resolver reading through readers, keyed by chain id
func NewResolver(readers map[uint64]chain.Reader, logger *zap.SugaredLogger) *Resolver {
	return &Resolver{
		readers: readers,
		logger:  logger.Named("token_resolver"),
	}
}

// CacheKey is the memoization key for a token: chain id and lower-cased address
func CacheKey(chainID uint64, address common.Address) string {
	return strconv.FormatUint(chainID, 10) + "-" + strings.ToLower(address.Hex())
}

// Resolve returns metadata for address on chainID
func (r *Resolver) Resolve(ctx context.Context, chainID uint64, address common.Address) (portfolio.Token, error) {
	key := CacheKey(chainID, address)
	if v, ok := r.cache.Load(key); ok {
		return v.(portfolio.Token), nil
	}

	reader, ok := r.readers[chainID]
	if !ok {
		return portfolio.Token{}, fmt.Errorf("%w: no reader for chain %d", ErrUnresolved, chainID)
	}

	// The shared read is detached from every caller; each caller only stops
	// waiting when its own ctx is done.
	ch := r.group.DoChan(key, func() (interface{}, error) {
		if v, ok := r.cache.Load(key); ok {
			return v, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		tok, err := fetch(fetchCtx, reader, chainID, address)
		if err != nil {
			return nil, err
		}
		actual, _ := r.cache.LoadOrStore(key, tok)
		return actual, nil
	})

	select {
	case <-ctx.Done():
		return portfolio.Token{}, fmt.Errorf("%w: %s on chain %d: %w", ErrUnresolved, address.Hex(), chainID, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			r.logger.Warnw("Failed to fetch token metadata", "chainId", chainID, "token", address.Hex(), "error", res.Err)
			return portfolio.Token{}, fmt.Errorf("%w: %s on chain %d: %w", ErrUnresolved, address.Hex(), chainID, res.Err)
		}
		return res.Val.(portfolio.Token), nil
	}
}

// ResolveAll resolves addresses concurrently. Unresolved tokens are missing from the result.
func (r *Resolver) ResolveAll(ctx context.Context, chainID uint64, addresses []common.Address) map[common.Address]portfolio.Token {
	out := make(map[common.Address]portfolio.Token, len(addresses))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveAllLimit)

	seen := make(map[common.Address]struct{}, len(addresses))
	for _, addr := range addresses {
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}

		addr := addr
		g.Go(func() error {
			tok, err := r.Resolve(gctx, chainID, addr)
			if err != nil {
				// logged by Resolve; the caller skips the asset
				return nil
			}
			mu.Lock()
			out[addr] = tok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func fetch(ctx context.Context, reader chain.Reader, chainID uint64, address common.Address) (portfolio.Token, error) {
	var (
		decimals uint8
		symbol   string
		name     string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return chain.Read(gctx, reader, address, chain.ERC20ABI, "decimals", &decimals)
	})
	g.Go(func() error {
		return chain.Read(gctx, reader, address, chain.ERC20ABI, "symbol", &symbol)
	})
	g.Go(func() error {
		return chain.Read(gctx, reader, address, chain.ERC20ABI, "name", &name)
	})
	if err := g.Wait(); err != nil {
		return portfolio.Token{}, err
	}

	return portfolio.Token{
		ChainID:  chainID,
		Address:  address,
		Symbol:   symbol,
		Name:     name,
		Decimals: decimals,
	}, nil
}
