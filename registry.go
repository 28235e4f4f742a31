package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/korjavin/defiportfolio/aave"
	"github.com/korjavin/defiportfolio/chain"
	"github.com/korjavin/defiportfolio/compound"
	"github.com/korjavin/defiportfolio/mock"
	"github.com/korjavin/defiportfolio/portfolio"
	"github.com/korjavin/defiportfolio/token"
	"github.com/korjavin/defiportfolio/uniswap"
)

// buildRegistry registers the adapters for every known chain. The returned
// func releases RPC connections.
func buildRegistry(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (*portfolio.Registry, func(), error) {
	reg := portfolio.NewRegistry(logger)

	if !cfg.LiveReads {
		logger.Infow("Live reads disabled, registering mock adapters")
		if err := registerMocks(reg); err != nil {
			return nil, nil, err
		}
		return reg, func() {}, nil
	}

	var conns []*chain.EthReader
	closeAll := func() {
		for _, c := range conns {
			c.Close()
		}
	}

	readers := make(map[uint64]chain.Reader)
	for chainID, url := range cfg.RPCURLs() {
		eth, err := chain.Dial(ctx, url, cfg.RPCMaxRetries, logger)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to dial chain %d: %w", chainID, err)
		}
		conns = append(conns, eth)

		var reader chain.Reader = eth
		if cfg.UseMulticall {
			reader = chain.NewMulticall(eth, common.HexToAddress(cfg.Multicall3Address), logger)
		}
		readers[chainID] = reader
	}

	if err := registerLive(reg, readers, cfg.V2Pairs(), logger); err != nil {
		closeAll()
		return nil, nil, err
	}
	return reg, closeAll, nil
}

// registerLive registers the on-chain adapters of every chain with a reader.
// Registration order per chain is the display order.
func registerLive(reg *portfolio.Registry, readers map[uint64]chain.Reader, v2Pairs []common.Address, logger *zap.SugaredLogger) error {
	tokens := token.NewResolver(readers, logger)

	var adapters []portfolio.Adapter
	if r, ok := readers[chain.MainnetID]; ok {
		adapters = append(adapters,
			aave.NewAdapter(aave.Ethereum, r, tokens, logger),
			compound.NewAdapter(r, tokens, logger),
			uniswap.NewV2Adapter(r, tokens, v2Pairs, logger),
			uniswap.NewV3Adapter(r, tokens, logger),
		)
	}
	if r, ok := readers[chain.SepoliaID]; ok {
		adapters = append(adapters, aave.NewAdapter(aave.Sepolia, r, tokens, logger))
	}

	for _, a := range adapters {
		if err := reg.Register(a); err != nil {
			return err
		}
	}
	return nil
}

func registerMocks(reg *portfolio.Registry) error {
	for _, c := range chain.Chains {
		for _, a := range mock.All(c.ID) {
			if err := reg.Register(a); err != nil {
				return err
			}
		}
	}
	return nil
}
