package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/ethereum/go-ethereum/common"

	"github.com/korjavin/defiportfolio/chain"
)

const infuraURLFormat = "https://%s.infura.io/v3/%s"

// Config is read from the environment
type Config struct {
	TelegramToken string `env:"TELEGRAM_TOKEN,required,notEmpty"`
	InfuraKey     string `env:"INFURA_API_KEY"`
	MainnetRPCURL string `env:"MAINNET_RPC_URL"`
	SepoliaRPCURL string `env:"SEPOLIA_RPC_URL"`

	LiveReads         bool          `env:"LIVE_READS" envDefault:"true"`
	UseMulticall      bool          `env:"USE_MULTICALL" envDefault:"true"`
	Multicall3Address string        `env:"MULTICALL3_ADDRESS" envDefault:"0xcA11bde05977b3631167028862bE2a173976CA11"`
	UniswapV2Pairs    []string      `env:"UNISWAP_V2_PAIRS" envSeparator:","`
	RPCMaxRetries     uint          `env:"RPC_MAX_RETRIES" envDefault:"3"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShowTestnets      bool          `env:"SHOW_TESTNETS" envDefault:"true"`

	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
	Debug       bool   `env:"DEBUG" envDefault:"false"`
}

// LoadConfig parses the process environment
func LoadConfig() (Config, error) {
	return parseConfig(env.Options{})
}

func parseConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if !c.LiveReads {
		return nil
	}
	if !common.IsHexAddress(c.Multicall3Address) {
		return fmt.Errorf("invalid MULTICALL3_ADDRESS %q", c.Multicall3Address)
	}
	for _, p := range c.UniswapV2Pairs {
		if !common.IsHexAddress(p) {
			return fmt.Errorf("invalid pair in UNISWAP_V2_PAIRS %q", p)
		}
	}
	if len(c.RPCURLs()) == 0 {
		return fmt.Errorf("live reads need INFURA_API_KEY or an RPC URL per chain")
	}
	return nil
}

// RPCURLs returns the endpoint per chain. Explicit URLs win over Infura.
func (c Config) RPCURLs() map[uint64]string {
	urls := make(map[uint64]string)
	if c.InfuraKey != "" {
		urls[chain.MainnetID] = fmt.Sprintf(infuraURLFormat, "mainnet", c.InfuraKey)
		urls[chain.SepoliaID] = fmt.Sprintf(infuraURLFormat, "sepolia", c.InfuraKey)
	}
	if c.MainnetRPCURL != "" {
		urls[chain.MainnetID] = c.MainnetRPCURL
	}
	if c.SepoliaRPCURL != "" {
		urls[chain.SepoliaID] = c.SepoliaRPCURL
	}
	return urls
}

// V2Pairs returns the configured pair allow-list, nil for the default seed
func (c Config) V2Pairs() []common.Address {
	if len(c.UniswapV2Pairs) == 0 {
		return nil
	}
	pairs := make([]common.Address, len(c.UniswapV2Pairs))
	for i, p := range c.UniswapV2Pairs {
		pairs[i] = common.HexToAddress(p)
	}
	return pairs
}
