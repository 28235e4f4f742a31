package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/korjavin/defiportfolio/chain"
	"github.com/korjavin/defiportfolio/fixedpoint"
	"github.com/korjavin/defiportfolio/portfolio"
)

const (
	positionsUsage = "/positions <address> [chainId]"

	// sessions idle for longer are dropped by PruneSessions
	sessionIdleTTL = time.Hour
)

// ChainLister reports the chains that have adapters registered
type ChainLister interface {
	Chains() []uint64
}

type BotHandlers struct {
	chains       ChainLister
	source       portfolio.PositionSource
	timeout      time.Duration
	showTestnets bool
	logger       *zap.SugaredLogger

	// chat id -> *chatSession
	sessions sync.Map
}

type chatSession struct {
	*portfolio.Session
	lastUsed atomic.Int64
}

func NewBotHandlers(chains ChainLister, source portfolio.PositionSource, cfg Config, logger *zap.SugaredLogger) *BotHandlers {
	return &BotHandlers{
		chains:       chains,
		source:       source,
		timeout:      cfg.RequestTimeout,
		showTestnets: cfg.ShowTestnets,
		logger:       logger.Named("handlers"),
	}
}

func (h *BotHandlers) RegisterHandlers(dispatcher *ext.Dispatcher) {
	dispatcher.AddHandler(handlers.NewCommand("start", h.handleStart))
	dispatcher.AddHandler(handlers.NewCommand("chains", h.handleChains))
	dispatcher.AddHandler(handlers.NewCommand("positions", h.handlePositions))
}

func (h *BotHandlers) handleStart(b *gotgbot.Bot, ctx *ext.Context) error {
	h.logger.Infow("Received start command", "user_id", ctx.EffectiveUser.Id)

	msg := `Welcome to DeFi Portfolio Tracker!
Available commands:
/chains - Show supported chains
` + positionsUsage + ` - Show lending and liquidity positions of a wallet`

	_, err := ctx.EffectiveMessage.Reply(b, msg, &gotgbot.SendMessageOpts{})
	return err
}

func (h *BotHandlers) handleChains(b *gotgbot.Bot, ctx *ext.Context) error {
	h.logger.Infow("Received chains command", "user_id", ctx.EffectiveUser.Id)

	_, err := ctx.EffectiveMessage.Reply(b, renderChains(chain.Visible(h.showTestnets), h.chains.Chains()), &gotgbot.SendMessageOpts{})
	return err
}

func (h *BotHandlers) handlePositions(b *gotgbot.Bot, ctx *ext.Context) error {
	h.logger.Infow("Received positions command", "user_id", ctx.EffectiveUser.Id)

	// The first argument is the command itself
	args := ctx.Args()
	h.logger.Debugw("Command arguments", "args", args)

	var (
		user      common.Address
		connected bool
	)
	chainID := chain.MainnetID
	if len(args) >= 2 {
		addr, err := parseAddress(args[1])
		if err != nil {
			h.logger.Debugw("Invalid address", "address", args[1], "error", err)
			msg := fmt.Sprintf("Invalid Ethereum address: %v. Usage: %s", err, positionsUsage)
			_, err := ctx.EffectiveMessage.Reply(b, msg, &gotgbot.SendMessageOpts{})
			return err
		}
		user, connected = addr, true
	}
	if len(args) >= 3 {
		id, err := parseChainID(args[2])
		if err != nil {
			msg := fmt.Sprintf("Unsupported chain: %v. Use /chains to list supported chains.", err)
			_, err := ctx.EffectiveMessage.Reply(b, msg, &gotgbot.SendMessageOpts{})
			return err
		}
		chainID = id
	}

	statusText := "Fetching positions... This may take a moment."
	if !connected {
		statusText = "Clearing wallet..."
	}
	statusMsg, err := ctx.EffectiveMessage.Reply(b, statusText, &gotgbot.SendMessageOpts{})
	if err != nil {
		return err
	}

	text, ok := h.query(ctx.EffectiveChat.Id, chainID, user, connected)
	if !ok {
		// a newer /positions in this chat owns the reply
		_, err = statusMsg.Delete(b, &gotgbot.DeleteMessageOpts{})
		return err
	}

	_, _, err = statusMsg.EditText(b, text, &gotgbot.EditMessageTextOpts{})
	return err
}

// query runs a request through the chat's session and renders the committed
// state. It returns false when the request was superseded.
func (h *BotHandlers) query(chatID int64, chainID uint64, user common.Address, connected bool) (string, bool) {
	bgCtx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	state, ok := h.session(chatID).Request(bgCtx, chainID, user, connected)
	if !ok {
		h.logger.Debugw("Dropping superseded request", "chatId", chatID, "wallet", user.Hex())
		return "", false
	}
	return renderState(state), true
}

func (h *BotHandlers) session(chatID int64) *portfolio.Session {
	v, ok := h.sessions.Load(chatID)
	if !ok {
		v, _ = h.sessions.LoadOrStore(chatID, &chatSession{Session: portfolio.NewSession(h.source)})
	}
	cs := v.(*chatSession)
	cs.lastUsed.Store(time.Now().UnixNano())
	return cs.Session
}

// PruneSessions drops idle chat sessions every interval until ctx is done
func (h *BotHandlers) PruneSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := h.pruneSessions(now.Add(-sessionIdleTTL)); n > 0 {
				h.logger.Debugw("Pruned idle sessions", "count", n)
			}
		}
	}
}

// pruneSessions removes sessions last used before cutoff. A session with a
// request in flight is kept.
func (h *BotHandlers) pruneSessions(cutoff time.Time) int {
	pruned := 0
	h.sessions.Range(func(k, v any) bool {
		cs := v.(*chatSession)
		if cs.lastUsed.Load() < cutoff.UnixNano() && !cs.State().Loading {
			if h.sessions.CompareAndDelete(k, v) {
				pruned++
			}
		}
		return true
	})
	return pruned
}

func parseAddress(s string) (common.Address, error) {
	if len(s) < 2 || s[:2] != "0x" {
		return common.Address{}, errors.New("address must start with 0x")
	}
	if len(s) != 42 {
		return common.Address{}, errors.New("address must be 42 characters long including the 0x prefix")
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.New("address is not valid hex")
	}
	return common.HexToAddress(s), nil
}

func parseChainID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q", s)
	}
	if _, ok := chain.Lookup(id); !ok {
		return 0, fmt.Errorf("chain %d is not supported", id)
	}
	return id, nil
}

func chainName(id uint64) string {
	if c, ok := chain.Lookup(id); ok {
		return c.Name
	}
	return fmt.Sprintf("chain %d", id)
}

func renderChains(visible []chain.Info, registered []uint64) string {
	active := make(map[uint64]bool, len(registered))
	for _, id := range registered {
		active[id] = true
	}

	var sb strings.Builder
	sb.WriteString("Supported chains:\n\n")
	for _, c := range visible {
		fmt.Fprintf(&sb, "%d - %s", c.ID, c.Name)
		if c.IsTestnet {
			sb.WriteString(" (testnet)")
		}
		if !active[c.ID] {
			sb.WriteString(" (no protocols)")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderState(st portfolio.State) string {
	switch {
	case !st.Connected:
		return "No wallet connected. Use " + positionsUsage + " to view a wallet."
	case st.Loading:
		return "Fetching positions... This may take a moment."
	case len(st.Positions) == 0:
		return fmt.Sprintf("No positions found for %s on %s.", st.User.Hex(), chainName(st.ChainID))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d positions for %s on %s:\n\n", len(st.Positions), st.User.Hex(), chainName(st.ChainID))
	for i, p := range st.Positions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, p.Label)
		sb.WriteString(renderPosition(p))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderPosition(p portfolio.Position) string {
	if !p.HasValue() {
		return "   No balances\n"
	}

	var sb strings.Builder
	if len(p.Supplied) > 0 {
		fmt.Fprintf(&sb, "   Supplied: %s\n", renderAmounts(p.Supplied))
	}
	if len(p.Borrowed) > 0 {
		fmt.Fprintf(&sb, "   Borrowed: %s\n", renderAmounts(p.Borrowed))
	}
	if len(p.Fees) > 0 {
		fmt.Fprintf(&sb, "   Unclaimed Fees: %s\n", renderAmounts(p.Fees))
	}
	if p.NetValueUSD != nil {
		if usd, err := fixedpoint.FormatUSD(*p.NetValueUSD, 2); err == nil {
			fmt.Fprintf(&sb, "   Net Value: %s\n", usd)
		}
	}
	if p.Health != nil {
		fmt.Fprintf(&sb, "   %s\n", renderHealth(*p.Health))
	}
	return sb.String()
}

func renderAmounts(amounts []portfolio.Amount) string {
	parts := make([]string, len(amounts))
	for i, a := range amounts {
		s, err := fixedpoint.FormatTokenAmount(a.Raw, int(a.Token.Decimals))
		if err != nil {
			s = "?"
		}
		parts[i] = s + " " + a.Token.Symbol
	}
	return strings.Join(parts, ", ")
}

func renderHealth(hl portfolio.Health) string {
	hf := "∞"
	if hl.HealthFactor != nil {
		hf = strconv.FormatFloat(*hl.HealthFactor, 'f', 2, 64)
	}
	parts := []string{"Health Factor: " + hf}
	if hl.LiquidationThreshold != nil {
		parts = append(parts, fmt.Sprintf("Liq. Threshold: %.2f%%", *hl.LiquidationThreshold*100))
	}
	if hl.LTV != nil {
		parts = append(parts, fmt.Sprintf("LTV: %.2f%%", *hl.LTV*100))
	}
	return strings.Join(parts, " | ")
}
