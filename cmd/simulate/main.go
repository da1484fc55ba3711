package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bybit-trader/internal/common"
	"bybit-trader/internal/ohlcv"
	"bybit-trader/internal/sim"
	"bybit-trader/internal/state"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		dbPath     = flag.String("db", common.DefaultDBPath, "Path to the OHLCV SQLite database")
		logPath    = flag.String("log", common.DefaultSimLogPath, "Simulation log output (CSV)")
		paperPath  = flag.String("paper-state", common.DefaultPaperStateFile, "Paper trading state file")
		mode       = flag.String("mode", "sim", "Mode: sim, paper")
		symbol     = flag.String("symbol", common.DefaultSymbol, "Symbol to replay")
		limit      = flag.Int("limit", 0, "Replay only the most recent N candles (0 = all)")
		balance    = flag.Float64("balance", 1000, "Starting balance for the simulation (USDT)")
		fee        = flag.Float64("fee", common.DefaultTradingFeePercent, "Trading fee percent per side")
		window     = flag.Int("window", 20, "Decider indicator window (candles)")
		threshold  = flag.Float64("threshold", 0.3, "Decider score threshold")
		reportStep = flag.Int("report-every", 50, "Paper mode: report unrealized PnL every N steps")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := ohlcv.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open OHLCV database")
	}
	defer db.Close()

	candles, err := db.Candles(ctx, *symbol, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load candles")
	}
	log.Info().Str("symbol", *symbol).Int("candles", len(candles)).Str("mode", *mode).Msg("Loaded market data")

	decider := sim.NewMomentumDecider(*window, *threshold)

	switch *mode {
	case "sim":
		err = simulate(ctx, candles, decider, *balance, *fee, *logPath)
	case "paper":
		err = paper(ctx, candles, decider, *paperPath, *symbol, *reportStep)
	default:
		log.Fatal().Str("mode", *mode).Msg("Unknown mode")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Str("mode", *mode).Msg("Run failed")
	}
}

func simulate(ctx context.Context, candles []ohlcv.Candle, d sim.Decider, balance, fee float64, logPath string) error {
	env, err := sim.NewEnv(candles, balance, fee)
	if err != nil {
		return err
	}
	s := &sim.Simulator{Env: env, Decider: d, LogPath: logPath}
	res, _, err := s.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println("=== Simulation Summary ===")
	fmt.Printf("Steps: %d\nEntries: %d\nExits: %d\nFinal equity: %.2f USDT\n\n", res.Steps, res.Entries, res.Exits, res.FinalEquity)
	fmt.Println(res.Performance.RunReport())
	return nil
}

func paper(ctx context.Context, candles []ohlcv.Candle, d sim.Decider, statePath, symbol string, every int) error {
	p := &sim.PaperTrader{
		Store:       state.NewPaperStore(statePath),
		Decider:     d,
		Notify:      func(msg string) { fmt.Println(msg) },
		Asset:       baseAsset(symbol),
		ReportEvery: every,
	}
	st, err := p.Run(ctx, candles)
	if err != nil {
		return err
	}
	log.Info().
		Float64("balance", st.Balance).
		Bool("holding", st.Holding).
		Float64("crypto_amount", st.CryptoAmount).
		Msg("Paper trading state saved")
	return nil
}

func baseAsset(symbol string) string {
	if n := len(symbol) - len(common.QuoteCoin); n > 0 && symbol[n:] == common.QuoteCoin {
		return symbol[:n]
	}
	return symbol
}
