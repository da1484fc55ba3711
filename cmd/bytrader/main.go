package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bybit-trader/internal/cfg"
	"bybit-trader/internal/exchange/bybit"
	"bybit-trader/internal/exec"
	"bybit-trader/internal/metrics"
	"bybit-trader/internal/ohlcv"
	"bybit-trader/internal/risk"
	"bybit-trader/internal/sizing"
	"bybit-trader/internal/state"
	"bybit-trader/internal/status"
	"bybit-trader/internal/storage"
	"bybit-trader/internal/tasks"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `usage: bytrader <command> [flags]

commands:
  open-long   -amount USDT   open a long position
  open-short  -amount USDT   open a short position
  close                      close the open position
  balance                    print the USDT wallet balance
  status                     print market data, simulation and journal status
  refresh                    fetch new klines into the OHLCV database
  stream                     store confirmed klines from the websocket
  serve                      metrics server with streaming and periodic refresh`

const refreshEvery = 5 * time.Minute

type app struct {
	c      cfg.Settings
	client *bybit.Client
	mw     *metrics.MetricsWrapper
	tasks  *tasks.Registry
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := &app{
		c:      c,
		client: bybit.NewREST(c.Key, c.Secret, c.BaseURL, c.RESTTimeout, c.RateLimitRPS),
		mw:     metrics.NewWrapper(metrics.New()),
		tasks:  tasks.NewRegistry(),
	}

	switch cmd {
	case "open-long", "open-short":
		err = a.open(ctx, cmd, args)
	case "close":
		err = a.close(ctx)
	case "balance":
		err = a.balance(ctx)
	case "status":
		err = a.status(ctx)
	case "refresh":
		err = a.refresh(ctx)
	case "stream":
		err = a.stream(ctx)
	case "serve":
		err = a.serve(ctx)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Str("command", cmd).Msg("command failed")
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// executor wires the controller. The returned cleanup closes the journal.
func (a *app) executor() (*exec.Exec, func()) {
	gate := risk.NewGate(state.NewRiskStore(a.c.RiskStateFile), a.c.MaxDrawdownPercent, a.mw)
	exe := exec.New(a.client, gate, a.leverage(), exec.ConfigFrom(a.c), a.mw)

	journal := a.journal()
	if journal == nil {
		return exe, func() {}
	}
	exe.SetJournal(journal)
	return exe, func() { journal.Close() }
}

func (a *app) leverage() sizing.LeverageSource {
	if a.c.FixedLeverage > 0 {
		return sizing.FixedLeverage(a.c.FixedLeverage)
	}
	lo, hi := a.c.LeverageRange()
	return sizing.NewRandomLeverage(lo, hi, time.Now().UnixNano())
}

// journal opens the trade journal when JOURNAL_PATH is configured.
func (a *app) journal() *storage.Store {
	if a.c.JournalPath == "" {
		return nil
	}
	j, err := storage.New(a.c.JournalPath)
	if err != nil {
		log.Warn().Err(err).Msg("journal initialization failed, continuing without journal")
		return nil
	}
	return j
}

func (a *app) open(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	amount := fs.Float64("amount", 0, "notional in USDT (default: RISK_PERCENT of the wallet balance)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *amount <= 0 {
		bal, err := a.client.GetUSDTBalance(ctx)
		if err != nil {
			return fmt.Errorf("balance for default amount: %w", err)
		}
		*amount = bal * a.c.RiskPercent / 100
		log.Info().Float64("balance", bal).Float64("amount", *amount).Msg("using risk percent of balance")
	}

	exe, done := a.executor()
	defer done()

	var out exec.Outcome
	if cmd == "open-long" {
		out = exe.OpenLong(ctx, *amount)
	} else {
		out = exe.OpenShort(ctx, *amount)
	}
	return report(out)
}

func (a *app) close(ctx context.Context) error {
	exe, done := a.executor()
	defer done()
	return report(exe.Close(ctx))
}

// report prints the operator message and turns a failed outcome into a
// non-zero exit.
func report(out exec.Outcome) error {
	fmt.Println(out.String())
	if !out.Success {
		return fmt.Errorf("%s", out.Kind)
	}
	return nil
}

func (a *app) balance(ctx context.Context) error {
	bal, err := a.client.GetUSDTBalance(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("USDT balance: %.2f\n", bal)
	return nil
}

func (a *app) status(ctx context.Context) error {
	db, err := ohlcv.Open(a.c.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	agg := &status.Aggregator{Market: db, SimLogPath: a.c.SimLogPath, Tasks: a.tasks}
	if j := a.journal(); j != nil {
		defer j.Close()
		agg.Journal = j
	}
	fmt.Println(agg.Summary(ctx))
	return nil
}

func (a *app) refresh(ctx context.Context) error {
	db, err := ohlcv.Open(a.c.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := ohlcv.NewRefresher(a.client, db, a.c.Symbol, a.c.Interval, a.c.Limit).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Stored %d new candles\n", n)
	return nil
}

func (a *app) stream(ctx context.Context) error {
	db, err := ohlcv.Open(a.c.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	return ohlcv.Follow(ctx, bybit.NewWS(a.c.WsURL), db, a.c.Symbol, a.c.Interval, a.mw)
}

// serve runs the metrics server and keeps the OHLCV database current until
// interrupted.
func (a *app) serve(ctx context.Context) error {
	db, err := ohlcv.Open(a.c.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runner := tasks.NewRunner(a.tasks)
	agg := &status.Aggregator{Market: db, SimLogPath: a.c.SimLogPath, Tasks: a.tasks}

	srv := a.metricsServer(agg)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	refresh := ohlcv.NewRefresher(a.client, db, a.c.Symbol, a.c.Interval, a.c.Limit)
	if err := a.background(ctx, runner, "refresh", func(ctx context.Context) error {
		ticker := time.NewTicker(refreshEvery)
		defer ticker.Stop()
		for {
			if _, err := refresh.Run(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.mw.ErrorsTotal().Inc()
				log.Warn().Err(err).Msg("kline refresh failed")
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}); err != nil {
		return err
	}
	if err := a.background(ctx, runner, "stream", func(ctx context.Context) error {
		return ohlcv.Follow(ctx, bybit.NewWS(a.c.WsURL), db, a.c.Symbol, a.c.Interval, a.mw)
	}); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown metrics server")
	}

	done := make(chan struct{})
	go func() {
		runner.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("all tasks stopped")
	case <-shutdownCtx.Done():
		log.Warn().Strs("tasks", a.tasks.List()).Msg("shutdown timeout, forcing exit")
	}
	return nil
}

func (a *app) background(ctx context.Context, runner *tasks.Runner, name string, job tasks.Job) error {
	return runner.Go(ctx, name, job, nil, func(err error) {
		if err != nil && !errors.Is(err, context.Canceled) {
			a.mw.ErrorsTotal().Inc()
		}
	})
}

func (a *app) metricsServer(agg *status.Aggregator) *http.Server {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(agg.Summary(req.Context())))
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", a.c.MetricsPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
