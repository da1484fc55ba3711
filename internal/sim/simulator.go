package sim

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Result is the outcome of a simulation run.
type Result struct {
	Steps       int
	TotalReward float64
	Entries     int
	Exits       int
	FinalEquity float64
	Performance Performance
}

// Simulator replays an Env with a Decider and records every step.
type Simulator struct {
	Env     *Env
	Decider Decider
	LogPath string
}

// Run plays the environment to the end, then writes the log when LogPath is
// set.
func (s *Simulator) Run(ctx context.Context) (Result, []LogRow, error) {
	obs := s.Env.Reset()
	var (
		rows    []LogRow
		res     Result
		holding bool
		total   float64
	)

	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			return res, rows, err
		}

		price := s.Env.Price()
		action := s.Decider.Decide(obs)

		var reward float64
		var done bool
		obs, reward, done = s.Env.Step(action)
		total += reward

		switch {
		case action == Buy && !holding:
			res.Entries++
			holding = true
		case action == Sell && holding:
			res.Exits++
			holding = false
		}

		rows = append(rows, LogRow{Step: step, Reward: reward, TotalReward: total, Price: price})
		res.FinalEquity = reward

		if done {
			break
		}
	}

	res.Steps = len(rows)
	res.TotalReward = total
	res.Performance, _ = ComputePerformance(rows)

	if s.LogPath != "" {
		if err := WriteLog(s.LogPath, rows); err != nil {
			return res, rows, fmt.Errorf("save simulation log: %w", err)
		}
		log.Info().Str("file", s.LogPath).Int("rows", len(rows)).Msg("Simulation log saved")
	}

	log.Info().
		Int("steps", res.Steps).
		Int("entries", res.Entries).
		Int("exits", res.Exits).
		Float64("final_equity", res.FinalEquity).
		Msg("Simulation completed")
	return res, rows, nil
}

// Report renders the performance block of the status summary.
func (p Performance) Report() string {
	return p.render(p.Sharpe)
}

// RunReport is the block printed after a simulation run; its Sharpe ratio
// is annualised over 252 periods.
func (p Performance) RunReport() string {
	return p.render(p.AnnualSharpe)
}

func (p Performance) render(sharpe float64) string {
	return fmt.Sprintf("Simulation Performance Metrics:\n"+
		"Total Return: %.2f\n"+
		"Win Rate: %.2f%%\n"+
		"Max Drawdown: %.2f\n"+
		"Volatility: %.4f\n"+
		"Sharpe Ratio: %.2f",
		p.TotalReturn, p.WinRate, p.MaxDrawdown, p.Volatility, sharpe)
}
