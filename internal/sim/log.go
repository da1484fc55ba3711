package sim

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

var logHeader = []string{"step", "reward", "total_reward", "price"}

// LogRow is one line of simulation_log.csv.
type LogRow struct {
	Step        int
	Reward      float64
	TotalReward float64
	Price       float64
}

// WriteLog writes rows with a header line, replacing any existing file.
func WriteLog(path string, rows []LogRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create simulation log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(logHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.Itoa(r.Step),
			strconv.FormatFloat(r.Reward, 'f', -1, 64),
			strconv.FormatFloat(r.TotalReward, 'f', -1, 64),
			strconv.FormatFloat(r.Price, 'f', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write simulation log: %w", err)
	}
	return f.Close()
}

// ReadLog parses a simulation log. Columns are located by header name so
// extra columns are tolerated.
func ReadLog(path string) ([]LogRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: no header", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, col := range logHeader {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, col)
		}
	}

	var rows []LogRow
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		var row LogRow
		if row.Step, err = strconv.Atoi(rec[idx["step"]]); err != nil {
			return nil, fmt.Errorf("%s:%d: step: %w", path, line, err)
		}
		if row.Reward, err = strconv.ParseFloat(rec[idx["reward"]], 64); err != nil {
			return nil, fmt.Errorf("%s:%d: reward: %w", path, line, err)
		}
		if row.TotalReward, err = strconv.ParseFloat(rec[idx["total_reward"]], 64); err != nil {
			return nil, fmt.Errorf("%s:%d: total_reward: %w", path, line, err)
		}
		if row.Price, err = strconv.ParseFloat(rec[idx["price"]], 64); err != nil {
			return nil, fmt.Errorf("%s:%d: price: %w", path, line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Performance summarises a simulation log.
type Performance struct {
	TotalReturn float64 // last total_reward, 2dp
	WinRate     float64 // percent of steps with positive reward, 2dp
	MaxDrawdown float64 // largest fall of total_reward from its running max, 2dp
	Volatility  float64 // sample std of reward, 4dp
	Sharpe      float64 // mean/(std+1e-8) of reward, 2dp

	// AnnualSharpe is mean/(std+1e-9)*sqrt(252), the figure reported after
	// a simulation run.
	AnnualSharpe float64
}

// ComputePerformance returns false for an empty log. With a single row the
// sample std is undefined and reported as 0.
func ComputePerformance(rows []LogRow) (Performance, bool) {
	n := len(rows)
	if n == 0 {
		return Performance{}, false
	}

	var wins int
	var sum float64
	peak := math.Inf(-1)
	maxDD := 0.0
	for _, r := range rows {
		if r.Reward > 0 {
			wins++
		}
		sum += r.Reward
		if r.TotalReward > peak {
			peak = r.TotalReward
		}
		if dd := peak - r.TotalReward; dd > maxDD {
			maxDD = dd
		}
	}
	mean := sum / float64(n)

	std := 0.0
	if n > 1 {
		var ss float64
		for _, r := range rows {
			d := r.Reward - mean
			ss += d * d
		}
		std = math.Sqrt(ss / float64(n-1))
	}

	return Performance{
		TotalReturn: round(rows[n-1].TotalReward, 2),
		WinRate:     round(100*float64(wins)/float64(n), 2),
		MaxDrawdown: round(maxDD, 2),
		Volatility:  round(std, 4),
		Sharpe:      round(mean/(std+1e-8), 2),

		AnnualSharpe: round(mean/(std+1e-9)*math.Sqrt(252), 2),
	}, true
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
