// Package status renders the operator status report.
package status

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bybit-trader/internal/sim"
	"bybit-trader/internal/storage"

	"github.com/rs/zerolog/log"
)

const timeLayout = "2006-01-02 15:04:05"

// MarketStats is the part of the OHLCV store the report reads.
type MarketStats interface {
	Count(ctx context.Context) (int64, error)
	LatestTimestamp(ctx context.Context) (int64, bool, error)
}

type Lister interface {
	List() []string
}

type JournalStats interface {
	Counts() (storage.Counts, error)
}

// Aggregator collects market-data, simulation and task state. Tasks and
// Journal are optional.
type Aggregator struct {
	Market     MarketStats
	SimLogPath string
	Tasks      Lister
	Journal    JournalStats
	Location   *time.Location
}

// Summary never fails: collection errors are rendered into the text.
func (a *Aggregator) Summary(ctx context.Context) string {
	var b strings.Builder

	if err := a.writeMarket(ctx, &b); err != nil {
		log.Error().Err(err).Str("stage", "status").Msg("status failed")
		return fmt.Sprintf("Error while fetching status: %v", err)
	}

	b.WriteString("\n\n")
	a.writePerformance(&b)

	if a.Journal != nil {
		c, err := a.Journal.Counts()
		if err != nil {
			log.Warn().Err(err).Str("stage", "status").Msg("journal counts unavailable")
			fmt.Fprintf(&b, "\n\nCould not load trade journal: %v", err)
		} else {
			fmt.Fprintf(&b, "\n\nTrades opened: %d\nTrades closed: %d\nNet PnL: %.2f USDT", c.Opened, c.Closed, c.NetPnL)
		}
	}

	if a.Tasks != nil {
		if names := a.Tasks.List(); len(names) > 0 {
			fmt.Fprintf(&b, "\n\nActive tasks: %s", strings.Join(names, ", "))
		}
	}

	return b.String()
}

func (a *Aggregator) writeMarket(ctx context.Context, b *strings.Builder) error {
	rows, err := a.Market.Count(ctx)
	if err != nil {
		return err
	}
	ts, ok, err := a.Market.LatestTimestamp(ctx)
	if err != nil {
		return err
	}

	last := "N/A"
	if ok {
		loc := a.Location
		if loc == nil {
			loc = time.UTC
		}
		last = time.UnixMilli(ts).In(loc).Format(timeLayout)
	}
	fmt.Fprintf(b, "Status:\nRows in DB: %d\nLast data: %s", rows, last)
	return nil
}

func (a *Aggregator) writePerformance(b *strings.Builder) {
	rows, err := sim.ReadLog(a.SimLogPath)
	if err != nil {
		log.Warn().Err(err).Str("stage", "status").Str("file", a.SimLogPath).Msg("simulation log unavailable")
		fmt.Fprintf(b, "Could not load performance metrics: %v", err)
		return
	}
	p, ok := sim.ComputePerformance(rows)
	if !ok {
		b.WriteString("No simulation data yet.")
		return
	}
	b.WriteString(p.Report())
}
