package optimizer

import (
	"math"

	"prebidOptimizer/domain"

	"gonum.org/v1/gonum/stat"
)

type hourStats struct {
	count int
	sum   float64
}

func (h hourStats) mean() float64 {
	if h.count == 0 {
		return 0
	}
	return h.sum / float64(h.count)
}

// partition indexes a window's observations by action and hour in one pass.
type partition struct {
	numHours int
	// byAction[action][hour] holds the rows served with that action.
	byAction [][][]domain.Observation
	// hours aggregates every in-range row, matched or not.
	hours   []hourStats
	rows    int
	wins    int
	dropped int
}

// add records an observation in the hour aggregates. It reports false for
// rows outside the window.
func (p *partition) add(o domain.Observation) bool {
	if o.AuctionHour < 0 || o.AuctionHour >= p.numHours {
		p.dropped++
		return false
	}
	p.rows++
	if o.Win {
		p.wins++
	}
	h := &p.hours[o.AuctionHour]
	h.count++
	h.sum += o.PubRev
	return true
}

// summarize reports the latest-hour counts of one action. Log-revenue moments
// are only filled in when there are more than minWins winners.
func summarize(rows []domain.Observation, minWins int) domain.ActionResult {
	trials := len(rows)
	logRev := make([]float64, 0, len(rows))
	for _, o := range rows {
		if o.Win {
			logRev = append(logRev, math.Log(o.PubRev+1))
		}
	}
	wins := len(logRev)

	res := domain.ActionResult{NumTrials: &trials, NumWins: &wins}
	if wins > minWins {
		mean, std := stat.MeanStdDev(logRev, nil)
		res.LogPubrevMean = &mean
		res.LogPubrevStd = &std
	}
	return res
}
