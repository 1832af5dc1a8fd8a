package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
)

// Advanced holds trade-quality and robustness statistics.
type Advanced struct {
	ExpectancyPct    float64         `json:"expectancy_pct"`
	ExpectancyAmount decimal.Decimal `json:"expectancy_amount"`
	PayoffRatio      float64         `json:"payoff_ratio"`
	KellyFraction    float64         `json:"kelly_fraction"`
	SQN              float64         `json:"sqn"`

	WinStreaks  []StreakCount `json:"win_streaks"`
	LossStreaks []StreakCount `json:"loss_streaks"`

	HoldingPeriods  []HoldingBucket  `json:"holding_periods"`
	TimeInMarketPct float64          `json:"time_in_market_pct"`
	Drawdown        DrawdownRecovery `json:"drawdown"`

	// DeflatedSharpe is the probability that the true Sharpe ratio is
	// above the best expected from Trials random configurations.
	DeflatedSharpe float64 `json:"deflated_sharpe"`
}

// StreakCount is how many streaks of Length consecutive outcomes occurred.
type StreakCount struct {
	Length int `json:"length"`
	Count  int `json:"count"`
}

// HoldingBucket summarizes trades by holding period.
type HoldingBucket struct {
	Label     string  `json:"label"`
	Trades    int     `json:"trades"`
	WinRate   float64 `json:"win_rate"`
	AvgPnLPct float64 `json:"avg_pnl_pct"`
}

// DrawdownRecovery times the deepest drawdown of the equity curve.
type DrawdownRecovery struct {
	MaxDrawdownPct        float64    `json:"max_drawdown_pct"`
	PeakDate              time.Time  `json:"peak_date"`
	TroughDate            time.Time  `json:"trough_date"`
	RecoveryDate          *time.Time `json:"recovery_date,omitempty"`
	DaysToTrough          int        `json:"days_to_trough"`
	DaysToRecover         *int       `json:"days_to_recover,omitempty"`
	LongestUnderwaterDays int        `json:"longest_underwater_days"`
}

var holdingBuckets = []struct {
	label string
	upTo  int // inclusive, zero is unbounded
}{
	{"0-1d", 1},
	{"2-5d", 5},
	{"6-20d", 20},
	{"21-60d", 60},
	{">60d", 0},
}

// ComputeAdvanced returns nil with fewer than five trades.
func ComputeAdvanced(in Input, m Metrics, returns []float64) *Advanced {
	if len(in.Trades) < minAdvancedTrades {
		return nil
	}
	adv := &Advanced{TimeInMarketPct: m.ExposurePct}

	winRate := m.WinRate / 100
	avgLoss := math.Abs(m.AvgLossPct)
	adv.ExpectancyPct = winRate*m.AvgWinPct - (1-winRate)*avgLoss

	total := decimal.Zero
	pcts := make([]float64, len(in.Trades))
	for i, t := range in.Trades {
		total = total.Add(t.PnL)
		pcts[i] = t.PnLPct
	}
	adv.ExpectancyAmount = total.Div(decimal.NewFromInt(int64(len(in.Trades))))

	if avgLoss > 0 {
		adv.PayoffRatio = m.AvgWinPct / avgLoss
		if adv.PayoffRatio > 0 {
			adv.KellyFraction = winRate - (1-winRate)/adv.PayoffRatio
		}
	}
	if sd := computeStddev(pcts, computeMean(pcts)); sd > 0 {
		adv.SQN = math.Sqrt(float64(len(pcts))) * computeMean(pcts) / sd
	}

	adv.WinStreaks, adv.LossStreaks = streakDistribution(in.Trades)
	adv.HoldingPeriods = payoffByHolding(in.Trades)
	adv.Drawdown = drawdownRecovery(in.EquityCurve)
	adv.DeflatedSharpe = deflatedSharpe(returns, in.Trials)
	return adv
}

func streakDistribution(trades []domain.Trade) (wins, losses []StreakCount) {
	winCounts := map[int]int{}
	lossCounts := map[int]int{}
	run := 0
	lastWin := false
	flush := func() {
		if run == 0 {
			return
		}
		if lastWin {
			winCounts[run]++
		} else {
			lossCounts[run]++
		}
	}
	for i, t := range trades {
		w := t.IsWin()
		if i > 0 && w != lastWin {
			flush()
			run = 0
		}
		lastWin = w
		run++
	}
	flush()
	return toStreaks(winCounts), toStreaks(lossCounts)
}

func toStreaks(counts map[int]int) []StreakCount {
	out := make([]StreakCount, 0, len(counts))
	for l, c := range counts {
		out = append(out, StreakCount{Length: l, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Length < out[j].Length })
	return out
}

func payoffByHolding(trades []domain.Trade) []HoldingBucket {
	type acc struct {
		n, wins int
		sum     float64
	}
	accs := make([]acc, len(holdingBuckets))
	for _, t := range trades {
		for i, b := range holdingBuckets {
			if b.upTo == 0 || t.HoldingDays <= b.upTo {
				accs[i].n++
				accs[i].sum += t.PnLPct
				if t.IsWin() {
					accs[i].wins++
				}
				break
			}
		}
	}
	var out []HoldingBucket
	for i, a := range accs {
		if a.n == 0 {
			continue
		}
		out = append(out, HoldingBucket{
			Label:     holdingBuckets[i].label,
			Trades:    a.n,
			WinRate:   float64(a.wins) / float64(a.n) * 100,
			AvgPnLPct: a.sum / float64(a.n),
		})
	}
	return out
}

func drawdownRecovery(curve []domain.EquityPoint) DrawdownRecovery {
	var dr DrawdownRecovery
	if len(curve) == 0 {
		return dr
	}

	peakIdx := 0
	peak := domain.Float(curve[0].Equity)
	var worstPeak, worstTrough int
	underwaterStart := -1

	for i, p := range curve {
		eq := domain.Float(p.Equity)
		if eq >= peak {
			if underwaterStart >= 0 {
				dr.LongestUnderwaterDays = max(dr.LongestUnderwaterDays, days(curve[underwaterStart].Date, p.Date))
				underwaterStart = -1
			}
			peak = eq
			peakIdx = i
			continue
		}
		if underwaterStart < 0 {
			underwaterStart = peakIdx
		}
		if dd := (peak - eq) / peak * 100; peak > 0 && dd > dr.MaxDrawdownPct {
			dr.MaxDrawdownPct = dd
			worstPeak, worstTrough = peakIdx, i
		}
	}
	if underwaterStart >= 0 {
		dr.LongestUnderwaterDays = max(dr.LongestUnderwaterDays, days(curve[underwaterStart].Date, curve[len(curve)-1].Date))
	}
	if dr.MaxDrawdownPct == 0 {
		return dr
	}

	dr.PeakDate = curve[worstPeak].Date
	dr.TroughDate = curve[worstTrough].Date
	dr.DaysToTrough = days(dr.PeakDate, dr.TroughDate)
	peakEq := domain.Float(curve[worstPeak].Equity)
	for i := worstTrough + 1; i < len(curve); i++ {
		if domain.Float(curve[i].Equity) >= peakEq {
			d := curve[i].Date
			n := days(dr.TroughDate, d)
			dr.RecoveryDate = &d
			dr.DaysToRecover = &n
			break
		}
	}
	return dr
}

func days(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// deflatedSharpe is the probabilistic Sharpe ratio of the daily returns
// against the expected maximum Sharpe of trials independent attempts,
// corrected for skew and kurtosis.
func deflatedSharpe(returns []float64, trials int) float64 {
	n := len(returns)
	if n < 3 {
		return 0
	}
	m := computeMean(returns)
	sd := computeStddev(returns, m)
	if sd == 0 {
		return 0
	}
	sr := m / sd
	skew := computeSkewness(returns)
	kurt := computeExcessKurtosis(returns) + 3

	benchmark := 0.0
	if trials > 1 {
		const euler = 0.5772156649015329
		nt := float64(trials)
		srStd := math.Sqrt(1 / float64(n-1))
		benchmark = srStd * ((1-euler)*normInv(1-1/nt) + euler*normInv(1-1/(nt*math.E)))
	}

	denom := 1 - skew*sr + (kurt-1)/4*sr*sr
	if denom <= 0 {
		return 0
	}
	return finite(normCDF((sr - benchmark) * math.Sqrt(float64(n-1)) / math.Sqrt(denom)))
}
