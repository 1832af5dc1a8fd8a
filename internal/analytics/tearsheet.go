package analytics

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(26)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	gainStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Tone colors a tear sheet value.
type Tone int

const (
	ToneNeutral Tone = iota
	ToneGood
	ToneBad
)

// Row is one labeled value.
type Row struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Tone  Tone   `json:"tone"`
}

// Section is a titled group of rows.
type Section struct {
	Title string `json:"title"`
	Rows  []Row  `json:"rows"`
}

// Header identifies the run a tear sheet describes.
type Header struct {
	Name           string
	Symbols        []string
	Start, End     time.Time
	InitialCapital decimal.Decimal
	FinalEquity    decimal.Decimal
}

// TearSheet is the consolidated summary of a run.
type TearSheet struct {
	Title    string    `json:"title"`
	Period   string    `json:"period"`
	Sections []Section `json:"sections"`
}

func toneOf(v float64) Tone {
	switch {
	case v > 0:
		return ToneGood
	case v < 0:
		return ToneBad
	default:
		return ToneNeutral
	}
}

// NewTearSheet assembles the summary from every available report section.
func NewTearSheet(h Header, r *Report) *TearSheet {
	ts := &TearSheet{
		Title:  fmt.Sprintf("%s [%s]", h.Name, strings.Join(h.Symbols, ", ")),
		Period: fmt.Sprintf("%s to %s", h.Start.Format(time.DateOnly), h.End.Format(time.DateOnly)),
	}
	m := r.Metrics

	ts.Sections = append(ts.Sections, Section{Title: "Performance", Rows: []Row{
		{"Initial capital", FormatMoney(h.InitialCapital), ToneNeutral},
		{"Final equity", FormatMoney(h.FinalEquity), toneOf(m.TotalReturnPct)},
		{"Total return", FormatPct(m.TotalReturnPct), toneOf(m.TotalReturnPct)},
		{"Annualized return", FormatPct(m.AnnualizedReturnPct), toneOf(m.AnnualizedReturnPct)},
		{"Volatility (ann.)", FormatFloat(m.VolatilityPct) + "%", ToneNeutral},
		{"Exposure", FormatFloat(m.ExposurePct) + "%", ToneNeutral},
	}})

	ts.Sections = append(ts.Sections, Section{Title: "Risk", Rows: []Row{
		{"Sharpe ratio", FormatFloat(m.SharpeRatio), toneOf(m.SharpeRatio)},
		{"Sortino ratio", FormatRatio(m.SortinoRatio), ToneNeutral},
		{"Calmar ratio", FormatFloat(m.CalmarRatio), toneOf(m.CalmarRatio)},
		{"Max drawdown", FormatPct(-m.MaxDrawdownPct), toneOf(-m.MaxDrawdownPct)},
		{"Recovery factor", FormatFloat(m.RecoveryFactor), toneOf(m.RecoveryFactor)},
	}})

	ts.Sections = append(ts.Sections, Section{Title: "Trades", Rows: []Row{
		{"Total trades", FormatCount(m.TotalTrades), ToneNeutral},
		{"Win rate", FormatFloat(m.WinRate) + "%", ToneNeutral},
		{"Profit factor", FormatRatio(m.ProfitFactor), ToneNeutral},
		{"Average trade", FormatPct(m.AvgTradePct), toneOf(m.AvgTradePct)},
		{"Average win / loss", FormatPct(m.AvgWinPct) + " / " + FormatPct(m.AvgLossPct), ToneNeutral},
		{"Largest win", FormatMoney(m.LargestWin), ToneGood},
		{"Largest loss", FormatMoney(m.LargestLoss), ToneBad},
		{"Max consecutive wins", FormatCount(m.MaxConsecutiveWins), ToneNeutral},
		{"Max consecutive losses", FormatCount(m.MaxConsecutiveLosses), ToneNeutral},
		{"Avg holding days", FormatFloat(m.AvgHoldingDays), ToneNeutral},
		{"Commission paid", FormatMoney(m.TotalCommission), ToneNeutral},
		{"Slippage paid", FormatMoney(m.TotalSlippage), ToneNeutral},
	}})

	if b := r.Benchmark; b != nil {
		rows := []Row{
			{"Buy & hold " + b.Symbol, FormatPct(b.BuyHoldReturnPct), toneOf(b.BuyHoldReturnPct)},
			{"Alpha vs buy & hold", FormatPct(b.AlphaPct), toneOf(b.AlphaPct)},
		}
		if x := b.External; x != nil {
			rows = append(rows,
				Row{"Benchmark return", FormatPct(x.ReturnPct), toneOf(x.ReturnPct)},
				Row{"Alpha vs benchmark", FormatPct(x.AlphaPct), toneOf(x.AlphaPct)},
				Row{"Beta", FormatFloat(x.Beta), ToneNeutral},
				Row{"Correlation", FormatFloat(x.Correlation), ToneNeutral},
				Row{"Tracking error", FormatFloat(x.TrackingErrorPct) + "%", ToneNeutral},
				Row{"Information ratio", FormatFloat(x.InformationRatio), toneOf(x.InformationRatio)},
			)
		}
		ts.Sections = append(ts.Sections, Section{Title: "Benchmark", Rows: rows})
	}

	if len(r.BySymbol) > 0 {
		var rows []Row
		for _, s := range r.BySymbol {
			rows = append(rows, Row{
				Label: s.Symbol,
				Value: fmt.Sprintf("%s  %d trades  %.1f%% win", FormatMoney(s.NetPnL), s.Trades, s.WinRate),
				Tone:  toneOf(s.NetPnL.InexactFloat64()),
			})
		}
		ts.Sections = append(ts.Sections, Section{Title: "By symbol", Rows: rows})
	}

	if x := r.Extended; x != nil {
		rows := []Row{
			{"Skewness", FormatFloat(x.Skewness), ToneNeutral},
			{"Excess kurtosis", FormatFloat(x.ExcessKurtosis), ToneNeutral},
			{"VaR 95% (daily)", FormatFloat(x.VaR95) + "%", ToneNeutral},
			{"CVaR 95% (daily)", FormatFloat(x.CVaR95) + "%", ToneNeutral},
			{"Cornish-Fisher VaR 95%", FormatFloat(x.CornishFisherVaR95) + "%", ToneNeutral},
			{"Omega ratio", FormatRatio(x.OmegaRatio), ToneNeutral},
			{"Tail ratio", FormatFloat(x.TailRatio), ToneNeutral},
		}
		if a := x.Attribution; a != nil {
			rows = append(rows,
				Row{"Market contribution", FormatPct(a.MarketReturnPct), toneOf(a.MarketReturnPct)},
				Row{"Selection contribution", FormatPct(a.SelectionReturnPct), toneOf(a.SelectionReturnPct)},
				Row{"R squared", FormatFloat(a.RSquared), ToneNeutral},
			)
		}
		if bs := x.Bootstrap; bs != nil {
			rows = append(rows,
				Row{"Mean trade 95% CI", FormatPct(bs.MeanTradePct.Lower) + " .. " + FormatPct(bs.MeanTradePct.Upper), ToneNeutral},
				Row{"Win rate 95% CI", FormatFloat(bs.WinRate.Lower) + "% .. " + FormatFloat(bs.WinRate.Upper) + "%", ToneNeutral},
			)
		}
		ts.Sections = append(ts.Sections, Section{Title: "Distribution", Rows: rows})
	}

	if a := r.Advanced; a != nil {
		rows := []Row{
			{"Expectancy", FormatPct(a.ExpectancyPct), toneOf(a.ExpectancyPct)},
			{"Expectancy per trade", FormatMoney(a.ExpectancyAmount), toneOf(a.ExpectancyAmount.InexactFloat64())},
			{"Payoff ratio", FormatFloat(a.PayoffRatio), ToneNeutral},
			{"Kelly fraction", FormatFloat(a.KellyFraction), ToneNeutral},
			{"SQN", FormatFloat(a.SQN), toneOf(a.SQN)},
			{"Deflated Sharpe", FormatFloat(a.DeflatedSharpe), ToneNeutral},
			{"Longest underwater", fmt.Sprintf("%d days", a.Drawdown.LongestUnderwaterDays), ToneNeutral},
		}
		if a.Drawdown.DaysToRecover != nil {
			rows = append(rows, Row{"Days to recover", fmt.Sprintf("%d", *a.Drawdown.DaysToRecover), ToneNeutral})
		}
		ts.Sections = append(ts.Sections, Section{Title: "Trade quality", Rows: rows})
	}
	return ts
}

// Render writes the tear sheet as styled text.
func (ts *TearSheet) Render(w io.Writer) error {
	var b strings.Builder
	b.WriteString(titleStyle.Render(" " + ts.Title + " "))
	b.WriteString("\n")
	b.WriteString(ts.Period)
	b.WriteString("\n")
	for _, s := range ts.Sections {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render(s.Title))
		b.WriteString("\n")
		for _, r := range s.Rows {
			style := valueStyle
			switch r.Tone {
			case ToneGood:
				style = gainStyle
			case ToneBad:
				style = lossStyle
			}
			b.WriteString("  ")
			b.WriteString(labelStyle.Render(r.Label))
			b.WriteString(style.Render(r.Value))
			b.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
