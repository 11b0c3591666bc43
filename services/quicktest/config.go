package quicktest

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"logicflow/pkg/apperr"
)

const dateLayout = "2006-01-02"

var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,14}$`)

var frequencies = map[string]bool{"1m": true, "5m": true, "15m": true, "1h": true, "1d": true}

// Defaults fills the parts of an ExecutionConfig a quick test request leaves out.
type Defaults struct {
	InitialCapital decimal.Decimal
	CommissionRate decimal.Decimal
	Slippage       decimal.Decimal
	Lookback       time.Duration
	Frequency      string
	Benchmark      string
}

// DefaultDefaults returns the built-in quick test defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		InitialCapital: decimal.NewFromInt(100_000),
		CommissionRate: decimal.RequireFromString("0.001"),
		Slippage:       decimal.RequireFromString("0.0005"),
		Lookback:       90 * 24 * time.Hour,
		Frequency:      "1d",
		Benchmark:      "SPY",
	}
}

// BuildConfig maps a simplified request to a full execution configuration.
// The range ends no later than now and spans at most one year.
func BuildConfig(req QuickTestRequest, d Defaults, now time.Time) (ExecutionConfig, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return ExecutionConfig{}, apperr.Invalid("symbol is required")
	}
	if !symbolPattern.MatchString(symbol) {
		return ExecutionConfig{}, apperr.Invalid("symbol %q is not valid", req.Symbol)
	}

	today := now.UTC().Truncate(24 * time.Hour)
	end := today
	if req.EndDate != "" {
		t, err := time.Parse(dateLayout, req.EndDate)
		if err != nil {
			return ExecutionConfig{}, apperr.Invalid("end_date must be YYYY-MM-DD")
		}
		end = t
	}
	if end.After(today) {
		return ExecutionConfig{}, apperr.Invalid("end_date is in the future")
	}

	start := end.Add(-d.Lookback)
	if req.StartDate != "" {
		t, err := time.Parse(dateLayout, req.StartDate)
		if err != nil {
			return ExecutionConfig{}, apperr.Invalid("start_date must be YYYY-MM-DD")
		}
		start = t
	}
	if !start.Before(end) {
		return ExecutionConfig{}, apperr.Invalid("start_date must be before end_date")
	}
	if end.After(start.AddDate(1, 0, 0)) {
		return ExecutionConfig{}, apperr.Invalid("quick test range may not exceed one year")
	}

	capital := d.InitialCapital
	if req.InitialCapital.Valid {
		capital = req.InitialCapital.Decimal
	}
	if !capital.IsPositive() {
		return ExecutionConfig{}, apperr.Invalid("initial_capital must be positive")
	}

	frequency := d.Frequency
	if req.Frequency != "" {
		frequency = req.Frequency
	}
	if !frequencies[frequency] {
		return ExecutionConfig{}, apperr.Invalid("frequency %q is not supported", frequency)
	}

	return ExecutionConfig{
		Symbols:        []string{symbol},
		StartDate:      start,
		EndDate:        end,
		InitialCapital: capital,
		CommissionRate: d.CommissionRate,
		Slippage:       d.Slippage,
		Frequency:      frequency,
		Benchmark:      d.Benchmark,
		Quick:          true,
	}, nil
}
