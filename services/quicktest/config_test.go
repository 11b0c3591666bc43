package quicktest

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logicflow/pkg/apperr"
)

var fixedNow = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

func date(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func capital(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func TestBuildConfig_Defaults(t *testing.T) {
	cfg, err := BuildConfig(QuickTestRequest{Symbol: " aapl "}, DefaultDefaults(), fixedNow)

	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, cfg.Symbols)
	assert.Equal(t, date("2026-03-10"), cfg.EndDate)
	assert.Equal(t, date("2025-12-10"), cfg.StartDate)
	assert.True(t, cfg.InitialCapital.Equal(decimal.NewFromInt(100000)))
	assert.True(t, cfg.CommissionRate.Equal(decimal.RequireFromString("0.001")))
	assert.Equal(t, "1d", cfg.Frequency)
	assert.Equal(t, "SPY", cfg.Benchmark)
	assert.True(t, cfg.Quick)
}

func TestBuildConfig_Explicit(t *testing.T) {
	cfg, err := BuildConfig(QuickTestRequest{
		Symbol:         "BRK.B",
		StartDate:      "2025-01-01",
		EndDate:        "2026-01-01",
		InitialCapital: capital("2500.50"),
		Frequency:      "1h",
	}, DefaultDefaults(), fixedNow)

	require.NoError(t, err)
	assert.Equal(t, []string{"BRK.B"}, cfg.Symbols)
	assert.Equal(t, date("2025-01-01"), cfg.StartDate)
	assert.Equal(t, date("2026-01-01"), cfg.EndDate)
	assert.Equal(t, "2500.5", cfg.InitialCapital.String())
	assert.Equal(t, "1h", cfg.Frequency)
}

func TestBuildConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		req     QuickTestRequest
		wantErr string
	}{
		{"missing symbol", QuickTestRequest{}, "symbol is required"},
		{"bad symbol", QuickTestRequest{Symbol: "AAPL; DROP"}, "not valid"},
		{"bad end date", QuickTestRequest{Symbol: "AAPL", EndDate: "03/01/2026"}, "end_date"},
		{"bad start date", QuickTestRequest{Symbol: "AAPL", StartDate: "yesterday"}, "start_date"},
		{"future end", QuickTestRequest{Symbol: "AAPL", EndDate: "2026-03-11"}, "future"},
		{"start after end", QuickTestRequest{Symbol: "AAPL", StartDate: "2026-02-01", EndDate: "2026-01-01"}, "before end_date"},
		{"range too long", QuickTestRequest{Symbol: "AAPL", StartDate: "2024-12-31", EndDate: "2026-01-01"}, "one year"},
		{"zero capital", QuickTestRequest{Symbol: "AAPL", InitialCapital: capital("0")}, "positive"},
		{"negative capital", QuickTestRequest{Symbol: "AAPL", InitialCapital: capital("-10")}, "positive"},
		{"frequency", QuickTestRequest{Symbol: "AAPL", Frequency: "2d"}, "not supported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildConfig(tt.req, DefaultDefaults(), fixedNow)

			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrInvalid))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
