package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopledger/coopledger/internal/domain"
)

func TestPolicy_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coopledger.yaml")
	original := DefaultPolicy("Bread & Roses Bakery")
	original.Allocation.MinContribution = decimal.RequireFromString("50")
	original.Tax.Categories = map[string]TaxValueRule{"equipment": TaxValueProvided}
	original.Close.RequiredAccruals = []string{"5010"}

	require.NoError(t, SavePolicy(path, original))

	loaded, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, "Bread & Roses Bakery", loaded.Cooperative.Name)
	assert.Equal(t, domain.FormulaWeighted, loaded.Allocation.Formula.Kind)
	assert.True(t, loaded.Allocation.Formula.Weights["hours"].Equal(decimal.RequireFromString("0.6")))
	assert.True(t, loaded.Allocation.Formula.Weights["purchases"].Equal(decimal.RequireFromString("0.4")))
	assert.True(t, loaded.Allocation.MinContribution.Equal(decimal.RequireFromString("50")))
	assert.Equal(t, TaxValueProvided, loaded.Tax.Categories["equipment"])
	assert.Equal(t, "yearly", loaded.Close.Cadence)
	assert.True(t, loaded.Close.AutoOpenNext)
	assert.Equal(t, []string{"5010"}, loaded.Close.RequiredAccruals)
}

func TestLoadPolicy_ParsesHandWrittenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coopledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cooperative:
  name: Test Grocery Co-op
  fiscal_year_start: "07-01"
allocation:
  formula:
    kind: SINGLE_CATEGORY
    category: purchases
  max_share_pct: "0.4"
tax:
  default: mirror
  categories:
    goodwill: zero
close:
  cadence: quarterly
  auto_open_next: true
  required_accruals:
    - "5010"
`), 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, domain.FormulaSingleCategory, p.Allocation.Formula.Kind)
	assert.Equal(t, "purchases", p.Allocation.Formula.Category)
	assert.True(t, p.Allocation.MaxSharePct.Equal(decimal.RequireFromString("0.4")))
	assert.Equal(t, TaxValueZero, p.Tax.Categories["goodwill"])
	assert.Equal(t, "quarterly", p.Close.Cadence)
}

func TestLoadPolicy_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadPolicy(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading policy")

	garbled := filepath.Join(dir, "garbled.yaml")
	require.NoError(t, os.WriteFile(garbled, []byte("close: [not: a: mapping"), 0o644))
	_, err = LoadPolicy(garbled)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing policy")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte(`
allocation:
  formula:
    kind: EQUAL
close:
  cadence: fortnightly
`), 0o644))
	_, err = LoadPolicy(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid policy")
}

func TestPolicy_Validate(t *testing.T) {
	valid := func() *Policy { return DefaultPolicy("test") }

	tests := []struct {
		name    string
		mutate  func(*Policy)
		wantErr string
	}{
		{
			name:   "default policy is valid",
			mutate: func(*Policy) {},
		},
		{
			name: "weighted formula needs weights",
			mutate: func(p *Policy) {
				p.Allocation.Formula.Weights = nil
			},
			wantErr: "at least one category weight",
		},
		{
			name: "weights must sum to one",
			mutate: func(p *Policy) {
				p.Allocation.Formula.Weights = map[string]decimal.Decimal{
					"hours": decimal.RequireFromString("0.5"),
				}
			},
			wantErr: "sum to 1.0",
		},
		{
			name: "negative minimum contribution",
			mutate: func(p *Policy) {
				p.Allocation.MinContribution = decimal.RequireFromString("-1")
			},
			wantErr: "min_contribution",
		},
		{
			name: "max share of one is no cap at all",
			mutate: func(p *Policy) {
				p.Allocation.MaxSharePct = decimal.NewFromInt(1)
			},
			wantErr: "max_share_pct",
		},
		{
			name: "unknown cadence",
			mutate: func(p *Policy) {
				p.Close.Cadence = "biweekly"
			},
			wantErr: "close.cadence",
		},
		{
			name: "unknown tax rule",
			mutate: func(p *Policy) {
				p.Tax.Categories = map[string]TaxValueRule{"land": "appraise"}
			},
			wantErr: "tax rule",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := valid()
			tc.mutate(p)
			err := p.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestTaxConfig_Rule(t *testing.T) {
	cfg := TaxConfig{
		Default:    TaxValueZero,
		Categories: map[string]TaxValueRule{"property": TaxValueProvided},
	}
	assert.Equal(t, TaxValueProvided, cfg.Rule("property"), "the category override wins")
	assert.Equal(t, TaxValueZero, cfg.Rule("cash"))
	assert.Equal(t, TaxValueMirror, TaxConfig{}.Rule("anything"), "mirror is the fallback of fallbacks")
}
