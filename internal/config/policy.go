package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/coopledger/coopledger/internal/domain"
)

// TaxValueRule decides how the tax value of a contribution is determined
// when the feed event does not provide one.
type TaxValueRule string

const (
	// TaxValueMirror uses the book value as the tax value.
	TaxValueMirror TaxValueRule = "mirror"
	// TaxValueZero treats the contribution as having zero tax basis.
	TaxValueZero TaxValueRule = "zero"
	// TaxValueProvided requires the event to carry an explicit tax value.
	TaxValueProvided TaxValueRule = "provided"
)

// Policy represents the top-level coopledger.yaml policy file: the choices
// a cooperative's bylaws make about allocation, tax treatment, and period
// cadence.
type Policy struct {
	Cooperative CooperativeConfig `yaml:"cooperative"`
	Allocation  AllocationConfig  `yaml:"allocation"`
	Tax         TaxConfig         `yaml:"tax"`
	Close       CloseConfig       `yaml:"close"`
}

// CooperativeConfig identifies the cooperative.
type CooperativeConfig struct {
	Name            string `yaml:"name"`
	FiscalYearStart string `yaml:"fiscal_year_start"` // "MM-DD" format, e.g. "01-01"
}

// AllocationConfig selects the allocation formula and its eligibility
// thresholds.
type AllocationConfig struct {
	Formula domain.FormulaSpec `yaml:"formula"`

	// MinContribution excludes members whose weighted total falls below
	// it. Zero disables the threshold.
	MinContribution decimal.Decimal `yaml:"min_contribution"`

	// MaxSharePct caps any single member's percentage, with the excess
	// redistributed across the rest. Zero disables the cap.
	MaxSharePct decimal.Decimal `yaml:"max_share_pct"`
}

// TaxConfig controls how contribution tax values are derived.
type TaxConfig struct {
	Default    TaxValueRule            `yaml:"default"`
	Categories map[string]TaxValueRule `yaml:"categories,omitempty"` // per asset category override
}

// Rule returns the tax value rule for an asset category.
func (t TaxConfig) Rule(category string) TaxValueRule {
	if r, ok := t.Categories[category]; ok {
		return r
	}
	if t.Default == "" {
		return TaxValueMirror
	}
	return t.Default
}

// CloseConfig controls the period lifecycle.
type CloseConfig struct {
	Cadence      string `yaml:"cadence"` // monthly, quarterly, or yearly
	AutoOpenNext bool   `yaml:"auto_open_next"`

	// RequiredAccruals lists account codes that must carry at least one
	// posting in a period before it may close.
	RequiredAccruals []string `yaml:"required_accruals,omitempty"`
}

// LoadPolicy reads a coopledger.yaml file from disk.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return &p, nil
}

// SavePolicy writes a Policy to a YAML file.
func SavePolicy(path string, p *Policy) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling policy: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing policy: %w", err)
	}
	return nil
}

// Validate checks the policy for internally consistent values.
func (p *Policy) Validate() error {
	if err := p.Allocation.Formula.Validate(); err != nil {
		return err
	}
	if p.Allocation.MinContribution.IsNegative() {
		return errors.New("allocation.min_contribution cannot be negative")
	}
	maxShare := p.Allocation.MaxSharePct
	if maxShare.IsNegative() || maxShare.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.New("allocation.max_share_pct must be zero (disabled) or within (0, 1)")
	}
	switch p.Close.Cadence {
	case "monthly", "quarterly", "yearly":
	default:
		return errors.New("close.cadence must be monthly, quarterly, or yearly")
	}
	rules := []TaxValueRule{p.Tax.Default}
	for _, r := range p.Tax.Categories {
		rules = append(rules, r)
	}
	for _, r := range rules {
		switch r {
		case "", TaxValueMirror, TaxValueZero, TaxValueProvided:
		default:
			return fmt.Errorf("tax rule must be mirror, zero, or provided, got %q", r)
		}
	}
	return nil
}

// DefaultPolicy returns a Policy with sensible defaults for a new
// cooperative.
func DefaultPolicy(name string) *Policy {
	return &Policy{
		Cooperative: CooperativeConfig{
			Name:            name,
			FiscalYearStart: "01-01",
		},
		Allocation: AllocationConfig{
			Formula: domain.FormulaSpec{
				Kind: domain.FormulaWeighted,
				Weights: map[string]decimal.Decimal{
					"hours":     decimal.RequireFromString("0.6"),
					"purchases": decimal.RequireFromString("0.4"),
				},
			},
		},
		Tax: TaxConfig{
			Default: TaxValueMirror,
		},
		Close: CloseConfig{
			Cadence:      "yearly",
			AutoOpenNext: true,
		},
	}
}
