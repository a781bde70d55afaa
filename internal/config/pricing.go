package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iliyamo/journey-seat-booking/internal/engine"
)

// PricingConfig is the pricing policy shared by every quote, booking and
// finalization.  Values come from environment variables and may be
// overridden by a YAML file (PRICING_CONFIG).  ${VAR} references inside the
// file are expanded before parsing.
//
// Example:
//
//	currency: EUR
//	tax_rate: 0.10
//	fee_rate: 0.05
//	rounding_unit: 100
//	tie_break: preferred_then_rating
//	default_commission_rate: 0.12
//	operator_commission_rates:
//	  op-lagoon: 0.08
//	quote_token_ttl: 10m
type PricingConfig struct {
	Currency                string             `yaml:"currency"`
	TaxRate                 float64            `yaml:"tax_rate"`
	FeeRate                 float64            `yaml:"fee_rate"`
	RoundingUnit            int64              `yaml:"rounding_unit"`
	TieBreak                string             `yaml:"tie_break"`
	DefaultCommissionRate   float64            `yaml:"default_commission_rate"`
	OperatorCommissionRates map[string]float64 `yaml:"operator_commission_rates"`
	QuoteTokenTTL           time.Duration      `yaml:"quote_token_ttl"`
}

// PricingFromEnv builds a PricingConfig from environment variables only.
func PricingFromEnv() PricingConfig {
	return PricingConfig{
		Currency:                envStr("PRICING_CURRENCY", "EUR"),
		TaxRate:                 envFloat("PRICING_TAX_RATE", 0),
		FeeRate:                 envFloat("PRICING_FEE_RATE", 0),
		RoundingUnit:            int64(envInt("PRICING_ROUNDING_UNIT", 1)),
		TieBreak:                envStr("PRICING_TIE_BREAK", "preferred_then_rating"),
		DefaultCommissionRate:   envFloat("PRICING_DEFAULT_COMMISSION_RATE", 0.1),
		OperatorCommissionRates: map[string]float64{},
		QuoteTokenTTL:           envDur("QUOTE_TOKEN_TTL", 10*time.Minute),
	}
}

// LoadPricing returns the environment pricing with the YAML file at path
// layered on top.  An empty path skips the file.
func LoadPricing(path string) (PricingConfig, error) {
	cfg := PricingFromEnv()
	if path == "" {
		return cfg, cfg.validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read pricing config: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return cfg, fmt.Errorf("parse pricing config: %w", err)
	}
	if cfg.OperatorCommissionRates == nil {
		cfg.OperatorCommissionRates = map[string]float64{}
	}
	return cfg, cfg.validate()
}

func (p PricingConfig) validate() error {
	if p.TaxRate < 0 || p.FeeRate < 0 {
		return fmt.Errorf("pricing: tax and fee rates must not be negative")
	}
	if p.DefaultCommissionRate < 0 || p.DefaultCommissionRate > 1 {
		return fmt.Errorf("pricing: default commission rate %v out of range", p.DefaultCommissionRate)
	}
	for op, r := range p.OperatorCommissionRates {
		if r < 0 || r > 1 {
			return fmt.Errorf("pricing: commission rate %v for operator %s out of range", r, op)
		}
	}
	if p.QuoteTokenTTL <= 0 {
		return fmt.Errorf("pricing: quote token ttl must be positive")
	}
	switch strings.ToLower(p.TieBreak) {
	case "", "preferred_then_rating", "rating_then_preferred":
	default:
		return fmt.Errorf("pricing: unknown tie_break %q", p.TieBreak)
	}
	return nil
}

// Rates converts the policy into engine rates.
func (p PricingConfig) Rates() engine.Rates {
	return engine.Rates{TaxRate: p.TaxRate, FeeRate: p.FeeRate, RoundingUnit: p.RoundingUnit}
}

// Commission converts the policy into engine commission rates.
func (p PricingConfig) Commission() engine.CommissionRates {
	by := make(map[string]float64, len(p.OperatorCommissionRates))
	for k, v := range p.OperatorCommissionRates {
		by[k] = v
	}
	return engine.CommissionRates{Default: p.DefaultCommissionRate, ByOperator: by}
}

// Order returns the configured tie-break order.
func (p PricingConfig) Order() engine.TieBreak {
	if strings.EqualFold(p.TieBreak, "rating_then_preferred") {
		return engine.RatingThenPreferred
	}
	return engine.PreferredThenRating
}
