package strategy

import (
	"context"
	"fmt"
	"os"

	"dca-core/internal/state"

	"gopkg.in/yaml.v3"
)

// SideDefaults is the YAML shape of one ladder side in dca.yaml.
type SideDefaults struct {
	Enabled        bool    `yaml:"enabled"`
	AmountBase     float64 `yaml:"amount_base"`
	PurchaseStep   float64 `yaml:"purchase_step"`
	PriceVar       float64 `yaml:"price_var"`
	SizeVar        float64 `yaml:"size_var"`
	TriggerPercent float64 `yaml:"trigger_percent"`
	StopAtCycleEnd bool    `yaml:"stop_at_cycle_end"`
}

// AIDefaults seeds the risk manager on first boot.
type AIDefaults struct {
	Enabled       bool    `yaml:"enabled"`
	Seed          float64 `yaml:"seed"`
	MinTradeFloor float64 `yaml:"min_trade_floor"`
}

// FileConfig is the root of dca.yaml. It only seeds the persisted state;
// once the bot has run, the database copy wins.
type FileConfig struct {
	Symbol string       `yaml:"symbol"`
	Long   SideDefaults `yaml:"long"`
	Short  SideDefaults `yaml:"short"`
	AI     AIDefaults   `yaml:"ai"`
}

// LoadDefaults reads dca.yaml. A missing file is not an error; the caller
// falls back to built-in defaults.
func LoadDefaults(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read strategy defaults: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse strategy defaults: %w", err)
	}
	return &fc, nil
}

// ToConfig converts YAML defaults into runtime strategy config.
func (d SideDefaults) ToConfig() state.StrategyConfig {
	return state.StrategyConfig{
		Enabled:        d.Enabled,
		AmountBase:     d.AmountBase,
		PurchaseStep:   d.PurchaseStep,
		PriceVar:       d.PriceVar,
		SizeVar:        d.SizeVar,
		TriggerPercent: d.TriggerPercent,
		StopAtCycleEnd: d.StopAtCycleEnd,
	}
}

// ValidateConfig rejects configs a ladder cannot run with.
func ValidateConfig(cfg state.StrategyConfig) error {
	if cfg.AmountBase <= 0 {
		return fmt.Errorf("amountBase must be positive, got %.2f", cfg.AmountBase)
	}
	if cfg.PurchaseStep <= 0 {
		return fmt.Errorf("purchaseStep must be positive, got %.2f", cfg.PurchaseStep)
	}
	if cfg.PurchaseStep > cfg.AmountBase {
		return fmt.Errorf("purchaseStep %.2f exceeds amountBase %.2f", cfg.PurchaseStep, cfg.AmountBase)
	}
	if cfg.PriceVar < 0 || cfg.SizeVar < 0 {
		return fmt.Errorf("priceVar and sizeVar must not be negative")
	}
	if cfg.PriceVar >= 100 {
		return fmt.Errorf("priceVar %.2f would drive prices non-positive", cfg.PriceVar)
	}
	if cfg.TriggerPercent <= 0 {
		return fmt.Errorf("triggerPercent must be positive, got %.2f", cfg.TriggerPercent)
	}
	if cfg.TriggerPercent >= 100 {
		return fmt.Errorf("triggerPercent %.2f is out of range", cfg.TriggerPercent)
	}
	return nil
}

// Seed copies file defaults into a freshly created state document. The
// caller gates this on the store's first boot so restarts keep DB values.
func Seed(ctx context.Context, store *state.Store, fc *FileConfig) error {
	if fc == nil {
		return nil
	}
	if err := store.UpdateSide(ctx, state.SideLong, func(st *state.StrategyState, cfg *state.StrategyConfig) {
		*cfg = fc.Long.ToConfig()
	}); err != nil {
		return fmt.Errorf("seed long config: %w", err)
	}
	if err := store.UpdateSide(ctx, state.SideShort, func(st *state.StrategyState, cfg *state.StrategyConfig) {
		*cfg = fc.Short.ToConfig()
	}); err != nil {
		return fmt.Errorf("seed short config: %w", err)
	}
	if err := store.UpdateAI(ctx, func(ai *state.AIRiskState) {
		ai.Enabled = fc.AI.Enabled
		ai.State = state.AIRunning
		ai.VirtualBalance = fc.AI.Seed
		ai.MinTradeFloor = fc.AI.MinTradeFloor
	}); err != nil {
		return fmt.Errorf("seed ai config: %w", err)
	}
	return nil
}
