package domain

import (
	"fmt"
	"math"
)

// TriageConfig is the operator policy singleton read by the decision engine.
type TriageConfig struct {
	AutoCloseEnabled    bool    `json:"autoCloseEnabled" yaml:"autoCloseEnabled"`
	ConfidenceThreshold float64 `json:"confidenceThreshold" yaml:"confidenceThreshold"`
	SLAHours            int     `json:"slaHours" yaml:"slaHours"`
}

// DefaultTriageConfig is used when no singleton has been stored yet.
func DefaultTriageConfig() TriageConfig {
	return TriageConfig{
		AutoCloseEnabled:    true,
		ConfidenceThreshold: 0.78,
		SLAHours:            24,
	}
}

// Validate checks field ranges.
func (c TriageConfig) Validate() error {
	if math.IsNaN(c.ConfidenceThreshold) || c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidenceThreshold must be within [0,1], got %v", c.ConfidenceThreshold)
	}
	if c.SLAHours <= 0 {
		return fmt.Errorf("slaHours must be positive, got %d", c.SLAHours)
	}
	return nil
}
