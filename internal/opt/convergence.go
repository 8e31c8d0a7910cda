package opt

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines parameters for detecting optimization convergence
type ConvergenceConfig struct {
	// Patience is the number of accepted steps with no significant
	// improvement before stopping
	Patience int

	// Threshold is the minimum relative improvement required to count as progress
	// Relative improvement = (oldCost - newCost) / oldCost
	Threshold float64
}

// DefaultConvergenceConfig stops after the first accepted step whose relative
// improvement is below threshold.
func DefaultConvergenceConfig(threshold float64) ConvergenceConfig {
	return ConvergenceConfig{
		Patience:  1,
		Threshold: threshold,
	}
}

// ConvergenceTracker detects when successive accepted costs stop improving
type ConvergenceTracker struct {
	config          ConvergenceConfig
	started         bool
	bestCost        float64 // Best cost ever seen
	lastSignificant float64 // Last cost that was a significant improvement
	staleCount      int     // Number of updates without significant improvement
}

// NewConvergenceTracker creates a new convergence tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		bestCost:        math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records a new cost value and returns true if convergence is detected
func (c *ConvergenceTracker) Update(cost float64) bool {
	if cost < c.bestCost {
		c.bestCost = cost
	}

	if !c.started {
		c.started = true
		c.lastSignificant = cost
		return false
	}

	// Nothing left to improve relative to a zero baseline.
	if c.lastSignificant <= 0 {
		slog.Debug("Zero baseline cost, treating as converged", "cost", cost)
		return true
	}

	relativeImprovement := (c.lastSignificant - cost) / c.lastSignificant

	if relativeImprovement >= c.config.Threshold {
		c.lastSignificant = cost
		c.staleCount = 0
		slog.Debug("Cost improvement detected",
			"cost", cost,
			"relative_improvement", relativeImprovement,
		)
		return false
	}

	c.staleCount++
	slog.Debug("No significant cost improvement",
		"cost", cost,
		"last_significant", c.lastSignificant,
		"relative_improvement", relativeImprovement,
		"stale_count", c.staleCount,
		"patience", c.config.Patience,
	)

	if c.staleCount >= c.config.Patience {
		slog.Debug("Convergence detected",
			"stale_count", c.staleCount,
			"best_cost", c.bestCost,
		)
		return true
	}

	return false
}
