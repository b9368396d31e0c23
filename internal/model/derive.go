package model

import "math"

// Bounds applied (clamp-and-continue) to prepare inputs and stored values.
const (
	MinDurationHours = 1
	MaxDurationHours = 168
	MinTickMinutes   = 1
	MaxTickMinutes   = 60
	MinRepairCrews   = 0
	MaxRepairCrews   = 999
	MinCriticality   = 1
	MaxCriticality   = 5
	MinChainDepth    = 1
	MaxChainDepth    = 12
)

// Performance thresholds for the discrete status derivation.
const (
	recoveredThreshold = 100
	degradedThreshold  = 50
)

// ClampInt clamps v into [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampFloat clamps v into [lo, hi].
func ClampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TotalTicks derives the number of discrete steps of an instance:
// max(1, duration_hours·60 / tick_minutes).
func TotalTicks(durationHours, tickMinutes int) int {
	if tickMinutes <= 0 {
		return 1
	}
	n := durationHours * 60 / tickMinutes
	if n < 1 {
		return 1
	}
	return n
}

// TickForPct maps a rule's time percentage onto a tick index:
// clamp(⌈time_pct/100 · total⌉, 0, total−1). An impact "between ticks"
// becomes visible on the next tick.
func TickForPct(timePct float64, totalTicks int) int {
	t := int(math.Ceil(timePct / 100 * float64(totalTicks)))
	return ClampInt(t, 0, totalTicks-1)
}

// StatusForPerformance maps a performance percentage to the run-facing
// discrete status: ≥100 RECOVERED, [50..99] DEGRADED, <50 FAILED.
func StatusForPerformance(perf float64) string {
	switch {
	case perf >= recoveredThreshold:
		return StatusRecovered
	case perf >= degradedThreshold:
		return StatusDegraded
	default:
		return StatusFailed
	}
}

// OpStatusForPerformance maps a performance percentage to the stored
// operational status (active/partial/inactive).
func OpStatusForPerformance(perf float64) string {
	switch {
	case perf >= recoveredThreshold:
		return OpStatusActive
	case perf >= degradedThreshold:
		return OpStatusPartial
	default:
		return OpStatusInactive
	}
}
