// Package engine provides the tick-based simulation loop for one person.
package engine

import "fmt"

// Clock constants. A simulated day is 100 ticks of 14.4 minutes.
const (
	TicksPerDay    = 100
	MinutesPerTick = 24 * 60.0 / TicksPerDay
	TicksPerYear   = 365 * TicksPerDay
)

// DayOf returns the zero-based day containing tick.
func DayOf(tick int) int {
	return tick / TicksPerDay
}

// IsDayStart reports whether tick is the first tick of a day. Daily systems
// (supply availability) run on these ticks.
func IsDayStart(tick int) bool {
	return tick%TicksPerDay == 0
}

// SimTime returns a human-readable time from a tick number.
func SimTime(tick int) string {
	minutes := int(float64(tick%TicksPerDay) * MinutesPerTick)
	return fmt.Sprintf("Day %d, %d:%02d", DayOf(tick)+1, minutes/60, minutes%60)
}
