package engine

import "fmt"

// ConfigError reports an invalid run configuration. It is always returned
// before any bar is processed.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// InsufficientDataError reports a bar series too short for the requested
// entry-filter window. Returned before any bar is processed.
type InsufficientDataError struct {
	Window      int
	DailyCloses int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: entry filter needs %d daily closes, have %d", e.Window, e.DailyCloses)
}

// InvariantViolation indicates an engine bug, not bad input. The run aborts
// immediately; State carries a dump of the order book at the failing bar so
// the condition is reproducible.
type InvariantViolation struct {
	BarIndex  int
	Timestamp int64
	Reason    string
	State     string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation at bar %d (ts=%d): %s\n%s", e.BarIndex, e.Timestamp, e.Reason, e.State)
}
