package schedule

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CalculateNextRun returns the next execution time for a standard 5-field
// cron expression, strictly after from. A syntactically 5-field expression
// the parser rejects falls back to one day after from; anything else
// returns nil.
func CalculateNextRun(expr string, from time.Time) *time.Time {
	sched, err := cron.ParseStandard(expr)
	if err == nil {
		next := sched.Next(from)
		if next.IsZero() {
			return nil
		}
		return &next
	}

	if len(strings.Fields(expr)) == 5 {
		next := from.Add(24 * time.Hour)
		return &next
	}
	return nil
}
