package service

import (
	"time"

	"github.com/spec-kit/helpdesk-core/internal/config"
)

// BusinessHours is the weekly recurring window SLA clocks advance in when
// business-hours mode is enabled. The window's time zone is part of the
// configuration, never the caller's.
type BusinessHours struct {
	StartHour   int
	EndHour     int
	WorkingDays map[time.Weekday]bool
	Location    *time.Location
}

// DeadlineCalculator turns target hours into absolute due timestamps.
// It is pure: no clocks are read and no state is mutated.
type DeadlineCalculator struct {
	businessHoursOnly bool
	hours             BusinessHours
}

// NewDeadlineCalculator builds a calculator from SLA configuration. An
// unknown timezone degrades to UTC.
func NewDeadlineCalculator(cfg config.SlaConfig) *DeadlineCalculator {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	days := make(map[time.Weekday]bool, len(cfg.WorkingDays))
	for _, d := range cfg.WorkingDays {
		days[d] = true
	}
	return &DeadlineCalculator{
		businessHoursOnly: cfg.BusinessHoursOnly,
		hours: BusinessHours{
			StartHour:   cfg.StartHour,
			EndHour:     cfg.EndHour,
			WorkingDays: days,
			Location:    loc,
		},
	}
}

// ComputeDueAt returns the absolute due timestamp for a target measured in
// hours from now, or nil when the policy has no target. In business-hours
// mode the clock walks forward day by day, consuming only the capacity of
// working days; otherwise the target is plain wall-clock hours.
func (c *DeadlineCalculator) ComputeDueAt(targetHours *float64, now time.Time) *time.Time {
	if targetHours == nil {
		return nil
	}
	if !c.businessHoursOnly {
		due := now.Add(hoursToDuration(*targetHours))
		return &due
	}
	return c.computeBusinessDueAt(*targetHours, now)
}

func (c *DeadlineCalculator) computeBusinessDueAt(targetHours float64, now time.Time) *time.Time {
	// A window with no working days can never absorb any hours; degrade to
	// wall-clock arithmetic instead of walking forever.
	if len(c.hours.WorkingDays) == 0 || c.hours.EndHour <= c.hours.StartHour {
		due := now.Add(hoursToDuration(targetHours))
		return &due
	}

	current := now.In(c.hours.Location)
	remaining := targetHours

	for remaining > 0 {
		if c.hours.WorkingDays[current.Weekday()] {
			dayStart := atHour(current, c.hours.StartHour)
			dayEnd := atHour(current, c.hours.EndHour)

			if current.Before(dayStart) {
				current = dayStart
			}
			if current.Before(dayEnd) {
				available := dayEnd.Sub(current).Hours()
				if remaining <= available {
					due := current.Add(hoursToDuration(remaining))
					return &due
				}
				remaining -= available
			}
		}
		next := current.AddDate(0, 0, 1)
		current = atHour(next, c.hours.StartHour)
	}

	return &current
}

func atHour(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}

func hoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}
