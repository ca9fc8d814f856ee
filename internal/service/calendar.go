package service

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// DefaultTimezone is the zone clinic session dates are recorded in
const DefaultTimezone = "Asia/Kolkata"

// Calendar resolves business dates in the clinics' timezone
type Calendar struct {
	clock    func() time.Time
	location *time.Location
}

// NewCalendar loads the named zone. An empty name uses DefaultTimezone.
func NewCalendar(timezone string, clock func() time.Time) (*Calendar, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	if clock == nil {
		clock = time.Now
	}
	return &Calendar{clock: clock, location: loc}, nil
}

// Now is the current instant in the calendar's zone
func (c *Calendar) Now() time.Time {
	return c.clock().In(c.location)
}

// Today is midnight of the current local day
func (c *Calendar) Today() time.Time {
	now := c.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.location)
}

// Yesterday is the demand date used by planning
func (c *Calendar) Yesterday() time.Time {
	return c.Today().AddDate(0, 0, -1)
}

func (c *Calendar) Location() *time.Location {
	return c.location
}
