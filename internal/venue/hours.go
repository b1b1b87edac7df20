package venue

import (
	"fmt"
	"time"

	"github.com/urbanpulse/event-harvester/internal/model"
)

// Period is one open/close pair as the places API reports it. Day is 0
// (Sunday) through 6; Time is "HHMM". A missing close marks a venue that
// never closes.
type Period struct {
	Open  PeriodPoint  `json:"open"`
	Close *PeriodPoint `json:"close,omitempty"`
}

// PeriodPoint is one side of a period.
type PeriodPoint struct {
	Day  int    `json:"day"`
	Time string `json:"time"`
}

// HoursFromPeriods converts API periods to a weekly schedule. No periods at
// all means the API had no restriction to report, so the venue counts as
// always open. A single open at Sunday 0000 with no close is the API's
// sentinel for 24/7; so is a single period closing at midnight on a later
// day.
func HoursFromPeriods(periods []Period) (*model.WeekHours, error) {
	if len(periods) == 0 {
		return &model.WeekHours{AlwaysOpen: true}, nil
	}
	if len(periods) == 1 {
		p := periods[0]
		if p.Close == nil {
			if p.Open.Day == 0 && p.Open.Time == "0000" {
				return &model.WeekHours{AlwaysOpen: true}, nil
			}
			return nil, fmt.Errorf("open period without close on day %d", p.Open.Day)
		}
		if p.Close.Time == "0000" && p.Close.Day != p.Open.Day && p.Open.Time == "0000" {
			return &model.WeekHours{AlwaysOpen: true}, nil
		}
	}

	week := &model.WeekHours{Days: make(map[time.Weekday]model.DayHours, len(periods))}
	for _, p := range periods {
		if p.Close == nil {
			return nil, fmt.Errorf("open period without close on day %d", p.Open.Day)
		}
		open, err := clockFromHHMM(p.Open.Time)
		if err != nil {
			return nil, err
		}
		closeAt, err := clockFromHHMM(p.Close.Time)
		if err != nil {
			return nil, err
		}
		day := time.Weekday(p.Open.Day)
		week.Days[day] = model.DayHours{
			Open:          open,
			Close:         closeAt,
			ClosesNextDay: p.Close.Day != p.Open.Day,
		}
	}
	return week, nil
}

func clockFromHHMM(s string) (string, error) {
	if len(s) != 4 {
		return "", fmt.Errorf("bad period time %q", s)
	}
	t, err := time.Parse("1504", s)
	if err != nil {
		return "", fmt.Errorf("bad period time %q: %w", s, err)
	}
	return t.Format("15:04"), nil
}
