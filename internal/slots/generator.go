// Package slots expands a doctor's weekly slot configuration into concrete
// empty slots and persists them idempotently.
package slots

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

var (
	ErrInvalidConfig = errors.New("invalid slot config")
	ErrInvalidRange  = errors.New("invalid date range")
)

// Config describes one weekday window split into fixed-size slots.
type Config struct {
	Weekday     string `json:"weekday"`             // "monday" .. "sunday"
	Start       string `json:"start"`               // HH:MM, inclusive
	End         string `json:"end"`                 // HH:MM, exclusive
	Granularity int    `json:"granularity_minutes"` // slot length
	Period      string `json:"period,omitempty"`    // morning/afternoon label
}

// Candidate is one generated (date, time) pair.
type Candidate struct {
	Date   time.Time
	Time   string
	Period string
}

// Key is the string form used for occupancy lookups.
func (c Candidate) Key() string {
	return SlotKey(c.Date, c.Time)
}

func SlotKey(date time.Time, clock string) string {
	return date.Format(schedule.DateLayout) + " " + clock
}

type window struct {
	start, end  int // minutes since midnight
	granularity int
	period      string
}

// Plan is a validated set of configs indexed by weekday.
type Plan struct {
	byDay map[time.Weekday][]window
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func NewPlan(configs []Config) (*Plan, error) {
	p := &Plan{byDay: make(map[time.Weekday][]window)}
	for i, c := range configs {
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(c.Weekday))]
		if !ok {
			return nil, fmt.Errorf("%w: config %d: unknown weekday %q", ErrInvalidConfig, i, c.Weekday)
		}
		start, err := minutes(c.Start)
		if err != nil {
			return nil, fmt.Errorf("%w: config %d: start: %v", ErrInvalidConfig, i, err)
		}
		end, err := minutes(c.End)
		if err != nil {
			return nil, fmt.Errorf("%w: config %d: end: %v", ErrInvalidConfig, i, err)
		}
		if start >= end {
			return nil, fmt.Errorf("%w: config %d: start %s not before end %s", ErrInvalidConfig, i, c.Start, c.End)
		}
		if c.Granularity <= 0 {
			return nil, fmt.Errorf("%w: config %d: granularity must be positive", ErrInvalidConfig, i)
		}
		p.byDay[wd] = append(p.byDay[wd], window{start: start, end: end, granularity: c.Granularity, period: c.Period})
	}
	return p, nil
}

// Candidates yields every slot between from and to (inclusive dates) that
// is not in occupied. occupied is keyed by SlotKey. The sequence is finite
// and can be ranged over more than once.
func (p *Plan) Candidates(from, to time.Time, occupied map[string]bool) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			for _, w := range p.byDay[d.Weekday()] {
				for m := w.start; m+w.granularity <= w.end; m += w.granularity {
					c := Candidate{
						Date:   d,
						Time:   fmt.Sprintf("%02d:%02d", m/60, m%60),
						Period: w.period,
					}
					if occupied[c.Key()] {
						continue
					}
					if !yield(c) {
						return
					}
				}
			}
		}
	}
}

// Generate collects Candidates into a slice.
func (p *Plan) Generate(from, to time.Time, occupied map[string]bool) ([]Candidate, error) {
	from, to = dateOnly(from), dateOnly(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s after %s", ErrInvalidRange, from.Format(schedule.DateLayout), to.Format(schedule.DateLayout))
	}
	var out []Candidate
	for c := range p.Candidates(from, to, occupied) {
		out = append(out, c)
	}
	return out, nil
}

// Empty reports whether the plan produces no slots on any weekday.
func (p *Plan) Empty() bool {
	return len(p.byDay) == 0
}

func minutes(clock string) (int, error) {
	t, err := time.Parse(schedule.TimeLayout, clock)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", clock, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
