// Package timeline maps calendar dates to horizontal pixel offsets on a
// fixed-width-per-day timeline. Ruler cells and task bars share one
// computation so they line up.
package timeline

import (
	"math"
	"time"

	"taskdeck/internal/domain"
)

const (
	PixelsPerDay        = 30
	DefaultLookbackDays = 7
	DefaultRangeMonths  = 3
)

type Config struct {
	PixelsPerDay int `yaml:"pixels_per_day"`
	LookbackDays int `yaml:"lookback_days"`
	RangeMonths  int `yaml:"range_months"`
}

func DefaultConfig() Config {
	return Config{PixelsPerDay: PixelsPerDay, LookbackDays: DefaultLookbackDays, RangeMonths: DefaultRangeMonths}
}

func (c Config) withDefaults() Config {
	if c.PixelsPerDay <= 0 {
		c.PixelsPerDay = PixelsPerDay
	}
	if c.LookbackDays < 0 {
		c.LookbackDays = 0
	}
	if c.RangeMonths <= 0 {
		c.RangeMonths = DefaultRangeMonths
	}
	return c
}

// Window is one render pass: "today" is fixed when the window is built.
type Window struct {
	Today            time.Time `json:"today"`
	Start            time.Time `json:"start"`
	PixelsPerDay     int       `json:"pixels_per_day"`
	CellCenterOffset int       `json:"cell_center_offset"`
	LookbackDays     int       `json:"lookback_days"`
	RangeDays        int       `json:"range_days"`
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WindowStart depends only on today and the lookback.
func WindowStart(today time.Time, lookbackDays int) time.Time {
	return Day(today).AddDate(0, 0, -lookbackDays)
}

// RangeDays is the number of days from today to the same date months later.
func RangeDays(today time.Time, months int) int {
	d := Day(today)
	return int(d.AddDate(0, months, 0).Sub(d).Hours() / 24)
}

func New(today time.Time, cfg Config) Window {
	cfg = cfg.withDefaults()
	return Window{
		Today:            Day(today),
		Start:            WindowStart(today, cfg.LookbackDays),
		PixelsPerDay:     cfg.PixelsPerDay,
		CellCenterOffset: cfg.PixelsPerDay / 2,
		LookbackDays:     cfg.LookbackDays,
		RangeDays:        RangeDays(today, cfg.RangeMonths),
	}
}

// WithRangeMonths changes the visible range. Start is unchanged.
func (w Window) WithRangeMonths(months int) Window {
	if months <= 0 {
		months = DefaultRangeMonths
	}
	w.RangeDays = RangeDays(w.Today, months)
	return w
}

// Days returns ceil of the whole days from Start to d.
func (w Window) Days(d time.Time) int {
	return int(math.Ceil(d.Sub(w.Start).Hours() / 24))
}

// RulerX is the left edge of d's ruler cell.
func (w Window) RulerX(d time.Time) int {
	return w.Days(d) * w.PixelsPerDay
}

// BarX is where a bar starting on d begins, centered under d's cell.
func (w Window) BarX(d time.Time) int {
	return w.RulerX(d) + w.CellCenterOffset
}

func (w Window) TotalVisibleDays() int {
	return w.LookbackDays + w.RangeDays
}

func (w Window) ContentWidth() int {
	return w.TotalVisibleDays() * w.PixelsPerDay
}

// End is the first date past the window.
func (w Window) End() time.Time {
	return w.Start.AddDate(0, 0, w.TotalVisibleDays())
}

func (w Window) Contains(d time.Time) bool {
	return !d.Before(w.Start) && d.Before(w.End())
}

type Cell struct {
	Date  time.Time `json:"date"`
	X     int       `json:"x"`
	Today bool      `json:"today"`
}

// Cells lists one ruler cell per visible day.
func (w Window) Cells() []Cell {
	n := w.TotalVisibleDays()
	cells := make([]Cell, n)
	for i := 0; i < n; i++ {
		d := w.Start.AddDate(0, 0, i)
		cells[i] = Cell{Date: d, X: w.RulerX(d), Today: d.Equal(w.Today)}
	}
	return cells
}

type Bar struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
	Left   int    `json:"left"`
	Width  int    `json:"width"`
}

// Bar places t between its start and end dates. A task without a start date
// has no bar; a missing or earlier end date collapses to one day.
func (w Window) Bar(t domain.Task) (Bar, bool) {
	start := t.Start()
	if start.IsZero() {
		return Bar{}, false
	}
	end := t.End()
	if end.IsZero() || end.Before(start) {
		end = start
	}
	days := w.Days(end) - w.Days(start) + 1
	return Bar{TaskID: t.ID, Title: t.Title, Left: w.BarX(start), Width: days * w.PixelsPerDay}, true
}

// Bars returns bars for tasks overlapping the window, in input order.
func (w Window) Bars(tasks []domain.Task) []Bar {
	var bars []Bar
	for _, t := range tasks {
		b, ok := w.Bar(t)
		if !ok {
			continue
		}
		end := t.End()
		if end.IsZero() || end.Before(t.Start()) {
			end = t.Start()
		}
		if end.Before(w.Start) || !t.Start().Before(w.End()) {
			continue
		}
		bars = append(bars, b)
	}
	return bars
}
