package timeline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdeck/internal/domain"
	"taskdeck/internal/timeline"
)

func date(s string) time.Time {
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRulerAndBarPositions(t *testing.T) {
	w := timeline.New(date("2024-07-01"), timeline.Config{LookbackDays: 2})
	require.Equal(t, date("2024-06-29"), w.Start)
	assert.Equal(t, 30, w.PixelsPerDay)
	assert.Equal(t, 15, w.CellCenterOffset)

	assert.Equal(t, 60, w.RulerX(date("2024-07-01")))
	assert.Equal(t, 75, w.BarX(date("2024-07-01")))

	bar, ok := w.Bar(domain.Task{ID: "t", StartDate: "2024-07-01", EndDate: "2024-07-03"})
	require.True(t, ok)
	assert.Equal(t, 75, bar.Left)
	assert.Equal(t, 90, bar.Width)
}

func TestBarAlignsWithRulerCell(t *testing.T) {
	w := timeline.New(time.Date(2024, 2, 20, 17, 45, 0, 0, time.UTC), timeline.DefaultConfig())
	for _, cell := range w.Cells() {
		assert.Equal(t, cell.X, w.BarX(cell.Date)-w.CellCenterOffset, cell.Date)
		bar, ok := w.Bar(domain.Task{StartDate: cell.Date.Format(domain.DateLayout)})
		require.True(t, ok)
		assert.Equal(t, cell.X, bar.Left-w.CellCenterOffset)
	}
}

func TestRangeChangeKeepsStart(t *testing.T) {
	today := date("2024-07-15")
	w := timeline.New(today, timeline.Config{LookbackDays: 14, RangeMonths: 1})
	for _, months := range []int{1, 2, 3, 6, 12} {
		other := w.WithRangeMonths(months)
		assert.Equal(t, w.Start, other.Start, "months=%d", months)
		assert.Equal(t, 14+timeline.RangeDays(today, months), other.TotalVisibleDays())
		assert.Equal(t, other.TotalVisibleDays()*30, other.ContentWidth())
	}
	assert.Less(t, w.TotalVisibleDays(), w.WithRangeMonths(3).TotalVisibleDays())
}

func TestDaysRoundsUp(t *testing.T) {
	w := timeline.New(date("2024-07-01"), timeline.Config{LookbackDays: 0})
	assert.Equal(t, 0, w.Days(date("2024-07-01")))
	assert.Equal(t, 1, w.Days(date("2024-07-01").Add(time.Hour)))
	assert.Equal(t, -1, w.Days(date("2024-06-30")))
}

func TestCellsMarkToday(t *testing.T) {
	w := timeline.New(date("2024-07-01"), timeline.Config{LookbackDays: 3, RangeMonths: 1})
	cells := w.Cells()
	require.Len(t, cells, 3+31)
	assert.True(t, cells[3].Today)
	assert.Equal(t, 90, cells[3].X)
	assert.False(t, cells[0].Today)
}

func TestBarsSkipsOutsideWindow(t *testing.T) {
	w := timeline.New(date("2024-07-01"), timeline.Config{LookbackDays: 7, RangeMonths: 1})
	tasks := []domain.Task{
		{ID: "in", StartDate: "2024-07-02", EndDate: "2024-07-04"},
		{ID: "before", StartDate: "2024-05-01", EndDate: "2024-05-03"},
		{ID: "after", StartDate: "2024-09-01"},
		{ID: "undated"},
		{ID: "straddle", StartDate: "2024-06-01", EndDate: "2024-06-26"},
	}
	var ids []string
	for _, b := range w.Bars(tasks) {
		ids = append(ids, b.TaskID)
	}
	assert.Equal(t, []string{"in", "straddle"}, ids)
}
