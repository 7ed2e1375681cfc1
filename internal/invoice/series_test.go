package invoice

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/invoicer/internal/model"
)

func newTestBuilder(now time.Time) *SeriesBuilder {
	return &SeriesBuilder{
		Location: time.UTC,
		Now:      func() time.Time { return now },
		Rand:     rand.New(rand.NewPCG(42, 7)),
	}
}

func TestBuild_WindowShape(t *testing.T) {
	b := newTestBuilder(today)
	invoices := []model.Invoice{{Total: 100, Status: model.InvoiceStatusPaid, CreatedAt: today}}

	for _, days := range []int{7, 30, 90} {
		s := b.Build(invoices, days)
		require.Len(t, s.Points, days)
		assert.False(t, s.Synthetic)
		assert.Equal(t, "2026-10-14", s.Points[days-1].Date)

		first, err := time.Parse(DateLayout, s.Points[0].Date)
		require.NoError(t, err)
		for i, p := range s.Points {
			assert.Equal(t, first.AddDate(0, 0, i).Format(DateLayout), p.Date)
		}
	}

	assert.Len(t, b.Build(invoices, 0).Points, DefaultWindowDays)
}

func TestBuild_BucketsAndSmooths(t *testing.T) {
	b := newTestBuilder(today)

	mid := today.AddDate(0, 0, -45)
	s := b.Build([]model.Invoice{
		{Total: 700, Status: model.InvoiceStatusPaid, CreatedAt: mid},
		{Total: 700, Status: model.InvoiceStatusUnpaid, CreatedAt: mid},
		{Total: 5000, Status: model.InvoiceStatusPaid, CreatedAt: today.AddDate(0, 0, -120)},
	}, 90)

	var incomeSum, expensesSum float64
	for _, p := range s.Points {
		incomeSum += p.Income
		expensesSum += p.Expenses
	}
	// 700 размазывается по семи дням по 100, 700*0.3 = 210 - по 30.
	assert.Equal(t, 700.0, incomeSum)
	assert.Equal(t, 210.0, expensesSum)

	i := indexOf(t, s, mid.Format(DateLayout))
	for j := i - 3; j <= i+3; j++ {
		assert.Equal(t, 100.0, s.Points[j].Income)
		assert.Equal(t, 30.0, s.Points[j].Expenses)
	}
	assert.Zero(t, s.Points[i-4].Income)
	assert.Zero(t, s.Points[i+4].Income)
}

func TestBuild_FallsBackToDueDate(t *testing.T) {
	b := newTestBuilder(today)
	due := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

	s := b.Build([]model.Invoice{{Total: 400, Status: model.InvoiceStatusPaid, DueDate: due}}, 90)

	last := s.Points[len(s.Points)-1]
	// Последний день усредняется по четырём дням окна.
	assert.Equal(t, 100.0, last.Income)
}

func TestBuild_EmptyInputIsSynthetic(t *testing.T) {
	b := newTestBuilder(today)

	s := b.Build(nil, 90)
	require.Len(t, s.Points, 90)
	assert.True(t, s.Synthetic)

	for _, p := range s.Points {
		assert.GreaterOrEqual(t, p.Income, syntheticIncomeBase-syntheticVariance/2)
		assert.LessOrEqual(t, p.Income, syntheticIncomeBase+syntheticVariance/2)
		assert.GreaterOrEqual(t, p.Expenses, syntheticExpensesBase-syntheticVariance/2)
		assert.LessOrEqual(t, p.Expenses, syntheticExpensesBase+syntheticVariance/2)
	}
}

func TestSmooth(t *testing.T) {
	assert.Equal(t, make([]float64, 10), Smooth(make([]float64, 10), SmoothingWindow))

	got := Smooth([]float64{7, 0, 0, 0, 0, 0, 0, 0}, SmoothingWindow)
	assert.Equal(t, []float64{7.0 / 4, 7.0 / 5, 7.0 / 6, 1, 0, 0, 0, 0}, got)

	assert.Empty(t, Smooth(nil, SmoothingWindow))
}

func TestSeries_Trailing(t *testing.T) {
	b := newTestBuilder(today)
	full := b.Build([]model.Invoice{{Total: 100, Status: model.InvoiceStatusPaid, CreatedAt: today}}, 90)

	week := full.Trailing(7)
	require.Len(t, week.Points, 7)
	assert.Equal(t, full.Points[83:], week.Points)

	assert.Len(t, full.Trailing(120).Points, 90)
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "", want: 90},
		{in: "7d", want: 7},
		{in: "30d", want: 30},
		{in: "90", want: 90},
		{in: "14d", wantErr: true},
		{in: "week", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRange(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func indexOf(t *testing.T, s Series, date string) int {
	t.Helper()
	for i, p := range s.Points {
		if p.Date == date {
			return i
		}
	}
	t.Fatalf("date %s not in series", date)
	return -1
}
