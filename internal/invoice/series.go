package invoice

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mmeshcher/invoicer/internal/model"
)

const (
	// DefaultWindowDays - длина ряда по умолчанию.
	DefaultWindowDays = 90
	// SmoothingWindow - ширина центрированного скользящего среднего.
	SmoothingWindow = 7

	// Доля итога неоплаченного счёта, показываемая как ожидаемая выплата.
	// Это эвристика, а не бухгалтерское правило.
	expectedPayoutFraction = 0.3

	syntheticIncomeBase   = 5000.0
	syntheticExpensesBase = 4500.0
	syntheticVariance     = 2000.0
)

// Series - дневной ряд для графика. Synthetic означает, что точки
// сгенерированы, потому что у пользователя нет счетов.
type Series struct {
	Points    []model.ChartPoint `json:"points"`
	Synthetic bool               `json:"synthetic"`
}

// Trailing возвращает последние days точек ряда. Сглаживание уже посчитано
// по всему окну, поэтому значения на границе обрезки не пересчитываются.
func (s Series) Trailing(days int) Series {
	if days <= 0 || days >= len(s.Points) {
		return s
	}
	points := make([]model.ChartPoint, days)
	copy(points, s.Points[len(s.Points)-days:])
	return Series{Points: points, Synthetic: s.Synthetic}
}

// SeriesBuilder строит ряд доходов и ожидаемых выплат по дням.
type SeriesBuilder struct {
	// Location - пояс, в котором определяются календарные дни.
	Location *time.Location
	Now      func() time.Time
	Rand     *rand.Rand

	mu sync.Mutex
}

// NewSeriesBuilder создаёт построитель с календарём в UTC.
func NewSeriesBuilder() *SeriesBuilder {
	return &SeriesBuilder{
		Location: time.UTC,
		Now:      time.Now,
		Rand:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Build возвращает ровно windowDays точек, от старой к новой, последняя - сегодня.
// Без счетов возвращается синтетический ряд с флагом Synthetic.
func (b *SeriesBuilder) Build(invoices []model.Invoice, windowDays int) Series {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}

	days := b.days(windowDays)
	if len(invoices) == 0 {
		return Series{Points: b.synthetic(days), Synthetic: true}
	}

	index := make(map[string]int, len(days))
	for i, d := range days {
		index[d] = i
	}

	income := make([]float64, len(days))
	expenses := make([]float64, len(days))

	for _, inv := range invoices {
		var key string
		switch {
		case !inv.CreatedAt.IsZero():
			key = inv.CreatedAt.In(b.location()).Format(DateLayout)
		case !inv.DueDate.IsZero():
			// Срок оплаты уже календарная дата, пояс к ней не применяется.
			key = inv.DueDate.Format(DateLayout)
		default:
			continue
		}

		i, ok := index[key]
		if !ok {
			continue
		}

		if inv.Status == model.InvoiceStatusPaid {
			income[i] += inv.Total
		} else {
			expenses[i] += inv.Total * expectedPayoutFraction
		}
	}

	income = Smooth(income, SmoothingWindow)
	expenses = Smooth(expenses, SmoothingWindow)

	points := make([]model.ChartPoint, len(days))
	for i, d := range days {
		points[i] = model.ChartPoint{
			Date:     d,
			Income:   math.Round(income[i]),
			Expenses: math.Round(expenses[i]),
		}
	}

	return Series{Points: points}
}

// Smooth применяет центрированное скользящее среднее шириной window.
// У краёв ряда окно усекается, а не дополняется.
func Smooth(values []float64, window int) []float64 {
	res := make([]float64, len(values))
	if window < 1 {
		copy(res, values)
		return res
	}

	half := window / 2
	for i := range values {
		start := max(0, i-half)
		end := min(len(values), i+half+1)

		var sum float64
		for _, v := range values[start:end] {
			sum += v
		}
		res[i] = sum / float64(end-start)
	}
	return res
}

// ParseRange разбирает диапазон графика вида "7d", "30d", "90d".
// Пустая строка означает окно по умолчанию.
func ParseRange(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultWindowDays, nil
	}

	n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
	if err != nil {
		return 0, fmt.Errorf("parse range %q: %w", s, err)
	}

	switch n {
	case 7, 30, 90:
		return n, nil
	}
	return 0, fmt.Errorf("unsupported range %q", s)
}

func (b *SeriesBuilder) days(windowDays int) []string {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	y, m, d := now().In(b.location()).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	res := make([]string, windowDays)
	for i := range res {
		res[i] = today.AddDate(0, 0, i-windowDays+1).Format(DateLayout)
	}
	return res
}

// synthetic строит ограниченное случайное блуждание вокруг базовых уровней.
func (b *SeriesBuilder) synthetic(days []string) []model.ChartPoint {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Rand == nil {
		b.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	r := b.Rand

	income, expenses := syntheticIncomeBase, syntheticExpensesBase
	step := syntheticVariance / 4

	points := make([]model.ChartPoint, len(days))
	for i, d := range days {
		income = walk(income+(r.Float64()-0.5)*step, syntheticIncomeBase)
		expenses = walk(expenses+(r.Float64()-0.5)*step, syntheticExpensesBase)

		points[i] = model.ChartPoint{
			Date:     d,
			Income:   math.Round(income),
			Expenses: math.Round(expenses),
		}
	}
	return points
}

func walk(v, base float64) float64 {
	lo, hi := base-syntheticVariance/2, base+syntheticVariance/2
	return math.Min(hi, math.Max(lo, v))
}

func (b *SeriesBuilder) location() *time.Location {
	if b.Location == nil {
		return time.UTC
	}
	return b.Location
}
