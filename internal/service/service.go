// Package service реализует бизнес-логику сервиса счетов: все операции
// выполняются от имени владельца и проходят через калькулятор счёта.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/mmeshcher/invoicer/internal/invoice"
	"github.com/mmeshcher/invoicer/internal/metrics"
	"github.com/mmeshcher/invoicer/internal/model"
)

// Repository описывает контракт хранилища счетов, используемый сервисом.
type Repository interface {
	Create(ctx context.Context, ownerID string, d invoice.Draft) (*model.Invoice, error)
	List(ctx context.Context, ownerID string, status *model.InvoiceStatus) ([]model.Invoice, error)
	Get(ctx context.Context, id string) (*model.Invoice, error)
	Update(ctx context.Context, id string, d invoice.Draft) (*model.Invoice, error)
	Delete(ctx context.Context, id string) error
}

// StatsCache описывает кэш сводной статистики.
type StatsCache interface {
	Get(ctx context.Context, ownerID string) (*model.Stats, bool)
	Set(ctx context.Context, ownerID string, stats model.Stats)
	Invalidate(ctx context.Context, ownerID string)
}

// ListFilter задаёт отбор счетов в списке.
type ListFilter struct {
	Status *model.InvoiceStatus
	// Search - подстрока имени клиента без учёта регистра.
	Search string
}

// Service содержит бизнес-логику сервиса счетов.
type Service struct {
	repo     Repository
	cache    StatsCache
	series   *invoice.SeriesBuilder
	location *time.Location
	now      func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLocation задаёт пояс, в котором считаются календарные дни.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithClock задаёт источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт сервис. cache может быть nil.
func NewService(repo Repository, cache StatsCache, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		cache:    cache,
		location: time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.series = invoice.NewSeriesBuilder()
	s.series.Location = s.location
	s.series.Now = s.now

	return s
}

func (s *Service) today() time.Time {
	return s.now().In(s.location)
}

// CreateInvoice проверяет форму, вычисляет производные поля и сохраняет счёт.
func (s *Service) CreateInvoice(ctx context.Context, ownerID string, in invoice.Input) (inv *model.Invoice, err error) {
	defer observe("create", &err)

	draft, err := invoice.Prepare(in, s.today())
	if err != nil {
		return nil, err
	}

	inv, err = s.repo.Create(ctx, ownerID, draft)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, ownerID)
	return inv, nil
}

// ListInvoices возвращает счета владельца, новые первыми.
func (s *Service) ListInvoices(ctx context.Context, ownerID string, f ListFilter) ([]model.Invoice, error) {
	list, err := s.repo.List(ctx, ownerID, f.Status)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(f.Search))
	if search == "" {
		return list, nil
	}

	res := make([]model.Invoice, 0, len(list))
	for _, inv := range list {
		if strings.Contains(strings.ToLower(inv.ClientName), search) {
			res = append(res, inv)
		}
	}
	return res, nil
}

// GetInvoice возвращает счёт владельца. Чужой счёт неотличим от отсутствующего.
func (s *Service) GetInvoice(ctx context.Context, ownerID, id string) (*model.Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.OwnerID != ownerID {
		return nil, &invoice.NotFoundError{ID: id}
	}
	return inv, nil
}

// UpdateInvoice накладывает изменения на счёт и заново вычисляет НДС и итог.
func (s *Service) UpdateInvoice(ctx context.Context, ownerID, id string, upd invoice.UpdateInput) (inv *model.Invoice, err error) {
	defer observe("update", &err)

	current, err := s.GetInvoice(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	draft, err := invoice.PrepareUpdate(*current, upd, s.today())
	if err != nil {
		return nil, err
	}

	inv, err = s.repo.Update(ctx, id, draft)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, ownerID)
	return inv, nil
}

// DeleteInvoice удаляет счёт владельца.
func (s *Service) DeleteInvoice(ctx context.Context, ownerID, id string) (err error) {
	defer observe("delete", &err)

	if _, err = s.GetInvoice(ctx, ownerID, id); err != nil {
		return err
	}
	if err = s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx, ownerID)
	return nil
}

// Stats возвращает сводную статистику владельца.
func (s *Service) Stats(ctx context.Context, ownerID string) (model.Stats, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, ownerID); ok {
			return *cached, nil
		}
	}

	list, err := s.repo.List(ctx, ownerID, nil)
	if err != nil {
		return model.Stats{}, err
	}

	stats := invoice.Aggregate(list)
	if s.cache != nil {
		s.cache.Set(ctx, ownerID, stats)
	}
	return stats, nil
}

// Chart строит 90-дневный ряд и возвращает последние days точек.
func (s *Service) Chart(ctx context.Context, ownerID string, days int) (invoice.Series, error) {
	list, err := s.repo.List(ctx, ownerID, nil)
	if err != nil {
		return invoice.Series{}, err
	}
	return s.series.Build(list, invoice.DefaultWindowDays).Trailing(days), nil
}

func (s *Service) invalidate(ctx context.Context, ownerID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, ownerID)
	}
}

func observe(op string, err *error) {
	metrics.InvoiceOperations.WithLabelValues(op, metrics.Outcome(*err)).Inc()
}
