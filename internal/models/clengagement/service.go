package clengagement

import (
	"context"
	"errors"

	"trackapi/internal/clredis"
	"trackapi/internal/models/clmetrics"

	"github.com/rs/zerolog/log"
)

var ErrRealtimeUnavailable = errors.New("realtime counters require redis")

type Service struct {
	store    Store
	realtime *clredis.ClickCounter
}

// NewService accepte un compteur redis nil, les stats temps réel sont alors indisponibles
func NewService(store Store, realtime *clredis.ClickCounter) *Service {
	return &Service{
		store:    store,
		realtime: realtime,
	}
}

// RecordClick incrémente le compteur durable puis, au mieux, le compteur du jour
func (s *Service) RecordClick(ctx context.Context, c Click) (int64, error) {
	ctx = context.WithoutCancel(ctx)

	clicks, err := s.store.RecordClick(ctx, c)
	if errors.Is(err, ErrOrderIDRequired) {
		clmetrics.PaymentClicksRejected.Inc()
		return 0, err
	}
	if err != nil {
		clmetrics.PersistenceErrors.WithLabelValues("click_upsert").Inc()
		return 0, err
	}
	clmetrics.PaymentClicks.Inc()

	if s.realtime != nil {
		if err := s.realtime.Incr(ctx, c.OrderID); err != nil {
			log.Warn().Err(err).Str("order_id", c.OrderID).Msg("realtime click counter failed")
		}
	}
	return clicks, nil
}

func (s *Service) Stats(ctx context.Context, windowDays int) (*Stats, error) {
	stats, err := s.store.Stats(ctx, windowDays)
	if err != nil {
		clmetrics.PersistenceErrors.WithLabelValues("click_stats").Inc()
	}
	return stats, err
}

func (s *Service) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.store.List(ctx, limit)
	if err != nil {
		clmetrics.PersistenceErrors.WithLabelValues("click_list").Inc()
	}
	return rows, err
}

func (s *Service) ByOrder(ctx context.Context, orderID string) (*OrderTotal, error) {
	out, err := s.store.ByOrder(ctx, orderID)
	if err != nil {
		clmetrics.PersistenceErrors.WithLabelValues("click_by_order").Inc()
	}
	return out, err
}

func (s *Service) Realtime(ctx context.Context) (*clredis.Realtime, error) {
	if s.realtime == nil {
		return nil, ErrRealtimeUnavailable
	}
	return s.realtime.Today(ctx)
}
