package clactivity

import (
	"context"
	"time"

	"trackapi/internal/models/clgeo"
	"trackapi/internal/models/clmetrics"
	"trackapi/internal/models/clrequest"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// RetentionSchedule déclenche la purge tous les jours à 2h du matin
const RetentionSchedule = "0 2 * * *"

type Service struct {
	store Store
	geo   *clgeo.Resolver
	cron  *cron.Cron
}

// NewService démarre la purge quotidienne seulement si retentionDays > 0
func NewService(store Store, geo *clgeo.Resolver, retentionDays int) *Service {
	s := &Service{
		store: store,
		geo:   geo,
	}
	if retentionDays > 0 {
		s.cron = setupRetentionCron(store, retentionDays)
	}
	return s
}

// Log géolocalise l'adresse déclarée par le client, sinon celle vue par le
// serveur, puis ajoute l'entrée. L'écriture n'est pas annulée si le client part.
func (s *Service) Log(ctx context.Context, serverIP string, req clrequest.LogRequest) (*Entry, error) {
	entry := &Entry{
		ServerDetectedIP: serverIP,
		ClientReportedIP: req.IPFromClient,
		UserAgent:        req.UserAgent,
		Page:             req.Page,
		Note:             req.Note,
	}

	target := req.IPFromClient
	if target == "" {
		target = serverIP
	}
	entry.Geo = s.geo.Resolve(ctx, target)

	if _, _, err := s.store.Append(context.WithoutCancel(ctx), entry); err != nil {
		clmetrics.PersistenceErrors.WithLabelValues("activity_append").Inc()
		return nil, err
	}

	clmetrics.ActivityEntries.Inc()
	if entry.Geo != nil {
		clmetrics.ActivityGeoEnriched.Inc()
	}
	return entry, nil
}

func (s *Service) Recent(ctx context.Context, limit int, before *time.Time) ([]Row, error) {
	rows, err := s.store.Query(ctx, limit, before)
	if err != nil {
		clmetrics.PersistenceErrors.WithLabelValues("activity_query").Inc()
		return nil, err
	}
	return rows, nil
}

func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func purgeOlderThan(ctx context.Context, store Store, days int, now time.Time) (int64, error) {
	return store.PurgeBefore(ctx, now.AddDate(0, 0, -days))
}

func setupRetentionCron(store Store, days int) *cron.Cron {
	c := cron.New()

	c.AddFunc(RetentionSchedule, func() {
		deleted, err := purgeOlderThan(context.Background(), store, days, time.Now())
		if err != nil {
			log.Error().Err(err).Int("retention_days", days).Msg("activity purge failed")
			return
		}
		log.Info().Int64("deleted", deleted).Int("retention_days", days).Msg("activity purge completed")
	})

	c.Start()
	return c
}
