package clactivity

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// logRecord est la ligne SQL d'une Entry, la géolocalisation est aplatie en colonnes geo_*
type logRecord struct {
	ID               string     `gorm:"primaryKey;size:36"`
	ServerDetectedIP string     `gorm:"size:255"`
	ClientReportedIP string     `gorm:"size:255"`
	UserAgent        string     `gorm:"size:1024"`
	Page             string     `gorm:"size:1024"`
	Note             string     `gorm:"size:1024"`
	Geo              geoColumns `gorm:"embedded;embeddedPrefix:geo_"`
	CreatedAt        time.Time  `gorm:"index;not null"`
}

type geoColumns struct {
	IP        *string `gorm:"size:64"`
	City      *string `gorm:"size:255"`
	Region    *string `gorm:"size:255"`
	Country   *string `gorm:"size:255"`
	Latitude  *float64
	Longitude *float64
	ASN       *string `gorm:"size:64"`
	Org       *string `gorm:"size:255"`
	Timezone  *string `gorm:"size:64"`
}

func (logRecord) TableName() string {
	return "activity_logs"
}

type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&logRecord{}); err != nil {
		return nil, fmt.Errorf("migrate activity logs: %w", err)
	}
	return &GormStore{db: db, now: time.Now}, nil
}

func (s *GormStore) Append(ctx context.Context, e *Entry) (string, time.Time, error) {
	prepare(e, s.now)

	rec := logRecord{
		ID:               e.ID,
		ServerDetectedIP: e.ServerDetectedIP,
		ClientReportedIP: e.ClientReportedIP,
		UserAgent:        e.UserAgent,
		Page:             e.Page,
		Note:             e.Note,
		CreatedAt:        e.CreatedAt,
	}
	if g := e.Geo; g != nil {
		rec.Geo = geoColumns{
			IP:        &g.IP,
			City:      g.City,
			Region:    g.Region,
			Country:   g.Country,
			Latitude:  g.Latitude,
			Longitude: g.Longitude,
			ASN:       g.ASN,
			Org:       g.Org,
			Timezone:  g.Timezone,
		}
	}

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", time.Time{}, fmt.Errorf("insert activity log: %w", err)
	}
	return e.ID, e.CreatedAt, nil
}

func (s *GormStore) Query(ctx context.Context, limit int, before *time.Time) ([]Row, error) {
	q := s.db.WithContext(ctx).
		Model(&logRecord{}).
		Select("id, created_at, server_detected_ip, client_reported_ip, page, geo_city, geo_region, geo_country").
		Order("created_at DESC, id DESC").
		Limit(clamp(limit))
	if before != nil {
		q = q.Where("created_at < ?", before.UTC())
	}

	var recs []logRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("query activity logs: %w", err)
	}

	rows := make([]Row, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, Row{
			ID:               r.ID,
			CreatedAt:        r.CreatedAt.UTC(),
			ServerDetectedIP: r.ServerDetectedIP,
			ClientReportedIP: r.ClientReportedIP,
			Page:             r.Page,
			Geo:              summarize(r.Geo.City, r.Geo.Region, r.Geo.Country),
		})
	}
	return rows, nil
}

func (s *GormStore) PurgeBefore(ctx context.Context, t time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", t.UTC()).Delete(&logRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("purge activity logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
