package clengagement

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// clickRecord porte l'index unique (order_id, session_id) qui rend l'upsert atomique
type clickRecord struct {
	ID        uint64            `gorm:"primaryKey"`
	OrderID   string            `gorm:"size:191;not null;uniqueIndex:idx_payment_click_key,priority:1"`
	SessionID string            `gorm:"size:191;not null;uniqueIndex:idx_payment_click_key,priority:2"`
	Clicks    int64             `gorm:"not null"`
	Currency  string            `gorm:"size:64"`
	Amount    string            `gorm:"size:255"`
	Address   string            `gorm:"size:255"`
	IP        string            `gorm:"size:255"`
	UserAgent string            `gorm:"size:1024"`
	Meta      datatypes.JSONMap `gorm:"type:json"`
	FirstAt   time.Time         `gorm:"index;not null"`
	LastAt    time.Time         `gorm:"index;not null"`
}

func (clickRecord) TableName() string {
	return "payment_clicks"
}

func (r clickRecord) toRecord() Record {
	return Record{
		OrderID:   r.OrderID,
		SessionID: r.SessionID,
		Clicks:    r.Clicks,
		Currency:  r.Currency,
		Amount:    r.Amount,
		Address:   r.Address,
		IP:        r.IP,
		UserAgent: r.UserAgent,
		Meta:      map[string]any(r.Meta),
		FirstAt:   r.FirstAt.UTC(),
		LastAt:    r.LastAt.UTC(),
	}
}

type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&clickRecord{}); err != nil {
		return nil, fmt.Errorf("migrate payment clicks: %w", err)
	}
	return &GormStore{db: db, now: time.Now}, nil
}

// RecordClick insère le compteur à 1 ou l'incrémente en une seule requête
// (ON CONFLICT sous sqlite, ON DUPLICATE KEY sous mysql), puis relit la
// valeur dans la même transaction
func (s *GormStore) RecordClick(ctx context.Context, c Click) (int64, error) {
	if err := normalize(&c); err != nil {
		return 0, err
	}
	now := s.now().UTC()

	rec := clickRecord{
		OrderID:   c.OrderID,
		SessionID: c.SessionID,
		Clicks:    1,
		Currency:  c.Currency,
		Amount:    c.Amount,
		Address:   c.Address,
		IP:        c.IP,
		UserAgent: c.UserAgent,
		Meta:      datatypes.JSONMap(c.Meta),
		FirstAt:   now,
		LastAt:    now,
	}

	upsert := clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}, {Name: "session_id"}},
		DoUpdates: append(
			clause.AssignmentColumns([]string{"currency", "amount", "address", "ip", "user_agent", "last_at"}),
			clause.Assignments(map[string]any{"clicks": gorm.Expr("clicks + 1")})...,
		),
	}

	var current clickRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(upsert).Create(&rec).Error; err != nil {
			return err
		}
		return tx.Select("clicks").
			Where("order_id = ? AND session_id = ?", c.OrderID, c.SessionID).
			Take(&current).Error
	})
	if err != nil {
		return 0, fmt.Errorf("upsert payment click: %w", err)
	}
	return current.Clicks, nil
}

func (s *GormStore) Stats(ctx context.Context, windowDays int) (*Stats, error) {
	windowDays = clampWindow(windowDays)
	now := s.now().UTC()
	db := s.db.WithContext(ctx)

	stats := &Stats{WindowDays: windowDays, ByDay: []DayCount{}}

	// 1. Nombre de compteurs
	if err := db.Model(&clickRecord{}).Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("count payment clicks: %w", err)
	}

	// 2. Somme des clics
	if err := db.Model(&clickRecord{}).Select("COALESCE(SUM(clicks), 0)").Row().Scan(&stats.TotalClicks); err != nil {
		return nil, fmt.Errorf("sum payment clicks: %w", err)
	}

	// 3. Compteurs créés sur les dernières 24h
	if err := db.Model(&clickRecord{}).
		Where("first_at >= ?", now.Add(-24*time.Hour)).
		Count(&stats.Last24h).Error; err != nil {
		return nil, fmt.Errorf("count last 24h: %w", err)
	}

	// 4. Répartition par jour de création
	var days []DayCount
	err := db.Model(&clickRecord{}).
		Select("DATE(first_at) as date, COUNT(*) as count").
		Where("first_at >= ?", windowStart(now, windowDays)).
		Group("DATE(first_at)").
		Order("date ASC").
		Scan(&days).Error
	if err != nil {
		return nil, fmt.Errorf("group payment clicks by day: %w", err)
	}
	for _, d := range days {
		// mysql renvoie un horodatage complet, sqlite une date
		if len(d.Date) > len(dayLayout) {
			d.Date = d.Date[:len(dayLayout)]
		}
		stats.ByDay = append(stats.ByDay, d)
	}

	return stats, nil
}

func (s *GormStore) List(ctx context.Context, limit int) ([]Record, error) {
	var recs []clickRecord
	err := s.db.WithContext(ctx).
		Order("last_at DESC").
		Limit(clampLimit(limit)).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list payment clicks: %w", err)
	}
	return toRecords(recs), nil
}

func (s *GormStore) ByOrder(ctx context.Context, orderID string) (*OrderTotal, error) {
	var recs []clickRecord
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("first_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("payment clicks for order: %w", err)
	}

	out := &OrderTotal{OrderID: orderID, Rows: toRecords(recs)}
	for _, r := range recs {
		out.Total += r.Clicks
	}
	return out, nil
}

func toRecords(recs []clickRecord) []Record {
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toRecord())
	}
	return out
}
