package clactivity

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"trackapi/internal/models/clgeo"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Entry est un événement du journal de visites, jamais modifié après insertion
type Entry struct {
	ID               string
	ServerDetectedIP string
	ClientReportedIP string
	UserAgent        string
	Page             string
	Note             string
	Geo              *clgeo.Record
	CreatedAt        time.Time
}

// Row est la projection renvoyée par Query
type Row struct {
	ID               string      `json:"id" bson:"_id"`
	CreatedAt        time.Time   `json:"createdAt" bson:"createdAt"`
	ServerDetectedIP string      `json:"serverDetectedIp" bson:"serverDetectedIp"`
	ClientReportedIP string      `json:"clientReportedIp" bson:"clientReportedIp"`
	Page             string      `json:"page" bson:"page"`
	Geo              *GeoSummary `json:"geo,omitempty" bson:"geo,omitempty"`
}

type GeoSummary struct {
	City    *string `json:"city,omitempty" bson:"city,omitempty"`
	Region  *string `json:"region,omitempty" bson:"region,omitempty"`
	Country *string `json:"country,omitempty" bson:"country,omitempty"`
}

// Store est implémenté par le backend SQL (gorm) et par MongoDB
type Store interface {
	Append(ctx context.Context, e *Entry) (string, time.Time, error)
	Query(ctx context.Context, limit int, before *time.Time) ([]Row, error)
	PurgeBefore(ctx context.Context, t time.Time) (int64, error)
}

// ClampLimit convertit le paramètre limit: absent ou illisible donne 50,
// sinon la valeur est bornée à [1, 1000]
func ClampLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultLimit
	}
	return clamp(n)
}

func clamp(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// ParseCursor lit un curseur horodaté. Une chaîne vide donne nil.
func ParseCursor(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	t = t.UTC()
	return &t, nil
}

// NextCursor renvoie le curseur de la page suivante quand la page est pleine
func NextCursor(rows []Row, limit int) string {
	if len(rows) == 0 || len(rows) < limit {
		return ""
	}
	return rows[len(rows)-1].CreatedAt.UTC().Format(time.RFC3339Nano)
}

func prepare(e *Entry, now func() time.Time) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}
	e.CreatedAt = e.CreatedAt.UTC()
}

func summarize(city, region, country *string) *GeoSummary {
	if city == nil && region == nil && country == nil {
		return nil
	}
	return &GeoSummary{City: city, Region: region, Country: country}
}
