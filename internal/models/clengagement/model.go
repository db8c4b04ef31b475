package clengagement

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultWindowDays = 14
	MaxWindowDays     = 90

	DefaultLimit = 50
	MaxLimit     = 1000

	dayLayout = "2006-01-02"
)

var ErrOrderIDRequired = errors.New("orderId required")

// Click est un événement de clic déjà normalisé
type Click struct {
	OrderID   string
	SessionID string
	Amount    string
	Currency  string
	Address   string
	IP        string
	UserAgent string
	Meta      map[string]any
}

// Record est l'état d'un compteur (orderId, sessionId)
type Record struct {
	OrderID   string         `json:"orderId" bson:"orderId"`
	SessionID string         `json:"sessionId" bson:"sessionId"`
	Clicks    int64          `json:"clicks" bson:"clicks"`
	Currency  string         `json:"currency" bson:"currency"`
	Amount    string         `json:"amount" bson:"amount"`
	Address   string         `json:"address" bson:"address"`
	IP        string         `json:"ip" bson:"ip"`
	UserAgent string         `json:"userAgent" bson:"userAgent"`
	Meta      map[string]any `json:"meta,omitempty" bson:"meta,omitempty"`
	FirstAt   time.Time      `json:"firstAt" bson:"firstAt"`
	LastAt    time.Time      `json:"lastAt" bson:"lastAt"`
}

type DayCount struct {
	Date  string `json:"date" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

type Stats struct {
	Total       int64      `json:"total"`
	TotalClicks int64      `json:"totalClicks"`
	Last24h     int64      `json:"last24h"`
	ByDay       []DayCount `json:"byDay"`
	WindowDays  int        `json:"windowDays"`
}

type OrderTotal struct {
	OrderID string   `json:"orderId"`
	Total   int64    `json:"total"`
	Rows    []Record `json:"rows"`
}

// Store est implémenté par le backend SQL (gorm) et par MongoDB. RecordClick
// doit rester une seule opération atomique côté base.
type Store interface {
	RecordClick(ctx context.Context, c Click) (int64, error)
	Stats(ctx context.Context, windowDays int) (*Stats, error)
	List(ctx context.Context, limit int) ([]Record, error)
	ByOrder(ctx context.Context, orderID string) (*OrderTotal, error)
}

// ClampWindow convertit le paramètre days: 14 par défaut, borné à [1, 90]
func ClampWindow(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultWindowDays
	}
	return clampWindow(n)
}

func clampWindow(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxWindowDays {
		return MaxWindowDays
	}
	return n
}

// ClampLimit convertit le paramètre limit: 50 par défaut, borné à [1, 1000]
func ClampLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultLimit
	}
	return clampLimit(n)
}

func clampLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

func normalize(c *Click) error {
	c.OrderID = strings.TrimSpace(c.OrderID)
	c.SessionID = strings.TrimSpace(c.SessionID)
	if c.OrderID == "" {
		return ErrOrderIDRequired
	}
	return nil
}

// windowStart renvoie minuit UTC du premier jour de la fenêtre, aujourd'hui inclus
func windowStart(now time.Time, windowDays int) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(windowDays - 1))
}
