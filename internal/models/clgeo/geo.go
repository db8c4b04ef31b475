package clgeo

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"time"

	"trackapi/internal/models/clmetrics"

	"github.com/rs/zerolog/log"
)

// Record est la forme canonique d'une géolocalisation. Un champ nil est inconnu,
// une chaîne vide a bien été renvoyée vide par le fournisseur.
type Record struct {
	IP        string   `json:"ip" bson:"ip"`
	City      *string  `json:"city,omitempty" bson:"city,omitempty"`
	Region    *string  `json:"region,omitempty" bson:"region,omitempty"`
	Country   *string  `json:"country,omitempty" bson:"country,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty" bson:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty" bson:"longitude,omitempty"`
	ASN       *string  `json:"asn,omitempty" bson:"asn,omitempty"`
	Org       *string  `json:"org,omitempty" bson:"org,omitempty"`
	Timezone  *string  `json:"timezone,omitempty" bson:"timezone,omitempty"`
}

// Provider interroge une source de géolocalisation. (nil, nil) signifie que la
// source n'a rien pour cette adresse.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, ip string) (*Record, error)
}

// Cache mémorise les résolutions réussies. Les erreurs restent internes au cache.
type Cache interface {
	Get(ctx context.Context, ip string) (*Record, bool)
	Set(ctx context.Context, ip string, rec *Record, ttl time.Duration)
}

// Resolver essaie les fournisseurs l'un après l'autre, chacun borné par timeout
type Resolver struct {
	providers []Provider
	timeout   time.Duration
	cache     Cache
	cacheTTL  time.Duration
}

func NewResolver(timeout time.Duration, providers ...Provider) *Resolver {
	return &Resolver{
		providers: providers,
		timeout:   timeout,
	}
}

// WithCache place un cache devant la chaîne de fournisseurs
func (r *Resolver) WithCache(cache Cache, ttl time.Duration) *Resolver {
	r.cache = cache
	r.cacheTTL = ttl
	return r
}

// Providers renvoie les noms des fournisseurs dans l'ordre d'essai
func (r *Resolver) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	return names
}

// Resolve ne renvoie jamais d'erreur: toute défaillance d'un fournisseur passe au
// suivant et l'épuisement de la chaîne donne nil.
func (r *Resolver) Resolve(ctx context.Context, ip string) *Record {
	if r == nil {
		return nil
	}
	ip = strings.TrimSpace(ip)
	if !IsResolvable(ip) {
		clmetrics.GeoLookups.WithLabelValues("none", clmetrics.GeoSkipped).Inc()
		return nil
	}

	start := time.Now()
	defer func() {
		clmetrics.GeoResolveDuration.Observe(float64(time.Since(start).Milliseconds()))
	}()

	if r.cache != nil {
		if rec, ok := r.cache.Get(ctx, ip); ok {
			clmetrics.GeoCacheHits.Inc()
			return rec
		}
	}

	for _, p := range r.providers {
		rec, outcome := r.try(ctx, p, ip)
		clmetrics.GeoLookups.WithLabelValues(p.Name(), outcome).Inc()
		if rec == nil {
			continue
		}
		if rec.IP == "" {
			rec.IP = ip
		}
		if r.cache != nil {
			r.cache.Set(ctx, ip, rec, r.cacheTTL)
		}
		return rec
	}
	return nil
}

func (r *Resolver) try(ctx context.Context, p Provider, ip string) (*Record, string) {
	pctx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	rec, err := p.Lookup(pctx, ip)
	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(pctx.Err(), context.DeadlineExceeded)):
		log.Warn().Str("provider", p.Name()).Str("ip", ip).Dur("timeout", r.timeout).Msg("geo provider timed out")
		return nil, clmetrics.GeoTimeout
	case err != nil:
		log.Debug().Err(err).Str("provider", p.Name()).Str("ip", ip).Msg("geo provider failed")
		return nil, clmetrics.GeoError
	case rec == nil:
		return nil, clmetrics.GeoMiss
	}
	return rec, clmetrics.GeoHit
}

// IsResolvable indique si l'adresse mérite un appel réseau. Les adresses vides,
// invalides, de bouclage, lien-local, non spécifiées ou privées sont écartées.
func IsResolvable(ip string) bool {
	if ip == "" {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return !(addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified() ||
		addr.IsPrivate() ||
		addr.IsMulticast())
}

func strPtr(s string) *string {
	return &s
}

// nonEmpty renvoie le premier pointeur non vide, sinon le premier non nil
func nonEmpty(values ...*string) *string {
	for _, v := range values {
		if v != nil && *v != "" {
			return v
		}
	}
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
