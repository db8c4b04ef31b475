package clgeo

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/oschwald/geoip2-golang/v2"
)

// Maxmind lit une base GeoLite2/GeoIP2 locale, sans appel réseau.
// La base ASN est facultative.
type Maxmind struct {
	city *geoip2.Reader
	asn  *geoip2.Reader
}

func OpenMaxmind(cityPath, asnPath string) (*Maxmind, error) {
	city, err := geoip2.Open(cityPath)
	if err != nil {
		return nil, fmt.Errorf("maxmind city database: %w", err)
	}
	m := &Maxmind{city: city}

	if asnPath != "" {
		asn, err := geoip2.Open(asnPath)
		if err != nil {
			city.Close()
			return nil, fmt.Errorf("maxmind asn database: %w", err)
		}
		m.asn = asn
	}
	return m, nil
}

func (m *Maxmind) Name() string { return "maxmind" }

func (m *Maxmind) Lookup(ctx context.Context, ip string) (*Record, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	city, err := m.city.City(addr)
	if err != nil {
		return nil, err
	}
	if !city.HasData() {
		return nil, nil
	}

	rec := &Record{IP: ip}
	if name := city.City.Names.English; name != "" {
		rec.City = strPtr(name)
	}
	if len(city.Subdivisions) > 0 && city.Subdivisions[0].Names.English != "" {
		rec.Region = strPtr(city.Subdivisions[0].Names.English)
	}
	if code := city.Country.ISOCode; code != "" {
		rec.Country = strPtr(code)
	}
	rec.Latitude = city.Location.Latitude
	rec.Longitude = city.Location.Longitude
	if tz := city.Location.TimeZone; tz != "" {
		rec.Timezone = strPtr(tz)
	}

	if m.asn != nil {
		asn, err := m.asn.ASN(addr)
		if err == nil && asn.AutonomousSystemNumber != 0 {
			rec.ASN = strPtr(fmt.Sprintf("AS%d", asn.AutonomousSystemNumber))
			if asn.AutonomousSystemOrganization != "" {
				rec.Org = strPtr(asn.AutonomousSystemOrganization)
			}
		}
	}
	return rec, nil
}

func (m *Maxmind) Close() error {
	var errs []error
	if m.city != nil {
		errs = append(errs, m.city.Close())
	}
	if m.asn != nil {
		errs = append(errs, m.asn.Close())
	}
	return errors.Join(errs...)
}
