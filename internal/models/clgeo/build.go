package clgeo

import (
	"net/http"

	"trackapi/internal/models/clconfig"

	"github.com/rs/zerolog/log"
)

// NewFromConfig assemble la chaîne: ipinfo si un token est présent, ipapi, puis
// la base maxmind locale si un chemin est donné. Le lecteur maxmind renvoyé peut être nil.
func NewFromConfig(cfg clconfig.GeoConfig, client *http.Client) (*Resolver, *Maxmind) {
	if !cfg.Enabled {
		return nil, nil
	}
	if client == nil {
		client = &http.Client{}
	}

	var providers []Provider
	if cfg.IpinfoToken != "" {
		providers = append(providers, NewIpinfo(cfg.IpinfoToken, client))
	}
	providers = append(providers, NewIpapi(client))

	var mm *Maxmind
	if cfg.MaxmindDb != "" {
		var err error
		mm, err = OpenMaxmind(cfg.MaxmindDb, cfg.MaxmindAsnDb)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.MaxmindDb).Msg("maxmind provider disabled")
		} else {
			providers = append(providers, mm)
		}
	}

	r := NewResolver(cfg.Timeout(), providers...)
	log.Info().Strs("providers", r.Providers()).Dur("timeout", cfg.Timeout()).Msg("geo resolver ready")
	return r, mm
}
