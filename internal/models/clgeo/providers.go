package clgeo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	IpinfoBaseURL = "https://ipinfo.io"
	IpapiBaseURL  = "https://ipapi.co"

	maxResponseBytes = 64 << 10
)

// Ipinfo interroge ipinfo.io, utilisé seulement avec un token
type Ipinfo struct {
	Token   string
	BaseURL string
	Client  *http.Client
}

type ipinfoResponse struct {
	IP       *string          `json:"ip"`
	City     *string          `json:"city"`
	Region   *string          `json:"region"`
	Country  *string          `json:"country"`
	Loc      *string          `json:"loc"`
	Org      *string          `json:"org"`
	Timezone *string          `json:"timezone"`
	Bogon    bool             `json:"bogon"`
	Error    *json.RawMessage `json:"error"`
}

func NewIpinfo(token string, client *http.Client) *Ipinfo {
	if client == nil {
		client = http.DefaultClient
	}
	return &Ipinfo{Token: token, BaseURL: IpinfoBaseURL, Client: client}
}

func (p *Ipinfo) Name() string { return "ipinfo" }

func (p *Ipinfo) Lookup(ctx context.Context, ip string) (*Record, error) {
	u := strings.TrimRight(p.BaseURL, "/") + "/" + url.PathEscape(ip)
	if p.Token != "" {
		u += "?" + url.Values{"token": {p.Token}}.Encode()
	}

	var body ipinfoResponse
	if err := getJSON(ctx, p.Client, u, &body); err != nil {
		return nil, fmt.Errorf("ipinfo: %w", err)
	}
	if body.Error != nil {
		return nil, fmt.Errorf("ipinfo: error payload %s", string(*body.Error))
	}
	if body.Bogon {
		return nil, nil
	}

	rec := &Record{
		IP:       ip,
		City:     body.City,
		Region:   body.Region,
		Country:  body.Country,
		Org:      body.Org,
		Timezone: body.Timezone,
	}
	if body.IP != nil && *body.IP != "" {
		rec.IP = *body.IP
	}
	if body.Loc != nil {
		rec.Latitude, rec.Longitude = ParseLoc(*body.Loc)
	}
	if body.Org != nil {
		rec.ASN = ParseASN(*body.Org)
	}
	return rec, nil
}

// Ipapi interroge ipapi.co, sans clé mais avec des quotas plus bas
type Ipapi struct {
	BaseURL string
	Client  *http.Client
}

type ipapiResponse struct {
	IP          *string  `json:"ip"`
	City        *string  `json:"city"`
	Region      *string  `json:"region"`
	RegionCode  *string  `json:"region_code"`
	CountryName *string  `json:"country_name"`
	Country     *string  `json:"country"`
	Latitude    optFloat `json:"latitude"`
	Longitude   optFloat `json:"longitude"`
	ASN         *string  `json:"asn"`
	Org         *string  `json:"org"`
	OrgName     *string  `json:"org_name"`
	Timezone    *string  `json:"timezone"`
	Error       bool     `json:"error"`
	Reason      string   `json:"reason"`
	Reserved    bool     `json:"reserved"`
}

func NewIpapi(client *http.Client) *Ipapi {
	if client == nil {
		client = http.DefaultClient
	}
	return &Ipapi{BaseURL: IpapiBaseURL, Client: client}
}

func (p *Ipapi) Name() string { return "ipapi" }

func (p *Ipapi) Lookup(ctx context.Context, ip string) (*Record, error) {
	u := strings.TrimRight(p.BaseURL, "/") + "/" + url.PathEscape(ip) + "/json/"

	var body ipapiResponse
	if err := getJSON(ctx, p.Client, u, &body); err != nil {
		return nil, fmt.Errorf("ipapi: %w", err)
	}
	// ipapi répond 200 avec {"error": true} quand le quota est dépassé
	if body.Error {
		if body.Reserved {
			return nil, nil
		}
		return nil, fmt.Errorf("ipapi: %s", body.Reason)
	}

	rec := &Record{
		IP:        ip,
		City:      body.City,
		Region:    nonEmpty(body.Region, body.RegionCode),
		Country:   nonEmpty(body.CountryName, body.Country),
		Latitude:  body.Latitude.Value,
		Longitude: body.Longitude.Value,
		ASN:       body.ASN,
		Org:       nonEmpty(body.Org, body.OrgName),
		Timezone:  body.Timezone,
	}
	if body.IP != nil && *body.IP != "" {
		rec.IP = *body.IP
	}
	return rec, nil
}

func getJSON(ctx context.Context, client *http.Client, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "trackapi")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
