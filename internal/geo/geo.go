package geo

import (
	"context"
	"log"
	"strings"
	"time"
)

// cacheTTL is how long a hint-derived record stays valid for an IP.
const cacheTTL = time.Hour

// Record is the resolved network origin of a request.
type Record struct {
	CountryCode    string   `json:"country_code"`
	Country        string   `json:"country,omitempty"`
	Continent      string   `json:"continent,omitempty"`
	Region         string   `json:"region,omitempty"`
	City           string   `json:"city,omitempty"`
	Timezone       string   `json:"timezone,omitempty"`
	ISP            string   `json:"isp,omitempty"`
	ConnectionType string   `json:"connection_type,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`

	// AccuracyRadiusKm is a coarse confidence heuristic: 25 when the
	// city is known, 100 for region only, 500 for country only.
	AccuracyRadiusKm *int `json:"accuracy_radius_km,omitempty"`
}

// Hints carries origin-supplied geo data (edge network headers). When
// present these are authoritative and no cache lookup happens.
type Hints struct {
	CountryCode string
	Region      string
	City        string
	Timezone    string
	ISP         string
	Latitude    *float64
	Longitude   *float64
}

func (h Hints) empty() bool {
	return h.CountryCode == "" && h.Region == "" && h.City == "" && h.ISP == ""
}

// Cache is a TTL key/value store for resolved records. Both the redis
// cache and the geo_cache table implement it.
type Cache interface {
	Get(ctx context.Context, ip string) (*Record, error)
	Set(ctx context.Context, ip string, rec *Record, ttl time.Duration) error
}

// Resolver turns an IP address plus optional origin hints into a Record.
// It never returns an error: any failure degrades to Unknown().
type Resolver struct {
	cache Cache
}

func NewResolver(cache Cache) *Resolver {
	return &Resolver{cache: cache}
}

// Unknown is the neutral record used when nothing can be resolved.
func Unknown() Record {
	return Record{CountryCode: "XX"}
}

// Resolve builds a Record for ip. Origin hints win outright; otherwise
// the cache is consulted; otherwise the unknown record is returned.
// Hint-derived records are written back to the cache with a 1h TTL.
func (r *Resolver) Resolve(ctx context.Context, ip string, hints Hints) Record {
	if !hints.empty() {
		rec := fromHints(hints)
		if r.cache != nil {
			if err := r.cache.Set(ctx, ip, &rec, cacheTTL); err != nil {
				log.Printf("geo: cache write for %s failed: %v", ip, err)
			}
		}
		return rec
	}

	if r.cache != nil {
		cached, err := r.cache.Get(ctx, ip)
		if err != nil {
			log.Printf("geo: cache read for %s failed: %v", ip, err)
		} else if cached != nil {
			return *cached
		}
	}

	return Unknown()
}

func fromHints(h Hints) Record {
	rec := Record{
		CountryCode:    strings.ToUpper(h.CountryCode),
		Region:         h.Region,
		City:           h.City,
		Timezone:       h.Timezone,
		ISP:            h.ISP,
		Latitude:       h.Latitude,
		Longitude:      h.Longitude,
		ConnectionType: ClassifyConnection(h.ISP),
	}
	if rec.CountryCode == "" {
		rec.CountryCode = "XX"
	}
	rec.Country, rec.Continent = countryName(rec.CountryCode)
	rec.AccuracyRadiusKm = accuracyRadius(rec)
	return rec
}

// accuracyRadius estimates location precision from which fields are set.
func accuracyRadius(rec Record) *int {
	var km int
	switch {
	case rec.City != "":
		km = 25
	case rec.Region != "":
		km = 100
	case rec.CountryCode != "" && rec.CountryCode != "XX":
		km = 500
	default:
		return nil
	}
	return &km
}

// cloudKeywords marks hosting/datacenter ISPs, carrierKeywords marks
// mobile networks. Matched case-insensitively against the ISP name.
var cloudKeywords = []string{
	"amazon", "aws", "google", "gcp", "microsoft", "azure",
	"digitalocean", "hetzner", "ovh", "linode", "vultr", "oracle",
	"alibaba", "cloudflare", "hosting", "datacenter", "data center",
	"colo", "server",
}

var carrierKeywords = []string{
	"t-mobile", "verizon", "vodafone", "orange", "telefonica",
	"at&t", "sprint", "o2", "ee limited", "three", "mobile", "cellular",
	"wireless", "telecom",
}

// ClassifyConnection gives the coarse connection type for an ISP name:
// datacenter for cloud providers, mobile for carriers, broadband for
// the rest. Empty ISP yields an empty classification.
func ClassifyConnection(isp string) string {
	if isp == "" {
		return ""
	}
	lower := strings.ToLower(isp)
	for _, kw := range cloudKeywords {
		if strings.Contains(lower, kw) {
			return "datacenter"
		}
	}
	for _, kw := range carrierKeywords {
		if strings.Contains(lower, kw) {
			return "mobile"
		}
	}
	return "broadband"
}
