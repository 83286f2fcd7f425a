package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 5 * time.Second

// Location is the geo-IP lookup result. Unknown returns the zero-value fields with
// Country "unknown" so downstream risk scoring treats it as neutral.
type Location struct {
	Country     string
	Region      string
	City        string
	Coordinates Coordinates
}

// Unknown is the degraded location used when lookup fails or times out.
func Unknown() Location {
	return Location{Country: "unknown"}
}

// String renders the location as "City, Region, Country" skipping empty parts.
func (l Location) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.City, l.Region, l.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Resolver maps an IP address to a coarse location. Implementations must degrade to
// Unknown() rather than failing the caller: a geo outage never blocks a request.
type Resolver interface {
	Lookup(ctx context.Context, ip string) Location
}

// HTTPResolver resolves IPs against an ip-api style JSON endpoint
// (GET {base}/{ip} -> {country, regionName, city, lat, lon}).
type HTTPResolver struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPResolver returns a resolver for the given base URL with the given per-lookup
// timeout (5s when zero).
func NewHTTPResolver(baseURL string, timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPResolver{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type lookupResponse struct {
	Country    string  `json:"country"`
	RegionName string  `json:"regionName"`
	City       string  `json:"city"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

// Lookup resolves ip to a location. Any transport, decode, or non-200 failure
// degrades to Unknown(); the error is intentionally not surfaced.
func (r *HTTPResolver) Lookup(ctx context.Context, ip string) Location {
	if r.BaseURL == "" || ip == "" {
		return Unknown()
	}
	url := fmt.Sprintf("%s/%s", r.BaseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Unknown()
	}
	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return Unknown()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Unknown()
	}
	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Unknown()
	}
	if body.Country == "" {
		return Unknown()
	}
	return Location{
		Country:     body.Country,
		Region:      body.RegionName,
		City:        body.City,
		Coordinates: Coordinates{Lat: body.Lat, Lon: body.Lon},
	}
}

// StaticResolver returns fixed locations by IP; used in tests and local development.
type StaticResolver map[string]Location

// Lookup returns the mapped location or Unknown().
func (s StaticResolver) Lookup(_ context.Context, ip string) Location {
	if loc, ok := s[ip]; ok {
		return loc
	}
	return Unknown()
}
