package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrGeocodeFailed wraps transport or decoding errors from the geocoding provider.
	ErrGeocodeFailed = errors.New("geo: geocode failed")
	// ErrNoResults is returned when the provider resolves an address to nothing.
	ErrNoResults = errors.New("geo: no results for address")
)

// Geocoder resolves free-form addresses to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Point, error)
}

// GeocoderFunc adapts a function to Geocoder.
type GeocoderFunc func(ctx context.Context, address string) (Point, error)

// Geocode implements Geocoder.
func (f GeocoderFunc) Geocode(ctx context.Context, address string) (Point, error) {
	return f(ctx, address)
}

const (
	defaultGeocodeBaseURL = "https://us1.locationiq.com/v1/search"
	defaultGeocodeTimeout = 8 * time.Second
)

// LocationIQClient geocodes addresses using the LocationIQ forward search API.
type LocationIQClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// LocationIQOption customises the client.
type LocationIQOption func(*LocationIQClient)

// NewLocationIQClient constructs a geocoding client for the provided API key.
func NewLocationIQClient(apiKey string, opts ...LocationIQOption) *LocationIQClient {
	c := &LocationIQClient{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: defaultGeocodeBaseURL,
		client:  &http.Client{Timeout: defaultGeocodeTimeout},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// WithGeocodeHTTPClient overrides the HTTP client used for provider calls.
func WithGeocodeHTTPClient(client *http.Client) LocationIQOption {
	return func(c *LocationIQClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithGeocodeBaseURL overrides the provider endpoint (useful for tests).
func WithGeocodeBaseURL(base string) LocationIQOption {
	return func(c *LocationIQClient) {
		if strings.TrimSpace(base) != "" {
			c.baseURL = strings.TrimSpace(base)
		}
	}
}

type locationIQResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves an address to its first candidate coordinate.
func (c *LocationIQClient) Geocode(ctx context.Context, address string) (Point, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return Point{}, fmt.Errorf("%w: empty address", ErrNoResults)
	}
	if c.apiKey == "" {
		return Point{}, fmt.Errorf("%w: api key not configured", ErrGeocodeFailed)
	}

	query := url.Values{}
	query.Set("key", c.apiKey)
	query.Set("q", address)
	query.Set("format", "json")
	query.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %v", ErrGeocodeFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %v", ErrGeocodeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Point{}, fmt.Errorf("%w: %q", ErrNoResults, address)
	}
	if resp.StatusCode != http.StatusOK {
		return Point{}, fmt.Errorf("%w: unexpected status %d", ErrGeocodeFailed, resp.StatusCode)
	}

	var results []locationIQResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Point{}, fmt.Errorf("%w: decode response: %v", ErrGeocodeFailed, err)
	}
	if len(results) == 0 {
		return Point{}, fmt.Errorf("%w: %q", ErrNoResults, address)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: bad latitude %q", ErrGeocodeFailed, results[0].Lat)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: bad longitude %q", ErrGeocodeFailed, results[0].Lon)
	}

	return Point{Lat: lat, Lng: lng}, nil
}
