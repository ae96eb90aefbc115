// Package places looks up points of interest through the Google Places
// searchNearby endpoint.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/playperu/stampquest/internal/stampquest"
)

const (
	DefaultBaseURL = "https://places.googleapis.com"

	// MaxRadiusMeters is the largest radius the API accepts.
	MaxRadiusMeters = 50000.0

	fieldMask       = "places.displayName,places.location,places.types"
	maxResultCount  = 20
	maxResponseSize = 1 << 20
)

// placeTypes maps quest categories to Places API types.
var placeTypes = map[string]string{
	"restaurant": "restaurant",
	"park":       "park",
	"cafe":       "cafe",
	"attraction": "tourist_attraction",
	"landmark":   "historical_landmark",
}

// Categories lists the quest categories the searcher understands.
func Categories() []string {
	return []string{"restaurant", "park", "attraction", "landmark", "cafe"}
}

// PlaceType returns the API type for category and whether it is known.
func PlaceType(category string) (string, bool) {
	t, ok := placeTypes[strings.ToLower(category)]
	return t, ok
}

// categoryOf maps API place types back to the first matching quest category.
func categoryOf(types []string) string {
	for _, t := range types {
		for _, cat := range Categories() {
			if placeTypes[cat] == t {
				return cat
			}
		}
	}
	return "attraction"
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ stampquest.PlaceSearcher = (*Client)(nil)

func New(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type searchRequest struct {
	IncludedTypes       []string `json:"includedTypes,omitempty"`
	MaxResultCount      int      `json:"maxResultCount"`
	RankPreference      string   `json:"rankPreference"`
	LocationRestriction struct {
		Circle struct {
			Center latLng  `json:"center"`
			Radius float64 `json:"radius"`
		} `json:"circle"`
	} `json:"locationRestriction"`
}

type searchResponse struct {
	Places []struct {
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		Location latLng    `json:"location"`
		Types    []string `json:"types"`
	} `json:"places"`
}

// SearchNearby returns named places within radiusMeters of center, ranked by
// distance. An empty category searches every supported type.
func (c *Client) SearchNearby(ctx context.Context, center stampquest.Coordinate, radiusMeters float64, category string) ([]stampquest.Place, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}

	var body searchRequest
	if category != "" {
		t, ok := PlaceType(category)
		if !ok {
			return nil, fmt.Errorf("unknown category %q: %w", category, stampquest.ErrInvalidLandmark)
		}
		body.IncludedTypes = []string{t}
	} else {
		for _, cat := range Categories() {
			body.IncludedTypes = append(body.IncludedTypes, placeTypes[cat])
		}
	}
	body.MaxResultCount = maxResultCount
	body.RankPreference = "DISTANCE"
	body.LocationRestriction.Circle.Center = latLng{Latitude: center.Lat, Longitude: center.Lng}
	body.LocationRestriction.Circle.Radius = min(radiusMeters, MaxRadiusMeters)

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/places:searchNearby", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", stampquest.ErrCapability, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: places request: %v", stampquest.ErrCapability, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", stampquest.ErrCapability, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: places status %d", stampquest.ErrCapability, resp.StatusCode)
	}

	var out searchResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", stampquest.ErrCapability, err)
	}

	places := make([]stampquest.Place, 0, len(out.Places))
	for _, p := range out.Places {
		name := strings.TrimSpace(p.DisplayName.Text)
		loc := stampquest.Coordinate{Lat: p.Location.Latitude, Lng: p.Location.Longitude}
		if name == "" || loc.Validate() != nil {
			continue
		}
		cat := strings.ToLower(category)
		if cat == "" {
			cat = categoryOf(p.Types)
		}
		places = append(places, stampquest.Place{Name: name, Category: cat, Location: loc})
	}
	c.logger.Debug("places search", "category", category, "results", len(places))
	return places, nil
}
