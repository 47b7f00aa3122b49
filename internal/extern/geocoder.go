package extern

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// kakaoAddressURL is the Kakao Local address search endpoint.
const kakaoAddressURL = "https://dapi.kakao.com/v2/local/search/address.json"

// KakaoGeocoder resolves Korean addresses with the Kakao Local API.
type KakaoGeocoder struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.Logger
}

// NewKakaoGeocoder builds a geocoder with the given REST API key. An
// empty baseURL uses the public Kakao endpoint; tests point it at a
// local server.
func NewKakaoGeocoder(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *KakaoGeocoder {
	if baseURL == "" {
		baseURL = kakaoAddressURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &KakaoGeocoder{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

type kakaoAddressResponse struct {
	Documents []struct {
		X string `json:"x"`
		Y string `json:"y"`
	} `json:"documents"`
}

// Resolve looks the address up. A well-formed response with no documents
// means the address is unknown, reported as found=false with a nil
// error.
func (g *KakaoGeocoder) Resolve(ctx context.Context, address string) (Coordinates, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL, nil)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("failed to build geocode request: %w", err)
	}
	req.URL.RawQuery = url.Values{"query": {address}}.Encode()
	req.Header.Set("Authorization", "KakaoAK "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("geocode request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			g.log.Warn("failed to close geocode response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, false, fmt.Errorf("geocode service returned status %d", resp.StatusCode)
	}

	var out kakaoAddressResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Coordinates{}, false, fmt.Errorf("failed to decode geocode response: %w", err)
	}
	if len(out.Documents) == 0 {
		return Coordinates{}, false, nil
	}

	doc := out.Documents[0]
	lat, err := strconv.ParseFloat(doc.Y, 64)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("failed to parse latitude %q: %w", doc.Y, err)
	}
	lng, err := strconv.ParseFloat(doc.X, 64)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("failed to parse longitude %q: %w", doc.X, err)
	}
	return Coordinates{Latitude: lat, Longitude: lng}, true, nil
}
