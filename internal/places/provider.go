// Package places resolves free-text dealer identifiers into a canonical
// dealer key plus a place profile, throttling and caching the external
// lookup provider.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var ErrInvalidInput = errors.New("invalid input")

const (
	defaultProviderBaseURL = "https://maps.googleapis.com/maps/api/place"
	fieldsBasic            = "place_id,name,formatted_address,url,website,international_phone_number,rating,user_ratings_total"
	fieldsMore             = "opening_hours,types"
)

// Place is one provider candidate or details record. Numeric rating fields
// are pointers so an absent value survives the JSON round trip as null.
type Place struct {
	PlaceID          string          `json:"place_id"`
	Name             string          `json:"name,omitempty"`
	FormattedAddress string          `json:"formatted_address,omitempty"`
	MapsURL          string          `json:"url,omitempty"`
	Website          string          `json:"website,omitempty"`
	Phone            string          `json:"international_phone_number,omitempty"`
	Rating           *float64        `json:"rating,omitempty"`
	UserRatingsTotal *int            `json:"user_ratings_total,omitempty"`
	OpeningHours     json.RawMessage `json:"opening_hours,omitempty"`
	Types            []string        `json:"types,omitempty"`
	CID              string          `json:"cid,omitempty"`
}

// Provider is the external entity-lookup capability: a ranked candidate
// search plus a per-candidate details fetch.
type Provider interface {
	FindPlace(ctx context.Context, input string) ([]Place, error)
	PlaceDetails(ctx context.Context, placeID string) (*Place, error)
}

type HTTPProviderOptions struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPProvider(opts HTTPProviderOptions) (*HTTPProvider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrInvalidInput
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultProviderBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProvider{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
	}, nil
}

func (p *HTTPProvider) FindPlace(ctx context.Context, input string) ([]Place, error) {
	params := url.Values{}
	params.Set("input", input)
	params.Set("inputtype", "textquery")
	params.Set("fields", fieldsBasic)
	params.Set("key", p.apiKey)

	var parsed struct {
		Candidates []Place `json:"candidates"`
	}
	if err := p.getJSON(ctx, "/findplacefromtext/json", params, &parsed); err != nil {
		return nil, err
	}
	for i := range parsed.Candidates {
		parsed.Candidates[i].CID = ExtractCIDFromMapsURL(parsed.Candidates[i].MapsURL)
	}
	return parsed.Candidates, nil
}

func (p *HTTPProvider) PlaceDetails(ctx context.Context, placeID string) (*Place, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", fieldsBasic+","+fieldsMore)
	params.Set("key", p.apiKey)

	var parsed struct {
		Result *Place `json:"result"`
	}
	if err := p.getJSON(ctx, "/details/json", params, &parsed); err != nil {
		return nil, err
	}
	if parsed.Result == nil {
		return nil, nil
	}
	parsed.Result.CID = ExtractCIDFromMapsURL(parsed.Result.MapsURL)
	return parsed.Result, nil
}

func (p *HTTPProvider) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := p.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("lookup provider %s failed: status=%d", path, resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}

var cidPattern = regexp.MustCompile(`[?&]cid=(\d+)`)

// ExtractCIDFromMapsURL pulls a provider-native identifier out of a
// maps-style URL when the caller already supplies a canonical reference.
func ExtractCIDFromMapsURL(mapsURL string) string {
	mapsURL = strings.TrimSpace(mapsURL)
	if mapsURL == "" {
		return ""
	}
	if parsed, err := url.Parse(mapsURL); err == nil {
		if cid := parsed.Query().Get("cid"); cid != "" {
			return cid
		}
	}
	if match := cidPattern.FindStringSubmatch(mapsURL); match != nil {
		return match[1]
	}
	return ""
}
