package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dghubble/sling"

	"github.com/urbanpulse/event-harvester/internal/metrics"
	"github.com/urbanpulse/event-harvester/internal/model"
)

// ErrBudgetExceeded is returned once the daily API call allowance is spent.
// Callers record the status and move on without details.
var ErrBudgetExceeded = fmt.Errorf("places: daily budget exceeded")

// PlaceDetails is what a places lookup yields for enrichment.
type PlaceDetails struct {
	PlaceID   string
	Lat       float64
	Lng       float64
	Phone     string
	Website   string
	PriceTier int
	Hours     *model.WeekHours
	APICalls  int
}

// PlacesClient looks up venues on an external places API.
type PlacesClient interface {
	Lookup(ctx context.Context, name string) (*PlaceDetails, error)
}

// HTTPPlacesClient talks to the places API over HTTP. A lookup costs two
// calls: a text search to find the place id, then a details fetch. A shared
// counter enforces the daily budget across goroutines.
type HTTPPlacesClient struct {
	base   *sling.Sling
	client *http.Client
	apiKey string

	mu     sync.Mutex
	budget int
	spent  int
	day    string
}

// NewHTTPPlacesClient builds a client with the given daily call budget.
func NewHTTPPlacesClient(baseURL, apiKey string, dailyBudget int, timeout time.Duration) *HTTPPlacesClient {
	client := &http.Client{Timeout: timeout}
	return &HTTPPlacesClient{
		base:   sling.New().Client(client).Base(baseURL),
		client: client,
		apiKey: apiKey,
		budget: dailyBudget,
	}
}

type searchResponse struct {
	Results []struct {
		PlaceID string `json:"place_id"`
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
	Status string `json:"status"`
}

type detailsResponse struct {
	Result struct {
		FormattedPhoneNumber string `json:"formatted_phone_number"`
		Website              string `json:"website"`
		PriceLevel           int    `json:"price_level"`
		OpeningHours         struct {
			Periods []Period `json:"periods"`
		} `json:"opening_hours"`
	} `json:"result"`
	Status string `json:"status"`
}

// Lookup implements PlacesClient.
func (c *HTTPPlacesClient) Lookup(ctx context.Context, name string) (*PlaceDetails, error) {
	if err := c.spend(2); err != nil {
		return nil, err
	}
	metrics.IncPlacesCall()
	metrics.IncPlacesCall()

	var search searchResponse
	req, err := c.base.New().Get("textsearch/json").
		QueryStruct(struct {
			Query string `url:"query"`
			Key   string `url:"key"`
		}{Query: name + " Amsterdam", Key: c.apiKey}).
		Request()
	if err != nil {
		return nil, fmt.Errorf("places: build search request: %w", err)
	}
	if err := c.do(req.WithContext(ctx), &search); err != nil {
		return nil, fmt.Errorf("places: search %q: %w", name, err)
	}
	if search.Status != "OK" || len(search.Results) == 0 {
		return nil, fmt.Errorf("places: no result for %q (status %s)", name, search.Status)
	}
	hit := search.Results[0]

	var details detailsResponse
	req, err = c.base.New().Get("details/json").
		QueryStruct(struct {
			PlaceID string `url:"place_id"`
			Key     string `url:"key"`
		}{PlaceID: hit.PlaceID, Key: c.apiKey}).
		Request()
	if err != nil {
		return nil, fmt.Errorf("places: build details request: %w", err)
	}
	if err := c.do(req.WithContext(ctx), &details); err != nil {
		return nil, fmt.Errorf("places: details for %q: %w", name, err)
	}

	out := &PlaceDetails{
		PlaceID:   hit.PlaceID,
		Lat:       hit.Geometry.Location.Lat,
		Lng:       hit.Geometry.Location.Lng,
		Phone:     details.Result.FormattedPhoneNumber,
		Website:   details.Result.Website,
		PriceTier: details.Result.PriceLevel,
		APICalls:  2,
	}
	if hours, err := HoursFromPeriods(details.Result.OpeningHours.Periods); err == nil {
		out.Hours = hours
	}
	return out, nil
}

func (c *HTTPPlacesClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// spend reserves n calls from today's budget, resetting the counter at the
// first call of each UTC day.
func (c *HTTPPlacesClient) spend(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	today := time.Now().UTC().Format("2006-01-02")
	if c.day != today {
		c.day = today
		c.spent = 0
	}
	if c.spent+n > c.budget {
		return ErrBudgetExceeded
	}
	c.spent += n
	return nil
}
