package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dghubble/sling"

	"github.com/urbanpulse/event-harvester/internal/model"
)

// AIClient is the contract for the external text-completion collaborator:
// one request with raw page text, one typed reply. The reply is untrusted;
// every field still goes through normal downstream validation.
type AIClient interface {
	ExtractEvent(ctx context.Context, pageText string) (AIEventReply, error)
}

// AIEventReply mirrors the RawEventCard fields the service can fill.
type AIEventReply struct {
	Title       string `json:"title"`
	DateText    string `json:"date_text"`
	Location    string `json:"location"`
	Description string `json:"description"`
	DetailURL   string `json:"detail_url"`
	ImageURL    string `json:"image_url"`
}

// AIStrategy is the paid last resort: it fires only when every deterministic
// strategy produced zero usable cards, and maps the reply onto one card.
type AIStrategy struct {
	client AIClient
}

// NewAIStrategy builds the strategy.
func NewAIStrategy(client AIClient) *AIStrategy {
	return &AIStrategy{client: client}
}

// Name implements Strategy.
func (s *AIStrategy) Name() model.ExtractionMethod { return model.MethodAI }

// Extract implements Strategy.
func (s *AIStrategy) Extract(ctx context.Context, doc *Document) []model.RawEventCard {
	text := pageText(doc)
	if text == "" {
		return nil
	}
	reply, err := s.client.ExtractEvent(ctx, text)
	if err != nil {
		return nil
	}
	card := model.RawEventCard{
		Title:       strings.TrimSpace(reply.Title),
		DateText:    strings.TrimSpace(reply.DateText),
		Location:    strings.TrimSpace(reply.Location),
		Description: strings.TrimSpace(reply.Description),
		DetailURL:   reply.DetailURL,
		ImageURL:    reply.ImageURL,
		Fragment:    "ai",
		Confidence:  ConfidenceAI,
	}
	return []model.RawEventCard{card}
}

// pageText flattens the document to visible text, bounded so the completion
// request stays a sane size.
func pageText(doc *Document) string {
	html, err := doc.HTML()
	if err != nil {
		return ""
	}
	text := collapseSpace(strings.TrimSpace(html.Find("body").Text()))
	if len(text) > 8000 {
		text = text[:8000]
	}
	return text
}

// HTTPAIClient talks to the completion service over its single-call HTTP
// contract.
type HTTPAIClient struct {
	base   *sling.Sling
	client *http.Client
}

// NewHTTPAIClient builds a client for the configured endpoint.
func NewHTTPAIClient(baseURL, apiKey string, timeout time.Duration) *HTTPAIClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	base := sling.New().Client(httpClient).Base(baseURL)
	if apiKey != "" {
		base = base.Set("Authorization", "Bearer "+apiKey)
	}
	return &HTTPAIClient{base: base, client: httpClient}
}

type aiRequest struct {
	Text string `json:"text"`
}

// ExtractEvent implements AIClient.
func (c *HTTPAIClient) ExtractEvent(ctx context.Context, pageText string) (AIEventReply, error) {
	req, err := c.base.New().Post("v1/extract-event").BodyJSON(aiRequest{Text: pageText}).Request()
	if err != nil {
		return AIEventReply{}, fmt.Errorf("build ai request: %w", err)
	}
	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		return AIEventReply{}, fmt.Errorf("ai request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return AIEventReply{}, fmt.Errorf("ai request: status %d", resp.StatusCode)
	}
	var reply AIEventReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return AIEventReply{}, fmt.Errorf("decode ai reply: %w", err)
	}
	return reply, nil
}
