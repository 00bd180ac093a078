package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// HTTPSource asks a market-data service for the last price of a symbol at
// GET {base}/api/v1/market-data/{symbol}.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPSource creates a client for the market-data service. perSecond
// caps outgoing requests; zero or less means unlimited.
func NewHTTPSource(baseURL string, perSecond float64) *HTTPSource {
	lim := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return &HTTPSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    lim,
	}
}

type marketDataResponse struct {
	Symbol    string      `json:"symbol"`
	Price     json.Number `json:"price"`
	Timestamp *time.Time  `json:"timestamp,omitempty"`
}

func (h *HTTPSource) Quote(ctx context.Context, symbol string) (Quote, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return Quote{}, fmt.Errorf("%w: %s: %v", ErrQuoteUnavailable, symbol, err)
	}

	u := h.baseURL + "/api/v1/market-data/" + url.PathEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s: %v", ErrQuoteUnavailable, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("%w: %s: market data returned %s", ErrQuoteUnavailable, symbol, resp.Status)
	}

	var body marketDataResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("%w: %s: decode: %v", ErrQuoteUnavailable, symbol, err)
	}

	price, err := decimal.NewFromString(body.Price.String())
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s: bad price %q", ErrQuoteUnavailable, symbol, body.Price)
	}

	q := Quote{Symbol: symbol, Price: price, Time: time.Now().UTC()}
	if body.Timestamp != nil {
		q.Time = body.Timestamp.UTC()
	}
	return q, nil
}
