package market

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// AlpacaSource quotes the latest trade price from the Alpaca market-data API.
// The SDK call takes no context; wrap the source with WithTimeout to bound it.
type AlpacaSource struct {
	client *marketdata.Client
}

func NewAlpacaSource(apiKey, apiSecret, dataURL string) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaSource{client: marketdata.NewClient(opts)}
}

func (a *AlpacaSource) Quote(_ context.Context, symbol string) (Quote, error) {
	tr, err := a.client.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return Quote{}, fmt.Errorf("%w: alpaca %s: %v", ErrQuoteUnavailable, symbol, err)
	}
	if tr == nil {
		return Quote{}, fmt.Errorf("%w: alpaca %s: no trade", ErrQuoteUnavailable, symbol)
	}
	return Quote{
		Symbol: symbol,
		Price:  decimal.NewFromFloat(tr.Price),
		Time:   tr.Timestamp.UTC(),
	}, nil
}
