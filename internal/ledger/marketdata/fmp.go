package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultFMPBaseURL = "https://financialmodelingprep.com/api/v3"

// StockDTO is one entry of the FMP stock list.
type StockDTO struct {
	Symbol        string              `json:"symbol"`
	Name          string              `json:"name"`
	Exchange      string              `json:"exchange"`
	ExchangeShort string              `json:"exchangeShortName"`
	Type          string              `json:"type"`
	Price         decimal.NullDecimal `json:"price"`
	Currency      string              `json:"currency"`
}

// exchangeCountries maps FMP short exchange names to the ISO country the
// catalogue keys tickers by. Listings on other exchanges are skipped.
var exchangeCountries = map[string]string{
	"NASDAQ":   "US",
	"NYSE":     "US",
	"AMEX":     "US",
	"WSE":      "PL",
	"LSE":      "GB",
	"XETRA":    "DE",
	"EURONEXT": "FR",
	"TSX":      "CA",
	"ASX":      "AU",
	"JPX":      "JP",
	"SIX":      "CH",
}

// CountryForExchange returns the country an exchange is located in.
func CountryForExchange(exchangeShort string) (string, bool) {
	country, ok := exchangeCountries[strings.ToUpper(exchangeShort)]
	return country, ok
}

type FinancialModelingPrepClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewFMPClient(apiKey string) *FinancialModelingPrepClient {
	return NewFMPClientWithBaseURL(apiKey, defaultFMPBaseURL)
}

func NewFMPClientWithBaseURL(apiKey, baseURL string) *FinancialModelingPrepClient {
	return &FinancialModelingPrepClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchAllStocks downloads the full stock list. An empty list is not an
// error; the caller decides what to do with it.
func (c *FinancialModelingPrepClient) FetchAllStocks(ctx context.Context) ([]StockDTO, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("market data API key is not configured")
	}

	endpoint := c.baseURL + "/stock/list?" + url.Values{"apikey": {c.apiKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build stock list request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stock list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error querying API: %s", resp.Status)
	}

	var results []StockDTO
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode stock list: %w", err)
	}
	return results, nil
}
