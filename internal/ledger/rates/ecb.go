package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/money"
	"github.com/sebuszqo/FinanceLedger/internal/logger"
	"github.com/shopspring/decimal"
)

const DefaultBaseURL = "https://data-api.ecb.europa.eu/service/data/EXR"

var ErrRateUnavailable = errors.New("exchange rate unavailable")

const (
	defaultLookupTimeout = 3 * time.Second
	// failureTTL is how long a failed lookup is remembered before Rate asks
	// the ECB again.
	failureTTL = time.Minute
)

type ecbResponse struct {
	DataSets []struct {
		Series map[string]struct {
			Observations map[string][]decimal.NullDecimal `json:"observations"`
		} `json:"series"`
	} `json:"dataSets"`
}

// ECBSource reports the value of one unit of a currency expressed in the
// quote currency, using the latest ECB reference rate. Results are memoised
// for the configured TTL.
type ECBSource struct {
	baseURL       string
	quote         string
	httpClient    *http.Client
	cache         *cache.Cache
	lookupTimeout time.Duration
}

func NewECBSource(baseURL, quoteCurrency string, ttl time.Duration) *ECBSource {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &ECBSource{
		baseURL:       strings.TrimRight(baseURL, "/"),
		quote:         strings.ToUpper(quoteCurrency),
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		cache:         cache.New(ttl, 2*ttl),
		lookupTimeout: defaultLookupTimeout,
	}
}

// QuoteCurrency is the currency every rate is expressed in.
func (s *ECBSource) QuoteCurrency() string {
	return s.quote
}

func (s *ECBSource) rateKey(code string) string {
	return "rate-" + code + "-" + s.quote
}

func (s *ECBSource) failureKey(code string) string {
	return "rate-failed-" + code + "-" + s.quote
}

// Rate returns how much one unit of code is worth in the quote currency. A
// cache miss waits on the ECB for at most the lookup timeout, and a failed
// lookup is answered from the failure cache until failureTTL passes.
func (s *ECBSource) Rate(ctx context.Context, code string) (decimal.Decimal, error) {
	code = strings.ToUpper(code)
	if code == s.quote {
		return decimal.NewFromInt(1), nil
	}

	if rate, found := s.cache.Get(s.rateKey(code)); found {
		return rate.(decimal.Decimal), nil
	}
	if cause, failed := s.cache.Get(s.failureKey(code)); failed {
		return decimal.Zero, cause.(error)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()
	rate, err := s.fetch(lookupCtx, code)
	if err != nil {
		// A caller that gave up says nothing about the ECB.
		if ctx.Err() == nil {
			s.cache.Set(s.failureKey(code), err, failureTTL)
		}
		return decimal.Zero, err
	}
	s.cache.Set(s.rateKey(code), rate, cache.DefaultExpiration)
	return rate, nil
}

// Refresh refetches the given currencies and replaces their cached values.
// Failures are logged and skipped so one bad code does not block the rest.
func (s *ECBSource) Refresh(ctx context.Context, codes []string) int {
	l := logger.FromContext(ctx)
	refreshed := 0
	for _, code := range codes {
		code = strings.ToUpper(code)
		if code == s.quote {
			continue
		}
		rate, err := s.fetch(ctx, code)
		if err != nil {
			l.Warn().Err(err).Str("currency", code).Msg("Failed to refresh exchange rate")
			continue
		}
		s.cache.Set(s.rateKey(code), rate, cache.DefaultExpiration)
		s.cache.Delete(s.failureKey(code))
		refreshed++
	}
	return refreshed
}

// fetch reads the latest daily rate. ECB series are quoted against EUR as
// units of foreign currency per euro, so a non-EUR quote currency is derived
// from two EUR rates.
func (s *ECBSource) fetch(ctx context.Context, code string) (decimal.Decimal, error) {
	perEuro, err := s.perEuro(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	quotePerEuro, err := s.perEuro(ctx, s.quote)
	if err != nil {
		return decimal.Zero, err
	}
	return quotePerEuro.DivRound(perEuro, money.CostScale), nil
}

func (s *ECBSource) perEuro(ctx context.Context, code string) (decimal.Decimal, error) {
	if code == "EUR" {
		return decimal.NewFromInt(1), nil
	}

	url := fmt.Sprintf("%s/D.%s.EUR.SP00.A?lastNObservations=1&format=jsondata", s.baseURL, code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrRateUnavailable, code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: %s: ECB API returned %s", ErrRateUnavailable, code, resp.Status)
	}

	var data ecbResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrRateUnavailable, code, err)
	}
	return extractRate(code, data)
}

func extractRate(code string, data ecbResponse) (decimal.Decimal, error) {
	if len(data.DataSets) == 0 {
		return decimal.Zero, fmt.Errorf("%w: %s: no dataSets in response", ErrRateUnavailable, code)
	}
	for _, series := range data.DataSets[0].Series {
		for _, observation := range series.Observations {
			if len(observation) > 0 && observation[0].Valid && observation[0].Decimal.IsPositive() {
				return observation[0].Decimal, nil
			}
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s: observation value not found", ErrRateUnavailable, code)
}
