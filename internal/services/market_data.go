package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"papertrader/internal/engine"
	"papertrader/internal/models"
)

var ErrRateLimited = errors.New("alpha vantage rate limit exceeded")

type AlphaVantageResponse struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
}

type AlphaVantageError struct {
	Information string `json:"Information"`
	Note        string `json:"Note"`
}

// LiveQuote is the subset of a GLOBAL_QUOTE response used for seeding.
type LiveQuote struct {
	Symbol        string
	Price         float64
	Change        float64
	ChangePercent float64
}

// MarketDataService reads last-trade prices from Alpha Vantage. It is only
// used to seed initial catalog prices; the simulation never calls it.
type MarketDataService struct {
	apiKey  string
	baseURL string
	client  *http.Client
	// pause between sequential requests to stay under the free-tier limit
	pause  time.Duration
	logger *zap.Logger
}

func NewMarketDataService(apiKey, baseURL string, logger *zap.Logger) *MarketDataService {
	if baseURL == "" {
		baseURL = "https://www.alphavantage.co/query"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketDataService{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		pause:   100 * time.Millisecond,
		logger:  logger,
	}
}

// Enabled reports whether an API key is configured.
func (m *MarketDataService) Enabled() bool { return m.apiKey != "" }

func (m *MarketDataService) GetQuote(ctx context.Context, symbol string) (LiveQuote, error) {
	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", symbol)
	q.Set("apikey", m.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return LiveQuote{}, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return LiveQuote{}, fmt.Errorf("request %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return LiveQuote{}, fmt.Errorf("request %s: status %d", symbol, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return LiveQuote{}, fmt.Errorf("read response: %w", err)
	}

	var apiError AlphaVantageError
	if err := json.Unmarshal(body, &apiError); err == nil {
		if msg := apiError.Information + apiError.Note; strings.Contains(strings.ToLower(msg), "rate limit") {
			return LiveQuote{}, fmt.Errorf("%w: %s", ErrRateLimited, msg)
		}
	}

	var alphaResponse AlphaVantageResponse
	if err := json.Unmarshal(body, &alphaResponse); err != nil {
		return LiveQuote{}, fmt.Errorf("parse JSON: %w", err)
	}
	if alphaResponse.GlobalQuote.Symbol == "" || alphaResponse.GlobalQuote.Price == "" {
		return LiveQuote{}, fmt.Errorf("no data returned for symbol %s", symbol)
	}

	price, err := parsePrice(alphaResponse.GlobalQuote.Price)
	if err != nil {
		return LiveQuote{}, fmt.Errorf("parse price: %w", err)
	}
	if !engine.ValidPrice(price) {
		return LiveQuote{}, fmt.Errorf("unusable price %v for %s", price, symbol)
	}
	change, err := parsePrice(alphaResponse.GlobalQuote.Change)
	if err != nil {
		change = 0
	}
	changePercent, err := parseChangePercent(alphaResponse.GlobalQuote.ChangePercent)
	if err != nil {
		changePercent = 0
	}

	return LiveQuote{
		Symbol:        strings.ToUpper(alphaResponse.GlobalQuote.Symbol),
		Price:         price,
		Change:        change,
		ChangePercent: changePercent,
	}, nil
}

// SeedCatalog returns a copy of catalog whose initial prices are replaced by
// live quotes where one could be fetched. Failures keep the configured price.
// A rate-limit response stops further requests.
func (m *MarketDataService) SeedCatalog(ctx context.Context, catalog []models.Instrument) []models.Instrument {
	out := append([]models.Instrument(nil), catalog...)
	if !m.Enabled() {
		return out
	}
	for i, inst := range out {
		if i > 0 && m.pause > 0 {
			select {
			case <-ctx.Done():
				return out
			case <-time.After(m.pause):
			}
		}
		quote, err := m.GetQuote(ctx, inst.Symbol)
		if err != nil {
			m.logger.Warn("seed price unavailable, keeping catalog price",
				zap.String("symbol", inst.Symbol), zap.Float64("price", inst.InitialPrice), zap.Error(err))
			if errors.Is(err, ErrRateLimited) || ctx.Err() != nil {
				return out
			}
			continue
		}
		out[i].InitialPrice = quote.Price
		m.logger.Info("seeded price", zap.String("symbol", inst.Symbol), zap.Float64("price", quote.Price))
	}
	return out
}

func parsePrice(priceStr string) (float64, error) {
	if priceStr == "" {
		return 0, fmt.Errorf("empty price string")
	}
	cleaned := strings.TrimSpace(priceStr)
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse '%s' as float: %w", cleaned, err)
	}
	return price, nil
}

func parseChangePercent(percentStr string) (float64, error) {
	if percentStr == "" {
		return 0, fmt.Errorf("empty percent string")
	}
	cleaned := strings.TrimSpace(strings.TrimSuffix(percentStr, "%"))
	percent, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse '%s' as float: %w", cleaned, err)
	}
	return percent, nil
}
