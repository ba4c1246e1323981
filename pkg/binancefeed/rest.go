package binancefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
)

// REST is the polling fallback client, used by internal/exchange/rest when
// the WebSocket feed is unavailable and by internal/sourcemanager for
// state-sync backfills after a reconnect. Grounded on the go-binance/v2
// futures client usage seen in the pack (NewKlinesService,
// NewPremiumIndexService); open interest has no SDK service, so it is
// fetched with a direct HTTP GET, matching the pack's own pattern for that
// endpoint.
type REST struct {
	client     *futures.Client
	httpClient *http.Client
	baseURL    string
}

// NewREST creates a REST client. apiKey/apiSecret may be empty: every
// endpoint this package calls is public market data, no signing required.
func NewREST(apiKey, apiSecret string) *REST {
	return &REST{
		client:     futures.NewClient(apiKey, apiSecret),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    "https://fapi.binance.com",
	}
}

// Kline is a decoded REST kline row.
type Kline struct {
	OpenTimeMs  int64
	CloseTimeMs int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	IsClosed    bool
}

// Klines fetches the most recent `limit` 1-minute klines for symbol. The
// final element may be a still-forming candle (Binance returns it as such
// if queried mid-minute), so callers should check IsClosed; this client
// marks every returned candle closed except the last, conservatively.
func (r *REST) Klines(ctx context.Context, symbol string, limit int) ([]Kline, error) {
	raw, err := r.client.NewKlinesService().
		Symbol(symbol).
		Interval("1m").
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binancefeed: klines: %w", err)
	}

	out := make([]Kline, len(raw))
	for i, k := range raw {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		close_, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)
		out[i] = Kline{
			OpenTimeMs:  k.OpenTime,
			CloseTimeMs: k.CloseTime,
			Open:        open,
			High:        high,
			Low:         low,
			Close:       close_,
			Volume:      volume,
			IsClosed:    i < len(raw)-1,
		}
	}
	return out, nil
}

// PremiumIndex is a decoded mark-price/funding-rate snapshot.
type PremiumIndex struct {
	MarkPrice       float64
	LastFundingRate float64
	NextFundingTime int64
}

// PremiumIndex fetches the current mark price and funding rate for symbol.
func (r *REST) PremiumIndex(ctx context.Context, symbol string) (PremiumIndex, error) {
	rows, err := r.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return PremiumIndex{}, fmt.Errorf("binancefeed: premium index: %w", err)
	}
	if len(rows) == 0 {
		return PremiumIndex{}, fmt.Errorf("binancefeed: premium index: no data for %s", symbol)
	}
	row := rows[0]
	markPrice, _ := strconv.ParseFloat(row.MarkPrice, 64)
	fundingRate, _ := strconv.ParseFloat(row.LastFundingRate, 64)
	return PremiumIndex{
		MarkPrice:       markPrice,
		LastFundingRate: fundingRate,
		NextFundingTime: row.NextFundingTime,
	}, nil
}

type openInterestResp struct {
	Symbol       string `json:"symbol"`
	OpenInterest string `json:"openInterest"`
	Time         int64  `json:"time"`
}

// OpenInterest fetches the current open-interest value for symbol via the
// plain /fapi/v1/openInterest REST endpoint (not wrapped by the SDK).
func (r *REST) OpenInterest(ctx context.Context, symbol string) (value float64, eventTimeMs int64, err error) {
	url := fmt.Sprintf("%s/fapi/v1/openInterest?symbol=%s", r.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("binancefeed: open interest request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("binancefeed: open interest: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("binancefeed: open interest read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("binancefeed: open interest: status %d: %s", resp.StatusCode, body)
	}

	var oi openInterestResp
	if err := json.Unmarshal(body, &oi); err != nil {
		return 0, 0, fmt.Errorf("binancefeed: open interest decode: %w", err)
	}

	oiValue, _ := strconv.ParseFloat(oi.OpenInterest, 64)
	return oiValue, oi.Time, nil
}

// ServerTime fetches Binance's server clock, used by sourcemanager's clock
// sanity check.
func (r *REST) ServerTime(ctx context.Context) (int64, error) {
	st, err := r.client.NewServerTimeService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binancefeed: server time: %w", err)
	}
	return st, nil
}
