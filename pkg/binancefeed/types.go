// Package binancefeed is the low-level Binance USDT-M futures client: a
// WebSocket combined-stream reader and a REST poller, split the way the
// teacher splits pkg/smartconnect into client.go (REST/auth) and
// websocket.go (streaming transport). Callers above this package
// (internal/exchange/ws, internal/exchange/rest) translate the wire
// types here into perpsignal/internal/model values.
package binancefeed

import "encoding/json"

// combinedStreamEnvelope wraps every message on a combined WS stream
// (wss://fstream.binance.com/stream?streams=...).
type combinedStreamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// BookTickerEvent is the wire shape of a bookTicker stream message.
type BookTickerEvent struct {
	EventType   string `json:"e"`
	EventTimeMs int64  `json:"E"`
	Symbol      string `json:"s"`
	BestBidPx   string `json:"b"`
	BestAskPx   string `json:"a"`
}

// KlineEvent is the wire shape of a kline_1m stream message.
type KlineEvent struct {
	EventType   string     `json:"e"`
	EventTimeMs int64      `json:"E"`
	Symbol      string     `json:"s"`
	Kline       KlinePayload `json:"k"`
}

// KlinePayload is the nested "k" object of a kline event.
type KlinePayload struct {
	OpenTimeMs  int64  `json:"t"`
	CloseTimeMs int64  `json:"T"`
	Interval    string `json:"i"`
	Open        string `json:"o"`
	Close       string `json:"c"`
	High        string `json:"h"`
	Low         string `json:"l"`
	Volume      string `json:"v"`
	IsClosed    bool   `json:"x"`
}

// MarkPriceEvent is the wire shape of a markPrice@1s stream message.
type MarkPriceEvent struct {
	EventType       string `json:"e"`
	EventTimeMs     int64  `json:"E"`
	Symbol          string `json:"s"`
	MarkPrice       string `json:"p"`
	LastFundingRate string `json:"r"`
	NextFundingTime int64  `json:"T"`
}
