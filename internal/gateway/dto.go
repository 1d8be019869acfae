package gateway

import (
	"trading-overlays/internal/model"
	"trading-overlays/internal/overlay"
)

// SubscribeMsg asks the hub for overlays of one series, refreshed whenever
// new candles arrive. Indicators use the "TYPE:P1:P2" spec form.
type SubscribeMsg struct {
	Type       string   `json:"type"`
	ReqID      string   `json:"req_id,omitempty"`
	Symbol     string   `json:"symbol"`
	TF         int      `json:"tf"`
	Indicators []string `json:"indicators"`
	Preset     string   `json:"preset,omitempty"`
	Window     int      `json:"window,omitempty"`
}

// UnsubscribeMsg stops updates for a series.
type UnsubscribeMsg struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	TF     int    `json:"tf"`
}

// OverlaysMsg is pushed on subscribe and after every candle update.
type OverlaysMsg struct {
	Type  string `json:"type"` // "overlays"
	ReqID string `json:"req_id,omitempty"`
	*overlay.Response
}

// ErrorMsg reports a failed websocket request.
type ErrorMsg struct {
	Type  string `json:"type"` // "error"
	ReqID string `json:"req_id,omitempty"`
	Error string `json:"error"`
}

// ImportRequest is the body of POST /api/candles. Derive lists coarser
// timeframes (multiples of TF) to rebuild from the imported candles.
type ImportRequest struct {
	Symbol  string         `json:"symbol"`
	TF      int            `json:"tf"`
	Candles []model.Candle `json:"candles"`
	Derive  []int          `json:"derive,omitempty"`
}

// SymbolOut is one /api/symbols result.
type SymbolOut struct {
	model.SymbolInfo
	Label string `json:"label"`
}
