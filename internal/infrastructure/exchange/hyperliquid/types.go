package hyperliquid

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// InfoRequest is the envelope for info endpoint requests.
type InfoRequest struct {
	Type string `json:"type"`
}

// Num is a numeric field the API encodes as a string. It also accepts bare
// JSON numbers and null so that one odd field never fails the whole payload.
type Num string

func (n *Num) UnmarshalJSON(b []byte) error {
	s := bytes.TrimSpace(b)
	switch {
	case len(s) == 0, bytes.Equal(s, []byte("null")):
		*n = ""
	case s[0] == '"':
		var v string
		if err := json.Unmarshal(s, &v); err != nil {
			return err
		}
		*n = Num(v)
	default:
		*n = Num(s)
	}
	return nil
}

// Decimal parses n, reporting false when it is empty or malformed.
func (n Num) Decimal() (decimal.Decimal, bool) {
	if n == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// DecimalOrZero parses n, degrading to zero.
func (n Num) DecimalOrZero() decimal.Decimal {
	d, _ := n.Decimal()
	return d
}

// UniverseEntry enumerates one tradable perpetual.
type UniverseEntry struct {
	Name        string  `json:"name"`
	SzDecimals  int     `json:"szDecimals"`
	MaxLeverage float64 `json:"maxLeverage"`
	IsDelisted  bool    `json:"isDelisted"`
}

// AssetCtx is the per-market context, positionally aligned with the universe.
type AssetCtx struct {
	Funding      Num   `json:"funding"`
	OpenInterest Num   `json:"openInterest"`
	PrevDayPx    Num   `json:"prevDayPx"`
	DayNtlVlm    Num   `json:"dayNtlVlm"`
	Premium      Num   `json:"premium"`
	OraclePx     Num   `json:"oraclePx"`
	MarkPx       Num   `json:"markPx"`
	MidPx        Num   `json:"midPx"`
	ImpactPxs    []Num `json:"impactPxs"`
}

// MetaAndAssetCtxsResponse is the `[universeDescriptor, contextArray]` payload.
type MetaAndAssetCtxsResponse struct {
	Universe  []UniverseEntry
	AssetCtxs []AssetCtx
}

// UnmarshalJSON accepts the universe descriptor either as an object with a
// "universe" array or as a bare array.
func (m *MetaAndAssetCtxsResponse) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("expected array response: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("expected 2 elements in response, got %d", len(raw))
	}

	universe, err := decodeUniverse(raw[0])
	if err != nil {
		return err
	}
	var ctxs []AssetCtx
	if err := json.Unmarshal(raw[1], &ctxs); err != nil {
		return fmt.Errorf("expected asset context array: %w", err)
	}

	m.Universe = universe
	m.AssetCtxs = ctxs
	return nil
}

func decodeUniverse(raw json.RawMessage) ([]UniverseEntry, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []UniverseEntry
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("expected universe array: %w", err)
		}
		return list, nil
	}

	var meta struct {
		Universe *[]UniverseEntry `json:"universe"`
	}
	if err := json.Unmarshal(trimmed, &meta); err != nil {
		return nil, fmt.Errorf("expected universe object: %w", err)
	}
	if meta.Universe == nil {
		return nil, errors.New("expected universe array")
	}
	return *meta.Universe, nil
}
