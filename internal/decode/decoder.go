package decode

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantex/mexc-stream/internal/model"
)

// namespaceMarker prefixes every channel name the exchange emits. Frames
// without it are not channel data (handshake acks, PONGs, junk).
const namespaceMarker = "spot@"

var (
	// channelRe matches the leading namespace-prefixed channel token.
	channelRe = regexp.MustCompile(`spot@[A-Za-z0-9@.]+`)

	// orderIDRe matches the exchange's textual order-id token, e.g.
	// "C02__443776016777257055069".
	orderIDRe = regexp.MustCompile(`C\d{2}__\d+`)

	// symbolRe extracts BASEQUOTE pairs using the known quote-currency
	// whitelist. Longer quotes come first so USDT is not split as USD+T.
	symbolRe = regexp.MustCompile(`([A-Z0-9]{2,15}?)(USDT|USDC|TUSD|USD|BTC|ETH|EUR)`)

	// decimalRe matches positional decimal numbers. Integers are skipped on
	// purpose: version tokens and intervals inside channel names are bare
	// integers and would otherwise pollute the extraction.
	decimalRe = regexp.MustCompile(`\d+\.\d+`)

	// Marker-anchored numeric candidates, tried before positional fallback.
	priceAnchorRe  = regexp.MustCompile(`(?:price|px)[:=](\d+(?:\.\d+)?)`)
	qtyAnchorRe    = regexp.MustCompile(`(?:qty|vol)[:=](\d+(?:\.\d+)?)`)
	filledAnchorRe = regexp.MustCompile(`(?:filledQty|dealQty|cumQty)[:=](\d+(?:\.\d+)?)`)
	amountAnchorRe = regexp.MustCompile(`(?:amount|dealAmt)[:=](\d+(?:\.\d+)?)`)

	// sideRe and tradeTypeRe read the side indicator byte rendered after a
	// marker. Orders default to buy; deals treat anything but 1 as sell.
	sideRe      = regexp.MustCompile(`(?:side|S)[:=](\d)`)
	tradeTypeRe = regexp.MustCompile(`(?:tradeType|tradetype|T)[:=](\d)`)
)

// Decode turns one raw frame into a tagged event. It is a pure function of
// the frame bytes and never panics or returns a Go error: malformed input
// yields an Unknown or DecodeError event, because the caller's read loop
// processes an unbounded frame sequence and one bad frame must not end it.
func Decode(frame []byte) (ev model.Event) {
	channel := extractChannel(frame)
	if channel == "" {
		return model.Event{Kind: model.EventUnknown}
	}

	defer func() {
		if r := recover(); r != nil {
			ev = model.Event{
				Kind:    model.EventDecodeError,
				Channel: channel,
				Err: &model.DecodeError{
					Raw:     frame,
					Channel: channel,
					Reason:  fmt.Sprintf("panic during decode: %v", r),
				},
			}
		}
	}()

	switch {
	case strings.Contains(channel, "private.orders"):
		return decodeOrder(frame, channel)
	case strings.Contains(channel, "bookTicker"):
		return decodeTicker(frame, channel)
	case strings.Contains(channel, "deals"):
		return decodeDeals(frame, channel)
	default:
		return model.Event{Kind: model.EventUnknown, Channel: channel}
	}
}

// extractChannel returns the leading namespace-prefixed channel token, or ""
// when the frame carries no namespace marker.
func extractChannel(frame []byte) string {
	if !bytes.Contains(frame, []byte(namespaceMarker)) {
		return ""
	}
	return string(channelRe.Find(frame))
}

// decodeOrder handles spot@private.orders frames.
func decodeOrder(frame []byte, channel string) model.Event {
	update := &model.OrderUpdate{
		OrderID:   string(orderIDRe.Find(frame)),
		Symbol:    extractSymbol(frame),
		Price:     extractNumber(frame, priceAnchorRe, 0),
		Qty:       extractNumber(frame, qtyAnchorRe, 1),
		FilledQty: extractAnchored(frame, filledAnchorRe),
		Amount:    extractAnchored(frame, amountAnchorRe),
		Side:      extractOrderSide(frame),
		Status:    ResolveStatus(frame),
		Timestamp: time.Now(),
	}

	return model.Event{Kind: model.EventOrderUpdate, Channel: channel, Order: update}
}

// decodeTicker handles both aggregated and batched bookTicker frames.
func decodeTicker(frame []byte, channel string) model.Event {
	nums := findDecimals(frame, 4)

	update := &model.TickerUpdate{
		Symbol: extractSymbol(frame),
		Bid:    numAt(nums, 0),
		Ask:    numAt(nums, 1),
		BidQty: numAt(nums, 2),
		AskQty: numAt(nums, 3),
	}

	return model.Event{Kind: model.EventTicker, Channel: channel, Ticker: update}
}

// decodeDeals handles public deals (trade) frames. A frame with no decimal
// numbers decodes to an empty deal list; downstream treats that as "no
// trade", not as an error.
func decodeDeals(frame []byte, channel string) model.Event {
	nums := findDecimals(frame, 2)
	if len(nums) == 0 {
		return model.Event{Kind: model.EventTrade, Channel: channel, Trades: []model.TradeUpdate{}}
	}

	deal := model.TradeUpdate{
		Symbol:    extractSymbol(frame),
		Price:     numAt(nums, 0),
		Qty:       numAt(nums, 1),
		Side:      extractTradeSide(frame),
		Timestamp: time.Now(),
	}

	return model.Event{Kind: model.EventTrade, Channel: channel, Trades: []model.TradeUpdate{deal}}
}

// extractSymbol finds the first BASEQUOTE token and renders it as
// "BASE/QUOTE". Returns "" when no whitelisted quote suffix is present.
func extractSymbol(frame []byte) string {
	m := symbolRe.FindSubmatch(frame)
	if m == nil {
		return ""
	}
	return string(m[1]) + "/" + string(m[2])
}

// extractNumber tries the marker-anchored pattern first, then falls back to
// the positional decimal at the given index, then to zero.
func extractNumber(frame []byte, anchored *regexp.Regexp, fallbackIdx int) decimal.Decimal {
	if v := extractAnchored(frame, anchored); !v.IsZero() {
		return v
	}
	nums := findDecimals(frame, fallbackIdx+1)
	return numAt(nums, fallbackIdx)
}

// extractAnchored returns the number captured by a marker-anchored pattern,
// or zero when the marker is absent.
func extractAnchored(frame []byte, re *regexp.Regexp) decimal.Decimal {
	m := re.FindSubmatch(frame)
	if m == nil {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(string(m[1]))
	if err != nil {
		return decimal.Zero
	}
	return v
}

// findDecimals returns up to max positional decimal numbers from the frame.
func findDecimals(frame []byte, max int) []decimal.Decimal {
	matches := decimalRe.FindAll(frame, max)
	nums := make([]decimal.Decimal, 0, len(matches))
	for _, m := range matches {
		v, err := decimal.NewFromString(string(m))
		if err != nil {
			continue
		}
		nums = append(nums, v)
	}
	return nums
}

func numAt(nums []decimal.Decimal, idx int) decimal.Decimal {
	if idx >= len(nums) {
		return decimal.Zero
	}
	return nums[idx]
}

// extractOrderSide reads the order side from substring or indicator-byte
// markers. Missing markers default to buy.
func extractOrderSide(frame []byte) model.Side {
	if bytes.Contains(bytes.ToUpper(frame), []byte("SELL")) {
		return model.SideSell
	}
	if m := sideRe.FindSubmatch(frame); m != nil && string(m[1]) == "2" {
		return model.SideSell
	}
	return model.SideBuy
}

// extractTradeSide reads the deal type indicator: 1 means buy, anything
// else sells.
func extractTradeSide(frame []byte) model.Side {
	if m := tradeTypeRe.FindSubmatch(frame); m != nil && string(m[1]) == "1" {
		return model.SideBuy
	}
	return model.SideSell
}
