package subscription

import (
	"fmt"
	"strings"
)

// Channel string grammar. The exchange namespaces every stream under "spot@"
// and versions the protobuf-like channels with a ".pb" suffix.
const (
	namespace      = "spot"
	channelVersion = "v3.api.pb"

	// DefaultInterval is the server-side aggregation interval for the
	// aggre.* channels.
	DefaultInterval = "100ms"
)

// NormalizeSymbol converts "BTC/USDT" to the exchange's concatenated form
// "BTCUSDT". Already-concatenated symbols pass through unchanged.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

// TickerChannel returns the aggregated best-bid/offer channel for a symbol.
func TickerChannel(symbol, interval string) string {
	if interval == "" {
		interval = DefaultInterval
	}
	return fmt.Sprintf("%s@public.aggre.bookTicker.%s@%s@%s",
		namespace, channelVersion, interval, NormalizeSymbol(symbol))
}

// OrderBookChannel returns the batched book snapshot channel for a symbol.
func OrderBookChannel(symbol string) string {
	return fmt.Sprintf("%s@public.bookTicker.batch.%s@%s",
		namespace, channelVersion, NormalizeSymbol(symbol))
}

// TradesChannel returns the aggregated public deals channel for a symbol.
func TradesChannel(symbol, interval string) string {
	if interval == "" {
		interval = DefaultInterval
	}
	return fmt.Sprintf("%s@public.aggre.deals.%s@%s@%s",
		namespace, channelVersion, interval, NormalizeSymbol(symbol))
}

// OrdersChannel returns the private order/fill channel. It carries no
// symbol; the user-data socket scopes it to the authenticated account.
func OrdersChannel() string {
	return fmt.Sprintf("%s@private.orders.%s", namespace, channelVersion)
}
