// Package model defines shared data types used across the MEXC stream connector.
//
// Conventions:
//   - Prices and quantities: decimal.Decimal (the exchange emits decimal strings)
//   - Timestamps: time.Time; local receive clock when the frame embeds none
//   - Symbols: "BASE/QUOTE" (e.g. "BTC/USDT"); channel strings use the
//     exchange's concatenated form ("BTCUSDT")
package model
