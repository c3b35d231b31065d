package decode

import (
	"bytes"

	"github.com/quantex/mexc-stream/internal/model"
)

// Status indicator markers. The matching engine writes these as substrings
// (or indicator bytes rendered as text) anywhere in a private order frame,
// and more than one can be present at once.
var (
	cancelMarkers  = [][]byte{[]byte("CANCELED"), []byte("CANCELLED"), []byte("CANCEL")}
	partialMarkers = [][]byte{[]byte("PARTIALLY_FILLED"), []byte("PARTIAL_FILL"), []byte("PARTFILL")}
	fillMarkers    = [][]byte{[]byte("FILLED"), []byte("FILL")}
)

// ResolveStatus derives the canonical order status from a single frame.
//
// The cancel marker wins over everything else: the matching engine emits a
// stale fill indicator on cancellation frames, and resolving "last marker
// wins" would report a cancelled order as executed inventory. Do not reorder
// these checks.
func ResolveStatus(frame []byte) model.OrderStatus {
	upper := bytes.ToUpper(frame)

	if containsAny(upper, cancelMarkers) {
		return model.OrderStatusCancelled
	}
	if containsAny(upper, partialMarkers) {
		return model.OrderStatusPartiallyFilled
	}
	if containsAny(upper, fillMarkers) {
		return model.OrderStatusFilled
	}
	return model.OrderStatusNew
}

func containsAny(frame []byte, markers [][]byte) bool {
	for _, m := range markers {
		if bytes.Contains(frame, m) {
			return true
		}
	}
	return false
}
