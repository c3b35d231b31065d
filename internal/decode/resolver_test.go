package decode

import (
	"testing"

	"github.com/quantex/mexc-stream/internal/model"
)

func TestResolveStatus(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  model.OrderStatus
	}{
		{
			name:  "no markers",
			frame: "spot@private.orders.v3.api.pb C02__1234 BTCUSDT",
			want:  model.OrderStatusNew,
		},
		{
			name:  "fill marker only",
			frame: "C02__1234 BTCUSDT FILLED price:0.52",
			want:  model.OrderStatusFilled,
		},
		{
			name:  "partial fill marker",
			frame: "C02__1234 BTCUSDT PARTIALLY_FILLED",
			want:  model.OrderStatusPartiallyFilled,
		},
		{
			name:  "cancel marker only",
			frame: "C02__1234 BTCUSDT CANCELED",
			want:  model.OrderStatusCancelled,
		},
		{
			name:  "cancel beats stale fill marker",
			frame: "C02__1234 BTCUSDT FILLED CANCELED",
			want:  model.OrderStatusCancelled,
		},
		{
			name:  "cancel beats partial fill marker",
			frame: "C02__1234 BTCUSDT PARTIALLY_FILLED CANCEL",
			want:  model.OrderStatusCancelled,
		},
		{
			name:  "marker order in frame is irrelevant",
			frame: "CANCELLED then later FILLED",
			want:  model.OrderStatusCancelled,
		},
		{
			name:  "lowercase markers",
			frame: "C02__1234 indyusdt canceled filled",
			want:  model.OrderStatusCancelled,
		},
		{
			name:  "partial marker is not mistaken for plain fill",
			frame: "C02__1234 PARTIAL_FILL",
			want:  model.OrderStatusPartiallyFilled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveStatus([]byte(tt.frame)); got != tt.want {
				t.Errorf("ResolveStatus(%q) = %q, want %q", tt.frame, got, tt.want)
			}
		})
	}
}

func TestResolveStatus_Deterministic(t *testing.T) {
	frame := []byte("C02__99 BTCUSDT FILLED CANCELED")
	first := ResolveStatus(frame)
	for i := 0; i < 100; i++ {
		if got := ResolveStatus(frame); got != first {
			t.Fatalf("ResolveStatus changed between calls: %q then %q", first, got)
		}
	}
}
