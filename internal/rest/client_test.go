package rest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://api.mexc.com", "test-key", "test-secret")

		if c.baseURL != "https://api.mexc.com" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://api.mexc.com")
		}
		if c.apiKey != "test-key" {
			t.Errorf("apiKey = %q, want %q", c.apiKey, "test-key")
		}
		if c.secretKey != "test-secret" {
			t.Errorf("secretKey = %q, want %q", c.secretKey, "test-secret")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("https://api.mexc.com", "", "",
			WithTimeout(5*time.Second),
			WithRetries(5, 2*time.Second),
			WithLogger(logger),
		)
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 5*time.Second)
		}
		if c.maxRetries != 5 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 5)
		}
		if c.retryBackoff != 2*time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, 2*time.Second)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		custom := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("https://api.mexc.com", "", "", WithHTTPClient(custom))
		if c.httpClient != custom {
			t.Error("custom HTTP client not set")
		}
	})
}

func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: 404, Message: "Not Found"}
	if got, want := err.Error(), "mexc api error 404: Not Found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	retryable := []int{429, 500, 502, 503}
	for _, code := range retryable {
		e := &APIError{StatusCode: code}
		if !e.IsRetryable() {
			t.Errorf("IsRetryable(%d) = false, want true", code)
		}
	}
	terminal := []int{400, 401, 403, 404, 418}
	for _, code := range terminal {
		e := &APIError{StatusCode: code}
		if e.IsRetryable() {
			t.Errorf("IsRetryable(%d) = true, want false", code)
		}
	}
}

// verifySignature recomputes the HMAC over the request's query string,
// excluding the signature parameter itself.
func verifySignature(t *testing.T, r *http.Request, secret string) {
	t.Helper()

	query := r.URL.Query()
	sig := query.Get("signature")
	if sig == "" {
		t.Error("request missing signature parameter")
		return
	}
	query.Del("signature")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query.Encode()))
	want := hex.EncodeToString(mac.Sum(nil))

	if sig != want {
		t.Errorf("signature = %q, want %q", sig, want)
	}
}

func TestSignedRequest(t *testing.T) {
	const secret = "super-secret"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-MEXC-APIKEY"); got != "key-1" {
			t.Errorf("X-MEXC-APIKEY = %q, want %q", got, "key-1")
		}

		query := r.URL.Query()
		if query.Get("recvWindow") != recvWindow {
			t.Errorf("recvWindow = %q, want %q", query.Get("recvWindow"), recvWindow)
		}
		ts, err := strconv.ParseInt(query.Get("timestamp"), 10, 64)
		if err != nil {
			t.Errorf("timestamp %q not numeric: %v", query.Get("timestamp"), err)
		}
		if drift := time.Since(time.UnixMilli(ts)); drift < 0 || drift > time.Minute {
			t.Errorf("timestamp drift = %v", drift)
		}

		verifySignature(t, r, secret)

		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "key-1", secret)

	query := url.Values{}
	query.Set("listenKey", "abc123")
	if err := c.call(context.Background(), http.MethodPut, userDataStreamPath, query, true, nil); err != nil {
		t.Fatalf("call failed: %v", err)
	}
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ping" {
			t.Errorf("path = %q, want /api/v3/ping", r.URL.Path)
		}
		if r.URL.Query().Get("signature") != "" {
			t.Error("ping must not be signed")
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "")
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestListenKeyLifecycle(t *testing.T) {
	const secret = "s3cret"

	var created, keptAlive, deleted atomic.Bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != userDataStreamPath {
			t.Errorf("path = %q, want %q", r.URL.Path, userDataStreamPath)
		}
		verifySignature(t, r, secret)

		switch r.Method {
		case http.MethodPost:
			created.Store(true)
			w.Write([]byte(`{"listenKey":"lk-123"}`))
		case http.MethodPut:
			if got := r.URL.Query().Get("listenKey"); got != "lk-123" {
				t.Errorf("keepalive listenKey = %q, want lk-123", got)
			}
			keptAlive.Store(true)
			w.Write([]byte(`{}`))
		case http.MethodDelete:
			if got := r.URL.Query().Get("listenKey"); got != "lk-123" {
				t.Errorf("delete listenKey = %q, want lk-123", got)
			}
			deleted.Store(true)
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", secret)
	ctx := context.Background()

	key, err := c.CreateListenKey(ctx)
	if err != nil {
		t.Fatalf("CreateListenKey failed: %v", err)
	}
	if key != "lk-123" {
		t.Errorf("listen key = %q, want lk-123", key)
	}

	if err := c.KeepAliveListenKey(ctx, key); err != nil {
		t.Fatalf("KeepAliveListenKey failed: %v", err)
	}
	if err := c.DeleteListenKey(ctx, key); err != nil {
		t.Fatalf("DeleteListenKey failed: %v", err)
	}

	if !created.Load() || !keptAlive.Load() || !deleted.Load() {
		t.Errorf("lifecycle incomplete: created=%v keptAlive=%v deleted=%v",
			created.Load(), keptAlive.Load(), deleted.Load())
	}
}

func TestCreateListenKeyEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "secret")
	if _, err := c.CreateListenKey(context.Background()); !errors.Is(err, ErrEmptyListenKey) {
		t.Errorf("CreateListenKey = %v, want ErrEmptyListenKey", err)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "", WithRetries(3, 10*time.Millisecond))
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "", WithRetries(3, 10*time.Millisecond))

	err := c.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("error = %v, want APIError 401", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls.Load())
	}
}
