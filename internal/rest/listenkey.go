package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

const userDataStreamPath = "/api/v3/userDataStream"

// ErrEmptyListenKey is returned when the server answers a listen key
// request without a key.
var ErrEmptyListenKey = errors.New("server returned an empty listen key")

type listenKeyResponse struct {
	ListenKey string `json:"listenKey"`
}

// Ping checks connectivity against the unauthenticated ping endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/api/v3/ping", nil, false, nil)
}

// CreateListenKey acquires a fresh listen key for the user-data stream.
// The key is valid for 60 minutes unless kept alive.
func (c *Client) CreateListenKey(ctx context.Context) (string, error) {
	var resp listenKeyResponse
	if err := c.call(ctx, http.MethodPost, userDataStreamPath, nil, true, &resp); err != nil {
		return "", fmt.Errorf("create listen key: %w", err)
	}
	if resp.ListenKey == "" {
		return "", ErrEmptyListenKey
	}

	c.logger.Debug("listen key created")
	return resp.ListenKey, nil
}

// KeepAliveListenKey extends the validity of an existing listen key.
func (c *Client) KeepAliveListenKey(ctx context.Context, key string) error {
	query := url.Values{}
	query.Set("listenKey", key)

	if err := c.call(ctx, http.MethodPut, userDataStreamPath, query, true, nil); err != nil {
		return fmt.Errorf("keepalive listen key: %w", err)
	}

	c.logger.Debug("listen key kept alive")
	return nil
}

// DeleteListenKey revokes a listen key. The server closes the associated
// user-data socket shortly after.
func (c *Client) DeleteListenKey(ctx context.Context, key string) error {
	query := url.Values{}
	query.Set("listenKey", key)

	if err := c.call(ctx, http.MethodDelete, userDataStreamPath, query, true, nil); err != nil {
		return fmt.Errorf("delete listen key: %w", err)
	}

	c.logger.Debug("listen key deleted")
	return nil
}
