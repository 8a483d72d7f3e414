package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/npezzotti/go-chatrelay/internal/connector"
	"github.com/npezzotti/go-chatrelay/internal/types"
)

// wsURL maps the relay base URL onto its websocket endpoint.
func wsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	return u.String(), nil
}

func apiGet(ctx context.Context, path string, out any) error {
	endpoint := strings.TrimRight(serverURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("GET %s: %s", path, apiErr.Error)
		}
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func connect(ctx context.Context) (*connector.Connector, error) {
	u, err := wsURL(serverURL)
	if err != nil {
		return nil, err
	}

	c := connector.New(connector.Options{
		URL:     u,
		Timeout: timeout,
		Logger:  newLogger(),
	})
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// roundTrip joins roomId, runs emit once the join snapshots have arrived
// and waits for the first event that subscribe forwards.
func roundTrip[T any](ctx context.Context, roomId string,
	subscribe func(c *connector.Connector, got chan<- T),
	emit func(c *connector.Connector) error,
) (T, error) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, err := connect(ctx)
	if err != nil {
		return zero, err
	}
	defer c.Disconnect()

	// pinned-messages is the last frame of a join
	joined := make(chan struct{}, 1)
	c.OnPinnedMessages(func([]types.Message) {
		select {
		case joined <- struct{}{}:
		default:
		}
	})
	got := make(chan T, 16)
	subscribe(c, got)

	if err := c.JoinRoom(roomId); err != nil {
		return zero, err
	}
	select {
	case <-joined:
	case <-ctx.Done():
		return zero, fmt.Errorf("join %s: %w", roomId, ctx.Err())
	}

	if err := emit(c); err != nil {
		return zero, err
	}

	select {
	case v := <-got:
		return v, nil
	case <-ctx.Done():
		return zero, fmt.Errorf("no confirmation from relay: %w", ctx.Err())
	}
}

func forward[T any](got chan<- T, v T) {
	select {
	case got <- v:
	default:
	}
}
