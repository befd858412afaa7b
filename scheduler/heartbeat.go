// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Heartbeat pings a health-check URL after every successful pass.
type Heartbeat struct {
	url    string
	client *http.Client
}

func NewHeartbeat(url string, timeout time.Duration) *Heartbeat {
	if url == "" {
		return nil
	}
	return &Heartbeat{url: url, client: &http.Client{Timeout: timeout}}
}

func (h *Heartbeat) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("heartbeat %s returned %s", h.url, resp.Status)
	}
	return nil
}
