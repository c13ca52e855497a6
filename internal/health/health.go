// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package health implements the platform side of the liveness check.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnhealthy is returned when the service answers with a non-2xx status.
var ErrUnhealthy = errors.New("service unhealthy")

// Prober issues liveness requests.
type Prober struct {
	Client *http.Client
	// Timeout bounds a single probe. Zero means no per-probe bound beyond ctx.
	Timeout time.Duration
}

// Probe requests url once and returns nil for any 2xx answer.
func (p Prober) Probe(ctx context.Context, url string) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("User-Agent", "launchpad-health")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s answered %d", ErrUnhealthy, url, resp.StatusCode)
	}
	return nil
}

// WaitHealthy probes url every interval until it succeeds or ctx ends. The
// last probe error is returned with the context error.
func (p Prober) WaitHealthy(ctx context.Context, url string, interval time.Duration) error {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last error
	for {
		if last = p.Probe(ctx, url); last == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last probe: %v)", ctx.Err(), last)
		case <-ticker.C:
		}
	}
}
