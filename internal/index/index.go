// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package index talks to a package index that serves the PyPI JSON API
// (`GET /pypi/<name>/<version>/json`) and evaluates the runtime constraints
// its releases declare.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultURL is the public index.
const DefaultURL = "https://pypi.org"

var (
	// ErrNotFound is returned when the index does not know name==version.
	ErrNotFound = errors.New("release not found")
	// ErrYanked is returned for releases withdrawn from the index.
	ErrYanked = errors.New("release was yanked")
	// ErrIncompatible is returned when a release excludes the runtime.
	ErrIncompatible = errors.New("release is incompatible with runtime")
)

// Release is the subset of release metadata the build step needs.
type Release struct {
	Name           string
	Version        string
	RequiresPython string
	Yanked         bool
	YankedReason   string
}

type releaseDoc struct {
	Info struct {
		Name           string  `json:"name"`
		Version        string  `json:"version"`
		RequiresPython *string `json:"requires_python"`
		Yanked         bool    `json:"yanked"`
		YankedReason   *string `json:"yanked_reason"`
	} `json:"info"`
}

// Client looks up releases. The zero value uses DefaultURL.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a client for baseURL with a bounded request timeout.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

// Release fetches the metadata of name==version.
func (c *Client) Release(ctx context.Context, name, version string) (*Release, error) {
	base := c.BaseURL
	if base == "" {
		base = DefaultURL
	}
	u := strings.TrimRight(base, "/") + "/pypi/" + url.PathEscape(name) + "/" + url.PathEscape(version) + "/json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build index request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query index for %s==%s: %w", name, version, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s==%s", ErrNotFound, name, version)
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("index answered %d for %s==%s: %s", resp.StatusCode, name, version, strings.TrimSpace(string(snippet)))
	}

	var doc releaseDoc
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode index response for %s==%s: %w", name, version, err)
	}
	rel := &Release{
		Name:    doc.Info.Name,
		Version: doc.Info.Version,
		Yanked:  doc.Info.Yanked,
	}
	if doc.Info.RequiresPython != nil {
		rel.RequiresPython = *doc.Info.RequiresPython
	}
	if doc.Info.YankedReason != nil {
		rel.YankedReason = *doc.Info.YankedReason
	}
	return rel, nil
}
