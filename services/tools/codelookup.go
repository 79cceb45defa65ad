// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CodeCitation is a building-code reference the strategist can attach
// to a supplement proposal.
type CodeCitation struct {
	Code         string `json:"code"`
	Section      string `json:"section"`
	Title        string `json:"title"`
	Summary      string `json:"summary"`
	Category     string `json:"category"`
	Jurisdiction string `json:"jurisdiction"`
}

// CodeLookup resolves jurisdiction-specific building code citations for
// a set of work categories.
type CodeLookup interface {
	Citations(ctx context.Context, jurisdiction string, categories []string) ([]CodeCitation, error)
}

// HTTPCodeLookup queries an external code reference service.
type HTTPCodeLookup struct {
	baseURL string
	client  *http.Client
}

var _ CodeLookup = (*HTTPCodeLookup)(nil)

// NewHTTPCodeLookup targets a code lookup service at baseURL.
func NewHTTPCodeLookup(baseURL string) *HTTPCodeLookup {
	return &HTTPCodeLookup{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Citations implements CodeLookup.
func (c *HTTPCodeLookup) Citations(ctx context.Context, jurisdiction string, categories []string) ([]CodeCitation, error) {
	q := url.Values{}
	q.Set("jurisdiction", jurisdiction)
	q.Set("categories", strings.Join(categories, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/citations?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build citation request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("code lookup service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("code lookup service returned %d", resp.StatusCode)
	}
	var out struct {
		Citations []CodeCitation `json:"citations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode citations: %w", err)
	}
	return out.Citations, nil
}
