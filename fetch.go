// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// fetchClient performs the out-of-band HTTP fetches behind the
// download and PDF strategies. It replicates the browser session's
// cookies and referer onto each request so protected binaries resolve
// the same way they would inside the tab, and rate-limits so a burst
// of direct-link downloads does not hammer the target host.
type fetchClient struct {
	http    *http.Client
	limiter *rate.Limiter
	auth    Authenticator
	log     Logger
}

func newFetchClient(httpClient *http.Client, limiter *rate.Limiter, auth Authenticator, log Logger) *fetchClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &fetchClient{http: httpClient, limiter: limiter, auth: auth, log: log}
}

// fetch GETs rawURL and returns the response body. It fails on HTTP
// error statuses and on empty bodies, both of which the strategy
// ladders treat as "try the next strategy".
func (f *fetchClient) fetch(ctx context.Context, rawURL, referer string, cookies []Cookie) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, NormalizeURL(rawURL), nil)
	if err != nil {
		return nil, fmt.Errorf("building fetch request for %s: %w", rawURL, err)
	}
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	if f.auth != nil {
		if err := f.auth.Apply(req); err != nil {
			return nil, err
		}
	}

	f.log.Debug("fetching %s", rawURL)
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", rawURL, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetching %s: empty body", rawURL)
	}
	return body, nil
}
