// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

// Package fetcher implements the integrity-checked fetch: given a magnet
// link, try each candidate URL in order and accept the first body whose
// SHA-256 matches the link's CID.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/blobfed/fednode/cid"
	"github.com/blobfed/fednode/magnet"
	"github.com/blobfed/fednode/urlutil"
)

// ErrNotFound is returned when every candidate URL failed the transport or
// integrity check.
var ErrNotFound = errors.New("fetcher: no candidate returned a matching body")

// NewClient builds the outbound HTTP client used for candidate fetches.
// Retries are disabled: the fetcher's own candidate loop is the retry
// strategy, and a URL is tried at most once.
func NewClient(timeout time.Duration) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = nil
	client.HTTPClient.Timeout = timeout

	return client
}

// Fetch tries every candidate URL of link in order, verifying each response
// body's SHA-256 against link.CID. It returns the first match, skipping any
// candidate that fails at the transport level, returns a non-2xx status, or
// whose body fails the integrity check. If every candidate fails, it returns
// ErrNotFound.
func Fetch(ctx context.Context, client *retryablehttp.Client, link *magnet.Link) ([]byte, error) {
	for _, candidate := range link.CandidateURLs() {
		body, err := getAndCheckCID(ctx, client, candidate, link.CID)
		if err != nil {
			continue
		}

		return body, nil
	}

	return nil, ErrNotFound
}

// getAndCheckCID performs a single GET against u and verifies the body's CID
// matches want. Any transport failure, non-2xx status, or integrity mismatch
// is reported as an error so the caller can move on to the next candidate.
func getAndCheckCID(ctx context.Context, client *retryablehttp.Client, u *url.URL, want cid.CID) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: request %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetcher: %s returned status %d", u, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetcher: read body from %s: %w", u, err)
	}

	got := cid.Of(body)
	if !got.Equal(want) {
		return nil, fmt.Errorf("fetcher: integrity mismatch from %s: expected %s, got %s", u, want.ToText(), got.ToText())
	}

	return body, nil
}

// Head issues a HEAD request against base joined with c's text, to check
// existence without transferring the body. It performs no integrity check:
// HEAD responses carry no body to verify.
func Head(ctx context.Context, client *retryablehttp.Client, base *url.URL, c cid.CID) (*http.Response, error) {
	joined, err := urlutil.Join(base, c.ToText())
	if err != nil {
		return nil, fmt.Errorf("fetcher: join HEAD URL: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, joined.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: build HEAD request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: HEAD %s: %w", joined, err)
	}

	return resp, nil
}
