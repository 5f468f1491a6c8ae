// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

// Package urlutil provides the absolute-URL parsing, origin extraction, and
// base-join helpers the magnet link and fetcher components rely on.
package urlutil

import (
	"fmt"
	"net/url"
)

// Origin is the (scheme, host, port) triple used to key trust decisions.
// Port is the explicit port, or the scheme's default port for http and https,
// so two URLs differing only in an implicit vs. explicit default port compare
// equal. For any other scheme without an explicit port, Port is empty.
type Origin struct {
	Scheme string
	Host   string
	Port   string
}

func (o Origin) String() string {
	return fmt.Sprintf("%s://%s:%s", o.Scheme, o.Host, o.Port)
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Parse parses an absolute URL per RFC 3986, rejecting relative references.
func Parse(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("urlutil: parse %q: %w", s, err)
	}

	if !u.IsAbs() {
		return nil, fmt.Errorf("urlutil: %q is not an absolute URL", s)
	}

	return u, nil
}

// OriginOf extracts scheme+host+normalized-port from an absolute URL.
func OriginOf(u *url.URL) Origin {
	port := u.Port()
	if port == "" {
		port = defaultPorts[u.Scheme]
	}

	return Origin{Scheme: u.Scheme, Host: u.Hostname(), Port: port}
}

// Join resolves rel against base per RFC 3986, the way callers append a CID
// text to a CDN base URL.
func Join(base *url.URL, rel string) (*url.URL, error) {
	relURL, err := url.Parse(rel)
	if err != nil {
		return nil, fmt.Errorf("urlutil: parse relative %q: %w", rel, err)
	}

	return base.ResolveReference(relURL), nil
}
