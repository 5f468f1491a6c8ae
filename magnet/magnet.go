// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

// Package magnet implements the magnet-link grammar: parsing, serialization,
// and candidate-URL derivation for a content identifier plus fetch hints.
package magnet

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/blobfed/fednode/cid"
	"github.com/blobfed/fednode/urlutil"
)

// Link is a parsed magnet:? link.
type Link struct {
	CID cid.CID
	WS  []*url.URL
	CDN []*url.URL
	XT  string
	DN  string

	hasXT bool
	hasDN bool
}

// New creates a minimal Link carrying only a CID.
func New(c cid.CID) *Link {
	return &Link{CID: c}
}

// Error reports why a magnet link failed to parse.
type Error struct {
	Message string
}

func (e *Error) Error() string { return "magnet: " + e.Message }

func errf(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// Parse parses a magnet:?... URI. The cid parameter is required; ws and cdn
// entries that fail URL parsing are dropped silently; xt and dn take their
// first occurrence.
func Parse(s string) (*Link, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, errf("invalid URI: %s", err)
	}

	if u.Scheme != "magnet" {
		return nil, errf("not a magnet: URI")
	}

	query := u.Query()

	cidValues, ok := query["cid"]
	if !ok || len(cidValues) == 0 {
		return nil, errf("missing required cid parameter")
	}

	c, err := cid.Parse(cidValues[0])
	if err != nil {
		return nil, errf("invalid cid parameter: %s", err)
	}

	link := &Link{CID: c}

	for _, raw := range query["ws"] {
		if wsURL, err := urlutil.Parse(raw); err == nil {
			link.WS = append(link.WS, wsURL)
		}
	}

	for _, raw := range query["cdn"] {
		if cdnURL, err := urlutil.Parse(raw); err == nil {
			link.CDN = append(link.CDN, cdnURL)
		}
	}

	if xt, ok := query["xt"]; ok && len(xt) > 0 {
		link.XT, link.hasXT = xt[0], true
	}

	if dn, ok := query["dn"]; ok && len(dn) > 0 {
		link.DN, link.hasDN = dn[0], true
	}

	return link, nil
}

// String serializes the link back to its magnet:? textual form: cid, xt, dn,
// every cdn, every ws, in that order.
func (l *Link) String() string {
	var b strings.Builder

	b.WriteString("magnet:?")

	// url.Values.Encode sorts keys alphabetically, which would scramble the
	// cid/xt/dn/cdn/ws ordering the grammar specifies, so the ordered
	// components are appended manually instead of relying on Encode.
	b.WriteString("cid=")
	b.WriteString(url.QueryEscape(l.CID.ToText()))

	if l.hasXT {
		b.WriteString("&xt=")
		b.WriteString(url.QueryEscape(l.XT))
	}

	if l.hasDN {
		b.WriteString("&dn=")
		b.WriteString(url.QueryEscape(l.DN))
	}

	for _, u := range l.CDN {
		b.WriteString("&cdn=")
		b.WriteString(url.QueryEscape(u.String()))
	}

	for _, u := range l.WS {
		b.WriteString("&ws=")
		b.WriteString(url.QueryEscape(u.String()))
	}

	return b.String()
}

// CandidateURLs derives the ordered candidate fetch URLs: every cdn base
// joined with the CID text, followed by every ws entry as-is. Joins that
// fail are dropped silently.
func (l *Link) CandidateURLs() []*url.URL {
	cidText := l.CID.ToText()

	candidates := make([]*url.URL, 0, len(l.CDN)+len(l.WS))

	for _, base := range l.CDN {
		if joined, err := urlutil.Join(base, cidText); err == nil {
			candidates = append(candidates, joined)
		}
	}

	candidates = append(candidates, l.WS...)

	return candidates
}

// Equal reports structural equality: all fields equal in value, list order
// respected.
func (l *Link) Equal(other *Link) bool {
	if other == nil {
		return false
	}

	if !l.CID.Equal(other.CID) {
		return false
	}

	if l.hasXT != other.hasXT || l.XT != other.XT {
		return false
	}

	if l.hasDN != other.hasDN || l.DN != other.DN {
		return false
	}

	if !equalURLLists(l.WS, other.WS) || !equalURLLists(l.CDN, other.CDN) {
		return false
	}

	return true
}

func equalURLLists(a, b []*url.URL) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i].String() != b[i].String() {
			return false
		}
	}

	return true
}
