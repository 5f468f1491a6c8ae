// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

package magnet

import (
	"net/url"
	"strings"

	"github.com/blobfed/fednode/cid"
)

// RaslLink is the web+rasl:// interop form described at https://dasl.ing/rasl.html:
// a CID plus a seed list of origins that serve the RASL well-known endpoint.
// It carries strictly less information than Link (no ws/cdn/xt/dn distinction,
// only bare origins) and exists purely for interop with RASL-speaking clients.
type RaslLink struct {
	CID cid.CID
	RS  []*url.URL
}

// NewRaslLink creates a RaslLink carrying only a CID.
func NewRaslLink(c cid.CID) *RaslLink {
	return &RaslLink{CID: c}
}

// ParseRaslLink parses a web+rasl://{cid};{origin1},{origin2}/ URI. Origins
// that fail to parse are dropped silently, matching Link's lenient ws/cdn
// handling.
func ParseRaslLink(raw string) (*RaslLink, error) {
	const schemePrefix = "web+rasl://"

	if !strings.HasPrefix(raw, schemePrefix) {
		return nil, errf("not a web+rasl:// URI")
	}

	rest := raw[len(schemePrefix):]
	rest = strings.TrimSuffix(rest, "/")

	authority, origins, found := strings.Cut(rest, ";")
	if !found {
		return nil, errf("no authority separator ';' in web+rasl URI: %s", raw)
	}

	c, err := cid.Parse(authority)
	if err != nil {
		return nil, errf("invalid cid in web+rasl URI: %s", err)
	}

	link := &RaslLink{CID: c}

	if origins != "" {
		for _, part := range strings.Split(origins, ",") {
			// Each part is a bare authority (user@host[:port]), not a full
			// URL; net/url only populates Host/User when the input has a
			// "//" authority marker, so prepend one before parsing.
			if u, err := url.Parse("//" + part); err == nil {
				link.RS = append(link.RS, u)
			}
		}
	}

	return link, nil
}

// ToMagnetLink converts a RaslLink to the richer Link form. Each RASL seed
// origin becomes a cdn base rooted at the RASL well-known path, so
// CandidateURLs joins it with the CID text to reach the same
// fetch-and-verify mechanics cdn entries already use — the fetcher needs no
// RASL-specific awareness.
func (r *RaslLink) ToMagnetLink() *Link {
	link := New(r.CID)

	for _, origin := range r.RS {
		base := &url.URL{
			Scheme: schemeOrDefault(origin),
			Host:   authority(origin),
			Path:   "/.well-known/rasl/",
		}
		link.CDN = append(link.CDN, base)
	}

	return link
}

func schemeOrDefault(u *url.URL) string {
	if u.Scheme != "" {
		return u.Scheme
	}

	return "https"
}

// String renders the canonical web+rasl://{cid};{origin1},{origin2}/ form,
// one origin authority per seed, joined by commas.
func (r *RaslLink) String() string {
	authorities := make([]string, 0, len(r.RS))
	for _, u := range r.RS {
		authorities = append(authorities, authority(u))
	}

	return "web+rasl://" + r.CID.ToText() + ";" + strings.Join(authorities, ",") + "/"
}

// authority renders a URL's userinfo@host[:port] component, the same piece
// Url::authority() returns on the origin side of this grammar.
func authority(u *url.URL) string {
	if u.User != nil {
		return u.User.String() + "@" + u.Host
	}

	return u.Host
}
