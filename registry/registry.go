// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

// Package registry defines the peer registry contract shared by every
// backend: a notify set to gossip into, and an origin allow/deny list
// governing which senders are trusted.
package registry

import (
	"net/url"

	"github.com/blobfed/fednode/urlutil"
)

// Status is the trust state of an origin.
type Status int

const (
	// Unknown means the origin has no allow or deny entry.
	Unknown Status = iota
	Allow
	Deny
)

func (s Status) String() string {
	switch s {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// Registry is the peer registry contract. Implementations must be safe for
// concurrent use: mutations are serialized, and reads either run
// concurrently or are serialized under the same single lock.
type Registry interface {
	AddNotify(u *url.URL) error
	RemoveNotify(u *url.URL) error
	ContainsNotify(u *url.URL) (bool, error)

	// SampleNotify returns up to n elements drawn uniformly without
	// replacement from the notify set; fewer if the set is smaller.
	SampleNotify(n int) ([]*url.URL, error)

	SetAllow(origin urlutil.Origin) error
	SetDeny(origin urlutil.Origin) error
	ClearOrigin(origin urlutil.Origin) error
	Status(origin urlutil.Origin) (Status, error)
}

// IsTrusted implements the shared trust decision on top of any Registry:
// deny is absolute, allow_all is a blanket override otherwise, and absent
// either, only an explicit allow entry trusts the origin.
func IsTrusted(r Registry, u *url.URL, allowAll bool) (bool, error) {
	origin := urlutil.OriginOf(u)

	status, err := r.Status(origin)
	if err != nil {
		return false, err
	}

	if status == Deny {
		return false, nil
	}

	if allowAll {
		return true, nil
	}

	return status == Allow, nil
}
