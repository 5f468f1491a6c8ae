// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

// Package memory implements registry.Registry with an in-process,
// mutex-guarded map. This is the default backend: no persistence across
// restarts, no external dependency.
package memory

import (
	"math/rand"
	"net/url"
	"sync"

	"github.com/blobfed/fednode/registry"
	"github.com/blobfed/fednode/urlutil"
)

// Registry is a mutex-guarded in-memory peer registry.
type Registry struct {
	mu     sync.RWMutex
	notify map[string]*url.URL
	origin map[urlutil.Origin]registry.Status
}

// New creates an empty in-memory registry.
func New() *Registry {
	return &Registry{
		notify: make(map[string]*url.URL),
		origin: make(map[urlutil.Origin]registry.Status),
	}
}

func (r *Registry) AddNotify(u *url.URL) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notify[u.String()] = u

	return nil
}

func (r *Registry) RemoveNotify(u *url.URL) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.notify, u.String())

	return nil
}

func (r *Registry) ContainsNotify(u *url.URL) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.notify[u.String()]

	return ok, nil
}

func (r *Registry) SampleNotify(n int) ([]*url.URL, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*url.URL, 0, len(r.notify))
	for _, u := range r.notify {
		all = append(all, u)
	}

	if n >= len(all) {
		rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
		return all, nil
	}

	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })

	return all[:n], nil
}

func (r *Registry) SetAllow(origin urlutil.Origin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.origin[origin] = registry.Allow

	return nil
}

func (r *Registry) SetDeny(origin urlutil.Origin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.origin[origin] = registry.Deny

	return nil
}

func (r *Registry) ClearOrigin(origin urlutil.Origin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.origin, origin)

	return nil
}

func (r *Registry) Status(origin urlutil.Origin) (registry.Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, ok := r.origin[origin]
	if !ok {
		return registry.Unknown, nil
	}

	return status, nil
}
