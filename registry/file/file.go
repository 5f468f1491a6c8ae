// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

// Package file implements registry.Registry atop two line-delimited text
// files: notify.txt holds one URL per line, origins.txt holds
// "allow|deny <origin>" per line. Every mutation rewrites its file whole,
// matching the original implementation's read_peers/write_peers approach.
package file

import (
	"bufio"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/blobfed/fednode/registry"
	"github.com/blobfed/fednode/urlutil"
)

// Registry is a directory of two flat files guarded by a single mutex.
type Registry struct {
	mu         sync.Mutex
	notifyPath string
	originPath string
}

// New opens (creating if absent) notify.txt and origins.txt under dir.
func New(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file registry: create directory %s: %w", dir, err)
	}

	r := &Registry{
		notifyPath: dir + "/notify.txt",
		originPath: dir + "/origins.txt",
	}

	for _, path := range []string{r.notifyPath, r.originPath} {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("file registry: create %s: %w", path, err)
		}
		f.Close()
	}

	return r, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("file registry: open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("file registry: scan %s: %w", path, err)
	}

	return lines, nil
}

func writeLines(path string, lines []string) error {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("file registry: write %s: %w", path, err)
	}

	return nil
}

func (r *Registry) readNotify() ([]*url.URL, error) {
	lines, err := readLines(r.notifyPath)
	if err != nil {
		return nil, err
	}

	urls := make([]*url.URL, 0, len(lines))
	for _, line := range lines {
		u, err := urlutil.Parse(line)
		if err != nil {
			continue
		}
		urls = append(urls, u)
	}

	return urls, nil
}

func (r *Registry) writeNotify(urls []*url.URL) error {
	lines := make([]string, len(urls))
	for i, u := range urls {
		lines[i] = u.String()
	}

	return writeLines(r.notifyPath, lines)
}

func (r *Registry) AddNotify(u *url.URL) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	urls, err := r.readNotify()
	if err != nil {
		return err
	}

	for _, existing := range urls {
		if existing.String() == u.String() {
			return nil
		}
	}

	urls = append(urls, u)

	return r.writeNotify(urls)
}

func (r *Registry) RemoveNotify(u *url.URL) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	urls, err := r.readNotify()
	if err != nil {
		return err
	}

	filtered := urls[:0]
	for _, existing := range urls {
		if existing.String() != u.String() {
			filtered = append(filtered, existing)
		}
	}

	return r.writeNotify(filtered)
}

func (r *Registry) ContainsNotify(u *url.URL) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	urls, err := r.readNotify()
	if err != nil {
		return false, err
	}

	for _, existing := range urls {
		if existing.String() == u.String() {
			return true, nil
		}
	}

	return false, nil
}

func (r *Registry) SampleNotify(n int) ([]*url.URL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	urls, err := r.readNotify()
	if err != nil {
		return nil, err
	}

	rand.Shuffle(len(urls), func(i, j int) { urls[i], urls[j] = urls[j], urls[i] })

	if n >= len(urls) {
		return urls, nil
	}

	return urls[:n], nil
}

type originLine struct {
	origin urlutil.Origin
	status registry.Status
}

func parseOriginLine(line string) (originLine, bool) {
	parts := strings.SplitN(line, " ", 2)
	if len(parts) != 2 {
		return originLine{}, false
	}

	var status registry.Status
	switch parts[0] {
	case "allow":
		status = registry.Allow
	case "deny":
		status = registry.Deny
	default:
		return originLine{}, false
	}

	origin, ok := parseOrigin(parts[1])
	if !ok {
		return originLine{}, false
	}

	return originLine{origin: origin, status: status}, true
}

func parseOrigin(s string) (urlutil.Origin, bool) {
	u, err := urlutil.Parse(s)
	if err != nil {
		return urlutil.Origin{}, false
	}

	return urlutil.OriginOf(u), true
}

func (o originLine) String() string {
	statusWord := "allow"
	if o.status == registry.Deny {
		statusWord = "deny"
	}

	return statusWord + " " + o.origin.String()
}

func (r *Registry) readOrigins() ([]originLine, error) {
	lines, err := readLines(r.originPath)
	if err != nil {
		return nil, err
	}

	entries := make([]originLine, 0, len(lines))
	for _, line := range lines {
		if entry, ok := parseOriginLine(line); ok {
			entries = append(entries, entry)
		}
	}

	return entries, nil
}

func (r *Registry) writeOrigins(entries []originLine) error {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}

	return writeLines(r.originPath, lines)
}

func (r *Registry) setOrigin(origin urlutil.Origin, status registry.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.readOrigins()
	if err != nil {
		return err
	}

	found := false
	for i, e := range entries {
		if e.origin == origin {
			entries[i].status = status
			found = true
			break
		}
	}

	if !found {
		entries = append(entries, originLine{origin: origin, status: status})
	}

	return r.writeOrigins(entries)
}

func (r *Registry) SetAllow(origin urlutil.Origin) error {
	return r.setOrigin(origin, registry.Allow)
}

func (r *Registry) SetDeny(origin urlutil.Origin) error {
	return r.setOrigin(origin, registry.Deny)
}

func (r *Registry) ClearOrigin(origin urlutil.Origin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.readOrigins()
	if err != nil {
		return err
	}

	filtered := entries[:0]
	for _, e := range entries {
		if e.origin != origin {
			filtered = append(filtered, e)
		}
	}

	return r.writeOrigins(filtered)
}

func (r *Registry) Status(origin urlutil.Origin) (registry.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.readOrigins()
	if err != nil {
		return registry.Unknown, err
	}

	for _, e := range entries {
		if e.origin == origin {
			return e.status, nil
		}
	}

	return registry.Unknown, nil
}
