// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

// Package sqlstore implements registry.Registry atop gorm and a pure-Go
// SQLite driver, matching the original implementation's two-table schema:
// a notify table keyed by URL, and an origin table keyed by origin with an
// allow/deny flag.
package sqlstore

import (
	"fmt"
	"log"
	"math/rand"
	"net/url"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blobfed/fednode/registry"
	"github.com/blobfed/fednode/urlutil"
)

// notifyRow is the notify table: one row per gossip-target URL.
type notifyRow struct {
	URL string `gorm:"primaryKey"`
}

// originRow is the origin table: one row per origin, with the deny flag
// acting as a tri-state when absent (no row == Unknown).
type originRow struct {
	URL  string `gorm:"primaryKey"`
	Deny bool   `gorm:"not null;default:false"`
}

// Registry is a gorm-backed peer registry.
type Registry struct {
	db *gorm.DB
}

func newLogger() gormlogger.Interface {
	return gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}

// Open opens (creating if absent) a SQLite database at path and migrates
// the notify/origin schema.
func Open(path string) (*Registry, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: newLogger()})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", path, err)
	}

	if err := db.AutoMigrate(&notifyRow{}, &originRow{}); err != nil {
		return nil, fmt.Errorf("sqlstore: migrate schema: %w", err)
	}

	return &Registry{db: db}, nil
}

func (r *Registry) AddNotify(u *url.URL) error {
	row := notifyRow{URL: u.String()}

	if err := r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("sqlstore: add notify %s: %w", u, err)
	}

	return nil
}

func (r *Registry) RemoveNotify(u *url.URL) error {
	if err := r.db.Where("url = ?", u.String()).Delete(&notifyRow{}).Error; err != nil {
		return fmt.Errorf("sqlstore: remove notify %s: %w", u, err)
	}

	return nil
}

func (r *Registry) ContainsNotify(u *url.URL) (bool, error) {
	var count int64

	if err := r.db.Model(&notifyRow{}).Where("url = ?", u.String()).Count(&count).Error; err != nil {
		return false, fmt.Errorf("sqlstore: check notify %s: %w", u, err)
	}

	return count > 0, nil
}

func (r *Registry) SampleNotify(n int) ([]*url.URL, error) {
	var rows []notifyRow

	if err := r.db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlstore: list notify: %w", err)
	}

	rand.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

	if n > len(rows) {
		n = len(rows)
	}

	urls := make([]*url.URL, 0, n)
	for _, row := range rows[:n] {
		u, err := urlutil.Parse(row.URL)
		if err != nil {
			continue
		}
		urls = append(urls, u)
	}

	return urls, nil
}

func (r *Registry) setOrigin(origin urlutil.Origin, deny bool) error {
	row := originRow{URL: origin.String(), Deny: deny}

	if err := r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("sqlstore: set origin %s: %w", origin, err)
	}

	return nil
}

func (r *Registry) SetAllow(origin urlutil.Origin) error {
	return r.setOrigin(origin, false)
}

func (r *Registry) SetDeny(origin urlutil.Origin) error {
	return r.setOrigin(origin, true)
}

func (r *Registry) ClearOrigin(origin urlutil.Origin) error {
	if err := r.db.Where("url = ?", origin.String()).Delete(&originRow{}).Error; err != nil {
		return fmt.Errorf("sqlstore: clear origin %s: %w", origin, err)
	}

	return nil
}

func (r *Registry) Status(origin urlutil.Origin) (registry.Status, error) {
	var row originRow

	err := r.db.Where("url = ?", origin.String()).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return registry.Unknown, nil
	}
	if err != nil {
		return registry.Unknown, fmt.Errorf("sqlstore: read origin status %s: %w", origin, err)
	}

	if row.Deny {
		return registry.Deny, nil
	}

	return registry.Allow, nil
}
