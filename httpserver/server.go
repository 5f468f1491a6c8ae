// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

// Package httpserver implements the federation node's HTTP surface: blob
// GET/HEAD, notification intake, optional multipart upload, and the RASL
// well-known alias, on a gorilla/mux router.
package httpserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/blobfed/fednode/cid"
	"github.com/blobfed/fednode/fetcher"
	"github.com/blobfed/fednode/gossip"
	"github.com/blobfed/fednode/logging"
	"github.com/blobfed/fednode/magnet"
	"github.com/blobfed/fednode/metrics"
	"github.com/blobfed/fednode/registry"
	"github.com/blobfed/fednode/store"
	"github.com/blobfed/fednode/urlutil"
)

const readHeaderTimeout = 5 * time.Second

// Options configures the server's policy knobs — the "environment / process
// inputs" the spec describes abstractly rather than as concrete flags.
type Options struct {
	PublicBaseURL  string
	AllowAll       bool
	AllowPost      bool
	RequestTimeout time.Duration
}

// Server wires the blob store, peer registry, gossip queue, and outbound
// HTTP client into a router.
type Server struct {
	store    store.Store
	registry registry.Registry
	queue    gossip.Queue
	client   *retryablehttp.Client
	opts     Options
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// New builds a Server and its underlying http.Server, ready for
// http.Server.ListenAndServe. m may be nil, in which case metrics are
// skipped.
func New(addr string, blobStore store.Store, reg registry.Registry, queue gossip.Queue, client *retryablehttp.Client, opts Options, m *metrics.Metrics) *http.Server {
	s := &Server{
		store:    blobStore,
		registry: reg,
		queue:    queue,
		client:   client,
		opts:     opts,
		logger:   logging.Component("httpserver"),
		metrics:  m,
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/notify", s.handleNotify).Methods(http.MethodPost)
	r.HandleFunc("/.well-known/rasl/{cid}", s.handleRaslAlias).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/{cid}", s.handleBlob).Methods(http.MethodGet, http.MethodHead)

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "fednode: content-addressed federation node")
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	c, err := cid.Parse(vars["cid"])
	if err != nil {
		http.Error(w, "invalid cid: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.serveBlob(w, r, c)
}

func (s *Server) handleRaslAlias(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	c, err := cid.Parse(vars["cid"])
	if err != nil {
		http.Error(w, "invalid cid: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.serveBlob(w, r, c)
}

func (s *Server) serveBlob(w http.ResponseWriter, r *http.Request, c cid.CID) {
	has, err := s.store.Has(c)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if !has {
		http.NotFound(w, r)
		return
	}

	data, err := s.store.Read(c)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("content-type", "application/octet-stream")
	w.Header().Set("content-digest", fmt.Sprintf("cid=:%s:", c.ToText()))
	w.Header().Set("content-length", fmt.Sprintf("%d", len(data)))

	if dn := r.URL.Query().Get("dn"); dn != "" {
		w.Header().Set("content-disposition", fmt.Sprintf("attachment; filename=%q", dn))
	} else {
		w.Header().Set("content-disposition", "attachment")
	}

	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodGet {
		w.Write(data)
	}

	if s.metrics != nil {
		s.metrics.BlobsServed.Inc()
	}
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	wsHeader := r.Header.Get("ws")
	cidHeader := r.Header.Get("cid")

	if wsHeader == "" || cidHeader == "" {
		s.recordNotifyOutcome("invalid_headers")
		http.Error(w, "missing ws or cid header", http.StatusBadRequest)
		return
	}

	wsURL, err := urlutil.Parse(wsHeader)
	if err != nil {
		s.recordNotifyOutcome("invalid_headers")
		http.Error(w, "unparsable ws header: "+err.Error(), http.StatusBadRequest)
		return
	}

	expected, err := cid.Parse(cidHeader)
	if err != nil {
		s.recordNotifyOutcome("invalid_headers")
		http.Error(w, "unparsable cid header: "+err.Error(), http.StatusBadRequest)
		return
	}

	exists, err := s.store.Has(expected)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if exists {
		s.recordNotifyOutcome("resource_exists")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "Resource exists")
		return
	}

	trusted, err := registry.IsTrusted(s.registry, wsURL, s.opts.AllowAll)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if !trusted {
		s.recordNotifyOutcome("untrusted_origin")
		http.Error(w, "Untrusted origin", http.StatusBadRequest)
		return
	}

	link := magnet.New(expected)
	link.WS = []*url.URL{wsURL}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	body, err := fetcher.Fetch(ctx, s.client, link)
	if err != nil {
		s.recordFetchOutcome("not_found")
		http.Error(w, fmt.Sprintf("fetch failed for %s: %s", expected.ToText(), err), http.StatusBadRequest)
		return
	}
	s.recordFetchOutcome("success")

	if err := s.store.Write(expected, body); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if s.metrics != nil {
		s.metrics.BlobsStored.Inc()
	}

	selfURL := gossip.SelfURLFor(s.opts.PublicBaseURL, expected)

	if s.queue.TryEnqueue(gossip.NewJob(expected, selfURL)) {
		s.recordNotifyOutcome("stored")
	} else {
		s.logger.Warn("gossip queue full, dropping job", "cid", expected.ToText())
		if s.metrics != nil {
			s.metrics.GossipQueueDrops.Inc()
		}
		s.recordNotifyOutcome("stored_queue_full")
	}

	if s.metrics != nil {
		s.metrics.GossipQueueLength.Set(float64(len(s.queue)))
	}

	w.WriteHeader(http.StatusCreated)
	fmt.Fprint(w, expected.ToText())
}

func (s *Server) recordFetchOutcome(result string) {
	if s.metrics != nil {
		s.metrics.FetchOutcomes.WithLabelValues(result).Inc()
	}
}

func (s *Server) recordNotifyOutcome(result string) {
	if s.metrics != nil {
		s.metrics.NotifyRequests.WithLabelValues(result).Inc()
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.opts.AllowPost {
		http.Error(w, "uploads disabled", http.StatusForbidden)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart body: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	var field io.ReadCloser

	for _, files := range r.MultipartForm.File {
		if len(files) == 0 {
			continue
		}

		f, err := files[0].Open()
		if err != nil {
			http.Error(w, "could not open upload field", http.StatusBadRequest)
			return
		}

		field = f
		break
	}

	if field == nil {
		http.Error(w, "no multipart field found", http.StatusBadRequest)
		return
	}
	defer field.Close()

	data, err := io.ReadAll(field)
	if err != nil {
		http.Error(w, "could not read upload", http.StatusBadRequest)
		return
	}

	c := cid.Of(data)

	if err := s.store.Write(c, data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if s.metrics != nil {
		s.metrics.BlobsStored.Inc()
	}

	w.WriteHeader(http.StatusCreated)
	fmt.Fprint(w, c.ToText())
}
