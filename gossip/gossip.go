// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

// Package gossip runs the background fan-out worker: it drains a bounded
// queue of notification jobs, samples a handful of peers per job, and
// POSTs best-effort notifications to each.
package gossip

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/blobfed/fednode/cid"
	"github.com/blobfed/fednode/logging"
	"github.com/blobfed/fednode/metrics"
	"github.com/blobfed/fednode/registry"
)

// Fanout is the number of peers sampled per job.
const Fanout = 12

// MaxJitter bounds the random pre-dispatch delay.
const MaxJitter = 500 * time.Millisecond

// DefaultRequestTimeout is the per-peer POST timeout.
const DefaultRequestTimeout = 2 * time.Second

// Job is a unit of gossip work: a CID this node just acquired, and the
// public-facing URL (already joined with the CID text) that downstream
// recipients can pull it from. ID is a process-local identifier used only
// for log correlation across the Queued -> Sampling -> Jittering ->
// Dispatching -> Done lifecycle; it never crosses the wire.
type Job struct {
	ID      string
	CID     cid.CID
	SelfURL string
}

// NewJob builds a Job with a fresh correlation ID.
func NewJob(c cid.CID, selfURL string) Job {
	return Job{ID: uuid.NewString(), CID: c, SelfURL: selfURL}
}

// Queue is the bounded, non-blocking-send channel between HTTP handlers and
// the worker. A full queue drops the job; callers must not block on it.
type Queue chan Job

// NewQueue creates a bounded gossip queue of the given capacity.
func NewQueue(capacity int) Queue {
	return make(Queue, capacity)
}

// TryEnqueue attempts a non-blocking send. It reports whether the job was
// accepted; a false return means the queue was full and the job was dropped.
func (q Queue) TryEnqueue(job Job) bool {
	select {
	case q <- job:
		return true
	default:
		return false
	}
}

// Worker is the single background task that drains a Queue.
type Worker struct {
	queue      Queue
	registry   registry.Registry
	client     *retryablehttp.Client
	logger     *logging.Logger
	randSource *rand.Rand
	metrics    *metrics.Metrics
}

// NewWorker creates a gossip worker reading from queue, sampling peers from
// reg, and dispatching notifications through client. m may be nil.
func NewWorker(queue Queue, reg registry.Registry, client *retryablehttp.Client, m *metrics.Metrics) *Worker {
	return &Worker{
		queue:      queue,
		registry:   reg,
		client:     client,
		logger:     logging.Component("gossip"),
		randSource: rand.New(rand.NewSource(time.Now().UnixNano())),
		metrics:    m,
	}
}

// Run drains the queue until ctx is canceled. Each job passes through
// Queued -> Sampling -> Jittering -> Dispatching -> Done; there is no retry
// state, and outbound errors are absorbed and logged, never propagated.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("gossip worker starting")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("gossip worker stopping")
			return
		case job := <-w.queue:
			if w.metrics != nil {
				w.metrics.GossipQueueLength.Set(float64(len(w.queue)))
			}
			w.process(ctx, job)
		}
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	peers, err := w.registry.SampleNotify(Fanout)
	if err != nil {
		w.logger.Error("sample notify peers failed", "job_id", job.ID, "error", err, "cid", job.CID.ToText())
		return
	}

	if len(peers) == 0 {
		return
	}

	jitter := time.Duration(w.randSource.Int63n(int64(MaxJitter) + 1))

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		return
	}

	for _, peer := range peers {
		w.notifyPeer(ctx, peer.String(), job)
	}
}

func (w *Worker) notifyPeer(ctx context.Context, peerURL string, job Job) {
	if w.metrics != nil {
		w.metrics.GossipDispatched.Inc()
	}

	reqCtx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()

	target := peerURL + "/notify"

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodPost, target, nil)
	if err != nil {
		w.logger.Error("build notify request failed", "peer", peerURL, "error", err)
		return
	}

	req.Header.Set("ws", job.SelfURL)
	req.Header.Set("cid", job.CID.ToText())

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("notify peer failed", "job_id", job.ID, "peer", peerURL, "cid", job.CID.ToText(), "error", err)
		return
	}
	defer resp.Body.Close()

	w.logger.Debug("notified peer", "job_id", job.ID, "peer", peerURL, "cid", job.CID.ToText(), "status", resp.StatusCode)
}

// SelfURLFor joins a node's public base URL with a CID's text, the form
// recipients use to pull the blob back from this node.
func SelfURLFor(publicBaseURL string, c cid.CID) string {
	return fmt.Sprintf("%s/%s", trimTrailingSlash(publicBaseURL), c.ToText())
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
