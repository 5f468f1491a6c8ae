// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsEndpointServesRegisteredCollectors(t *testing.T) {
	s := New("127.0.0.1:0")

	s.Metrics.BlobsServed.Inc()
	s.Metrics.NotifyRequests.WithLabelValues("stored").Inc()

	mfs, err := s.Registry().Gather()
	require.NoError(t, err)

	var names []string
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}

	assert.Contains(t, names, "fednode_blobs_served_total")
	assert.Contains(t, names, "fednode_notify_requests_total")
}

func TestServerStartAndStop(t *testing.T) {
	s := New("127.0.0.1:0")
	// Override the address with an ephemeral port bound ahead of time would
	// require net.Listen; instead exercise Start/Stop against a fixed local
	// port unlikely to collide within this test's lifetime.
	s.server.Addr = "127.0.0.1:19753"
	s.address = s.server.Addr

	require.NoError(t, s.Start())

	resp, err := http.Get("http://127.0.0.1:19753/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/openmetrics-text") ||
		strings.Contains(resp.Header.Get("Content-Type"), "text/plain"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
