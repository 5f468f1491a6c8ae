// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blobfed/fednode/cid"
	"github.com/blobfed/fednode/fetcher"
	"github.com/blobfed/fednode/gossip"
	"github.com/blobfed/fednode/logging"
	"github.com/blobfed/fednode/registry/memory"
	"github.com/blobfed/fednode/store"
)

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()

	blobStore, err := store.NewLocalFS(t.TempDir())
	require.NoError(t, err)

	reg := memory.New()
	queue := gossip.NewQueue(16)
	client := fetcher.NewClient(2 * time.Second)

	s := &Server{
		store:    blobStore,
		registry: reg,
		queue:    queue,
		client:   client,
		opts:     opts,
		logger:   logging.Component("httpserver-test"),
	}

	handler := New(":0", blobStore, reg, queue, client, opts, nil).Handler

	return s, httptest.NewServer(handler)
}

func TestGetIndex(t *testing.T) {
	_, srv := newTestServer(t, Options{RequestTimeout: 2 * time.Second})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetBlobNotFound(t *testing.T) {
	_, srv := newTestServer(t, Options{RequestTimeout: 2 * time.Second})
	defer srv.Close()

	c := cid.Of([]byte("absent"))
	resp, err := http.Get(srv.URL + "/" + c.ToText())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetBlobInvalidCID(t *testing.T) {
	_, srv := newTestServer(t, Options{RequestTimeout: 2 * time.Second})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/not-a-cid")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetBlobFoundHasHeaders(t *testing.T) {
	s, srv := newTestServer(t, Options{RequestTimeout: 2 * time.Second})
	defer srv.Close()

	data := []byte("served content")
	c := cid.Of(data)
	require.NoError(t, s.store.Write(c, data))

	resp, err := http.Get(srv.URL + "/" + c.ToText() + "?dn=report.bin")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/octet-stream", resp.Header.Get("content-type"))
	assert.Equal(t, "cid=:"+c.ToText()+":", resp.Header.Get("content-digest"))
	assert.Equal(t, `attachment; filename="report.bin"`, resp.Header.Get("content-disposition"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, data, body)
}

func TestHeadBlobNoBody(t *testing.T) {
	s, srv := newTestServer(t, Options{RequestTimeout: 2 * time.Second})
	defer srv.Close()

	data := []byte("head me")
	c := cid.Of(data)
	require.NoError(t, s.store.Write(c, data))

	resp, err := http.Head(srv.URL + "/" + c.ToText())
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestNotifyMissingHeaders(t *testing.T) {
	_, srv := newTestServer(t, Options{RequestTimeout: 2 * time.Second})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/notify", "application/octet-stream", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotifyUntrustedOrigin(t *testing.T) {
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("payload"))
	}))
	defer source.Close()

	_, srv := newTestServer(t, Options{RequestTimeout: 2 * time.Second, AllowAll: false})
	defer srv.Close()

	c := cid.Of([]byte("payload"))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/notify", nil)
	require.NoError(t, err)
	req.Header.Set("ws", source.URL+"/"+c.ToText())
	req.Header.Set("cid", c.ToText())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotifyFetchVerifyStoreAndGossipEnqueue(t *testing.T) {
	data := []byte("gossiped payload")
	c := cid.Of(data)

	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}))
	defer source.Close()

	s, srv := newTestServer(t, Options{
		RequestTimeout: 2 * time.Second,
		AllowAll:       true,
		PublicBaseURL:  "https://self.example.com",
	})
	defer srv.Close()

	sourceURL, err := url.Parse(source.URL + "/" + c.ToText())
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/notify", nil)
	require.NoError(t, err)
	req.Header.Set("ws", sourceURL.String())
	req.Header.Set("cid", c.ToText())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, c.ToText(), string(body))

	has, err := s.store.Has(c)
	require.NoError(t, err)
	assert.True(t, has)

	select {
	case job := <-s.queue:
		assert.True(t, job.CID.Equal(c))
	default:
		t.Fatal("expected a gossip job to be enqueued")
	}
}

func TestNotifyShortCircuitsWhenBlobExists(t *testing.T) {
	data := []byte("already have this")
	c := cid.Of(data)

	s, srv := newTestServer(t, Options{RequestTimeout: 2 * time.Second, AllowAll: true})
	defer srv.Close()

	require.NoError(t, s.store.Write(c, data))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/notify", nil)
	require.NoError(t, err)
	req.Header.Set("ws", "https://doesnotmatter.example.com/x")
	req.Header.Set("cid", c.ToText())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case <-s.queue:
		t.Fatal("no gossip job should be enqueued on short-circuit")
	default:
	}
}

func TestUploadDisabledByDefault(t *testing.T) {
	_, srv := newTestServer(t, Options{RequestTimeout: 2 * time.Second, AllowPost: false})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/", "application/octet-stream", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUploadWhenEnabled(t *testing.T) {
	_, srv := newTestServer(t, Options{RequestTimeout: 2 * time.Second, AllowPost: true})
	defer srv.Close()

	body, contentType := multipartBody(t, "file", "payload.bin", []byte("uploaded bytes"))

	resp, err := http.Post(srv.URL+"/", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	want := cid.Of([]byte("uploaded bytes"))
	assert.Equal(t, want.ToText(), string(respBody))
}

func TestRaslAliasServesSameBlobAsCanonicalRoute(t *testing.T) {
	data := []byte("rasl aliased content")
	c := cid.Of(data)

	s, srv := newTestServer(t, Options{RequestTimeout: 2 * time.Second})
	defer srv.Close()
	require.NoError(t, s.store.Write(c, data))

	resp, err := http.Get(srv.URL + "/.well-known/rasl/" + c.ToText())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, data, body)
}

func multipartBody(t *testing.T, field, filename string, content []byte) (io.Reader, string) {
	t.Helper()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		part, err := writer.CreateFormFile(field, filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := part.Write(content); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	return pr, writer.FormDataContentType()
}
