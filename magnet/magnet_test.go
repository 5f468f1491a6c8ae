// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

package magnet

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blobfed/fednode/cid"
)

func mustParseURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	require.NoError(t, err)
	return u
}

func TestParseMinimal(t *testing.T) {
	c := cid.Of([]byte("hello world"))

	link, err := Parse("magnet:?cid=" + c.ToText())
	require.NoError(t, err)

	assert.True(t, link.CID.Equal(c))
	assert.Empty(t, link.WS)
	assert.Empty(t, link.CDN)
}

func TestParseMissingCIDFails(t *testing.T) {
	_, err := Parse("magnet:?ws=https://example.com/blob")
	assert.Error(t, err)
}

func TestParseNotMagnetSchemeFails(t *testing.T) {
	_, err := Parse("http:?cid=bafkreifzjut3te2nhyekklss27nh3k72ysco7y32koao5eei66wof36n5e")
	assert.Error(t, err)
}

func TestParseMultipleWS(t *testing.T) {
	c := cid.Of([]byte("multi-ws payload"))

	raw := "magnet:?cid=" + c.ToText() +
		"&ws=https://a.example.com/blob&ws=https://b.example.com/blob"

	link, err := Parse(raw)
	require.NoError(t, err)

	require.Len(t, link.WS, 2)
	assert.Equal(t, "https://a.example.com/blob", link.WS[0].String())
	assert.Equal(t, "https://b.example.com/blob", link.WS[1].String())
}

func TestRoundTripTextSerialization(t *testing.T) {
	c := cid.Of([]byte("round trip payload"))

	link := New(c)
	link.XT, link.hasXT = "urn:example", true
	link.DN, link.hasDN = "example.bin", true
	link.CDN = append(link.CDN, mustParseURL(t, "https://cdn.example.com/blobs/"))
	link.WS = append(link.WS, mustParseURL(t, "https://origin.example.com/blob"))

	text := link.String()

	parsed, err := Parse(text)
	require.NoError(t, err)

	assert.True(t, parsed.CID.Equal(c))
	assert.Equal(t, link.XT, parsed.XT)
	assert.Equal(t, link.DN, parsed.DN)
	require.Len(t, parsed.CDN, 1)
	assert.Equal(t, "https://cdn.example.com/blobs/", parsed.CDN[0].String())
	require.Len(t, parsed.WS, 1)
	assert.Equal(t, "https://origin.example.com/blob", parsed.WS[0].String())

	assert.True(t, link.Equal(parsed))
}

func TestCandidateURLOrder(t *testing.T) {
	c := cid.Of([]byte("candidate order payload"))

	link := New(c)
	link.CDN = []*url.URL{
		mustParseURL(t, "https://cdn-one.example.com/blobs/"),
		mustParseURL(t, "https://cdn-two.example.com/blobs/"),
	}
	link.WS = []*url.URL{
		mustParseURL(t, "https://origin.example.com/blob"),
	}

	candidates := link.CandidateURLs()
	require.Len(t, candidates, 3)

	assert.Equal(t, "https://cdn-one.example.com/blobs/"+c.ToText(), candidates[0].String())
	assert.Equal(t, "https://cdn-two.example.com/blobs/"+c.ToText(), candidates[1].String())
	assert.Equal(t, "https://origin.example.com/blob", candidates[2].String())
}

func TestCandidateURLsEmptyWhenNoHints(t *testing.T) {
	c := cid.Of([]byte("no hints"))
	link := New(c)

	assert.Empty(t, link.CandidateURLs())
}

func TestEqualDistinguishesCID(t *testing.T) {
	a := New(cid.Of([]byte("a")))
	b := New(cid.Of([]byte("b")))

	assert.False(t, a.Equal(b))
	assert.True(t, a.Equal(New(cid.Of([]byte("a")))))
}
