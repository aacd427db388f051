package speedtest

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mockConfigXML = `<?xml version="1.0" encoding="UTF-8"?>
<settings>
    <client ip="1.2.3.4" lat="40.7128" lon="-74.0060" isp="Test ISP" />
    <server-config ignoreids="5,9" threadcount="4" />
    <download testlength="10" initialtest="350" />
    <upload testlength="10" ratio="2" initialtest="32768" mintestsize="32" />
</settings>`

func configClient(t *testing.T, body string, status int) *Client {
	t.Helper()
	return newStubClient(t, func(req *http.Request) (*http.Response, error) {
		resp := stringBody(body)
		resp.StatusCode = status
		return resp, nil
	})
}

func TestFetchConfig(t *testing.T) {
	c := configClient(t, mockConfigXML, http.StatusOK)

	cfg, err := c.FetchConfigContext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "1.2.3.4", cfg.Client.IP)
	assert.Equal(t, 40.7128, cfg.Client.Lat)
	assert.Equal(t, -74.0060, cfg.Client.Lon)
	assert.Equal(t, "Test ISP", cfg.Client.Isp)

	assert.Equal(t, 4, cfg.ThreadCount)
	assert.Equal(t, 10*time.Second, cfg.DownloadLength)
	assert.Equal(t, 350, cfg.DownloadInitialSize)
	assert.Equal(t, 10*time.Second, cfg.UploadLength)
	assert.Equal(t, 2, cfg.UploadRatio)
	assert.Equal(t, 32768, cfg.UploadInitialSize)
	assert.Equal(t, 32, cfg.UploadMinSize)

	assert.Contains(t, cfg.IgnoreIDs, "5")
	assert.Contains(t, cfg.IgnoreIDs, "9")
	assert.NotContains(t, cfg.IgnoreIDs, "")
}

func TestFetchConfigMalformed(t *testing.T) {
	c := configClient(t, "not xml at all <<<", http.StatusOK)

	_, err := c.FetchConfigContext(context.Background())
	assert.ErrorIs(t, err, ErrConfigRetrieval)
}

func TestFetchConfigBadStatus(t *testing.T) {
	c := configClient(t, "", http.StatusServiceUnavailable)

	_, err := c.FetchConfigContext(context.Background())
	assert.ErrorIs(t, err, ErrConfigRetrieval)
}

func TestFetchConfigTransportError(t *testing.T) {
	c := newStubClient(t, func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	_, err := c.FetchConfigContext(context.Background())
	assert.ErrorIs(t, err, ErrConfigRetrieval)
}

func TestFetchConfigInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{
			"ZeroThreads",
			`<settings><client ip="1.2.3.4" lat="1" lon="2" isp="x"/><server-config threadcount="0" ignoreids=""/><download testlength="10" initialtest="350"/><upload testlength="10" ratio="2" initialtest="0" mintestsize="32"/></settings>`,
		},
		{
			"ZeroDownloadLength",
			`<settings><client ip="1.2.3.4" lat="1" lon="2" isp="x"/><server-config threadcount="4" ignoreids=""/><download testlength="0" initialtest="350"/><upload testlength="10" ratio="2" initialtest="0" mintestsize="32"/></settings>`,
		},
		{
			"RatioOutOfRange",
			`<settings><client ip="1.2.3.4" lat="1" lon="2" isp="x"/><server-config threadcount="4" ignoreids=""/><download testlength="10" initialtest="350"/><upload testlength="10" ratio="9" initialtest="0" mintestsize="32"/></settings>`,
		},
		{
			"ZeroInitialDownload",
			`<settings><client ip="1.2.3.4" lat="1" lon="2" isp="x"/><server-config threadcount="4" ignoreids=""/><download testlength="10" initialtest="0"/><upload testlength="10" ratio="2" initialtest="0" mintestsize="32"/></settings>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := configClient(t, tt.xml, http.StatusOK)
			_, err := c.FetchConfigContext(context.Background())
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestParseIgnoreIDs(t *testing.T) {
	ids := parseIgnoreIDs(" 5, 9 ,,12")
	assert.Len(t, ids, 3)
	assert.Contains(t, ids, "5")
	assert.Contains(t, ids, "9")
	assert.Contains(t, ids, "12")

	assert.Empty(t, parseIgnoreIDs(""))
}

func TestUploadSizes(t *testing.T) {
	cfg := &TestConfig{UploadRatio: 2, UploadMinSize: 32}
	sizes := cfg.UploadSizes()
	assert.Equal(t, []int{65536, 131072, 262144, 524288, 1048576, 7340032}, sizes)

	cfg = &TestConfig{UploadRatio: 7, UploadMinSize: 32}
	assert.Equal(t, []int{7340032}, cfg.UploadSizes())

	// a large minimum lifts small sizes
	cfg = &TestConfig{UploadRatio: 1, UploadMinSize: 262144}
	sizes = cfg.UploadSizes()
	for _, size := range sizes {
		assert.GreaterOrEqual(t, size, 262144)
	}
}

func TestClientInfoString(t *testing.T) {
	ci := &ClientInfo{IP: "1.2.3.4", Isp: "Test ISP"}
	s := ci.String()
	assert.True(t, strings.Contains(s, "1.2.3.4"))
	assert.True(t, strings.Contains(s, "Test ISP"))
}
