package speedtest

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *Result {
	server := rankedServer("1234", 42.5)
	server.Name = "New York"
	server.Sponsor = "Test Sponsor"
	server.Country = "United States"
	server.URL = "http://example.com/speedtest/upload.php"
	server.Latency = 20 * time.Millisecond
	server.DLSpeed = ByteRate(12500000) // 100 Mbit/s
	server.ULSpeed = ByteRate(6250000)  // 50 Mbit/s
	server.BytesReceived = 125000000
	server.BytesSent = 62500000

	client := &ClientInfo{IP: "1.2.3.4", Lat: 40.7, Lon: -74.0, Isp: "Test ISP"}
	return NewResult(server, client)
}

func TestNewResultSnapshot(t *testing.T) {
	r := sampleResult()
	assert.EqualValues(t, 100000000, r.Download)
	assert.EqualValues(t, 50000000, r.Upload)
	assert.Equal(t, 20.0, r.Ping)
	assert.False(t, r.Timestamp.IsZero())
	assert.Empty(t, r.Share)
}

func TestNewResultSkippedPhasesReportZero(t *testing.T) {
	server := rankedServer("1", 10)
	server.Latency = 5 * time.Millisecond
	r := NewResult(server, &ClientInfo{IP: "1.2.3.4"})
	assert.Zero(t, r.Download)
	assert.Zero(t, r.Upload)
}

func TestResultDict(t *testing.T) {
	r := sampleResult()
	d := r.Dict()

	assert.EqualValues(t, 100000000, d["download"])
	assert.EqualValues(t, 50000000, d["upload"])
	assert.Equal(t, 20.0, d["ping"])

	server, ok := d["server"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1234", server["id"])
	assert.Equal(t, 42.5, server["d"])

	client, ok := d["client"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.2.3.4", client["ip"])
}

func TestResultJSONFieldPairing(t *testing.T) {
	server := rankedServer("1", 10)
	r := NewResult(server, &ClientInfo{})
	r.Download = 100

	out, err := r.JSON(false)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"download":100`)

	pretty, err := r.JSON(true)
	require.NoError(t, err)
	assert.Contains(t, string(pretty), "\n")
	assert.Contains(t, string(pretty), `"download": 100`)
}

func TestCSVHeader(t *testing.T) {
	header := CSVHeader(";")
	assert.Contains(t, header, "Server ID")
	assert.Contains(t, header, "Download")
	assert.Contains(t, header, "Upload")
	assert.Len(t, strings.Split(header, ";"), 10)
}

func TestResultCSV(t *testing.T) {
	r := sampleResult()

	row := r.CSV(",")
	fields := strings.Split(row, ",")
	require.Len(t, fields, len(strings.Split(CSVHeader(","), ",")))
	assert.Equal(t, "1234", fields[0])
	assert.Equal(t, "Test Sponsor", fields[1])
	assert.Equal(t, "New York", fields[2])
	assert.Contains(t, row, "100000000")
	assert.Contains(t, row, "50000000")
	assert.Equal(t, "1.2.3.4", fields[len(fields)-1])

	assert.Contains(t, r.CSV(";"), ";")
}

func TestResultString(t *testing.T) {
	out := sampleResult().String()
	assert.Contains(t, out, "Ping: 20.00 ms")
	assert.Contains(t, out, "Download: 100.00 Mbit/s")
	assert.Contains(t, out, "Upload: 50.00 Mbit/s")
}

func TestSubmitShare(t *testing.T) {
	var form string
	c := newStubClient(t, func(req *http.Request) (*http.Response, error) {
		b := new(strings.Builder)
		if req.Body != nil {
			_, _ = io.Copy(b, req.Body)
		}
		form = b.String()
		return stringBody("resultid=987654321&date=1&time=1"), nil
	})

	r := sampleResult()
	share, err := c.SubmitShare(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "http://www.speedtest.net/result/987654321.png", share)
	assert.Equal(t, share, r.Share)

	assert.Contains(t, form, "serverid=1234")
	assert.Contains(t, form, "download=100000")
	assert.Contains(t, form, "upload=50000")
	assert.Contains(t, form, "hash=")

	// a second submission reuses the recorded URL
	again, err := c.SubmitShare(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, share, again)
}

func TestSubmitShareNoResultID(t *testing.T) {
	c := newStubClient(t, func(req *http.Request) (*http.Response, error) {
		return stringBody("date=1&time=1"), nil
	})

	_, err := c.SubmitShare(context.Background(), sampleResult())
	assert.Error(t, err)
}
