package speedtest

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const shareURL = "://www.speedtest.net/api/api.php"

// Result is the immutable outcome snapshot of one run. It is created
// once, after every phase that ran has completed, and handed to the
// presentation layer as-is. Skipped phases are reported as zero.
type Result struct {
	Download  int64   // bits per second
	Upload    int64   // bits per second
	Ping      float64 // milliseconds
	Server    *Server
	Client    *ClientInfo
	Timestamp time.Time
	Share     string
}

// NewResult assembles the result snapshot from a measured server and the
// client info of the run.
func NewResult(server *Server, client *ClientInfo) *Result {
	return &Result{
		Download:  server.DLSpeed.Bps(),
		Upload:    server.ULSpeed.Bps(),
		Ping:      float64(server.Latency) / float64(time.Millisecond),
		Server:    server,
		Client:    client,
		Timestamp: time.Now().UTC(),
	}
}

// Dict returns the flat field mapping used for structured serialization.
func (r *Result) Dict() map[string]any {
	return map[string]any{
		"download": r.Download,
		"upload":   r.Upload,
		"ping":     r.Ping,
		"server": map[string]any{
			"id":      r.Server.ID,
			"url":     r.Server.URL,
			"name":    r.Server.Name,
			"country": r.Server.Country,
			"sponsor": r.Server.Sponsor,
			"lat":     r.Server.Lat,
			"lon":     r.Server.Lon,
			"d":       r.Server.Distance,
			"latency": r.Ping,
		},
		"client": map[string]any{
			"ip":  r.Client.IP,
			"lat": r.Client.Lat,
			"lon": r.Client.Lon,
			"isp": r.Client.Isp,
		},
		"timestamp":      r.Timestamp.Format(time.RFC3339Nano),
		"bytes_received": r.Server.BytesReceived,
		"bytes_sent":     r.Server.BytesSent,
		"share":          r.Share,
	}
}

// JSON serializes the flat field mapping.
func (r *Result) JSON(pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(r.Dict(), "", "  ")
	}
	return json.Marshal(r.Dict())
}

var csvColumns = []string{
	"Server ID",
	"Sponsor",
	"Server Name",
	"Timestamp",
	"Distance",
	"Ping",
	"Download",
	"Upload",
	"Share",
	"IP Address",
}

// CSVHeader returns the fixed column header row joined by delimiter.
func CSVHeader(delimiter string) string {
	return strings.Join(csvColumns, delimiter)
}

// CSV returns the result as one row in the fixed column order.
func (r *Result) CSV(delimiter string) string {
	fields := []string{
		r.Server.ID,
		r.Server.Sponsor,
		r.Server.Name,
		r.Timestamp.Format(time.RFC3339Nano),
		strconv.FormatFloat(r.Server.Distance, 'f', -1, 64),
		strconv.FormatFloat(r.Ping, 'f', -1, 64),
		strconv.FormatInt(r.Download, 10),
		strconv.FormatInt(r.Upload, 10),
		r.Share,
		r.Client.IP,
	}
	return strings.Join(fields, delimiter)
}

// String returns the human-readable summary lines.
func (r *Result) String() string {
	return fmt.Sprintf("Ping: %.2f ms\nDownload: %.2f Mbit/s\nUpload: %.2f Mbit/s",
		r.Ping, float64(r.Download)/1000000, float64(r.Upload)/1000000)
}

// SubmitShare posts the result to the share endpoint and records the
// returned report image URL on the result. Only the URL is produced
// locally; the image itself is rendered server-side.
func (c *Client) SubmitShare(ctx context.Context, r *Result) (string, error) {
	if r.Share != "" {
		return r.Share, nil
	}

	ping := int64(r.Ping + 0.5)
	downloadKbps := r.Download / 1000
	uploadKbps := r.Upload / 1000
	hash := md5.Sum([]byte(fmt.Sprintf("%d-%d-%d-%s", ping, uploadKbps, downloadKbps, "297aae72")))

	form := url.Values{}
	form.Set("recommendedserverid", r.Server.ID)
	form.Set("ping", strconv.FormatInt(ping, 10))
	form.Set("screenresolution", "")
	form.Set("promo", "")
	form.Set("download", strconv.FormatInt(downloadKbps, 10))
	form.Set("screendpi", "")
	form.Set("upload", strconv.FormatInt(uploadKbps, 10))
	form.Set("testmethod", "http")
	form.Set("hash", fmt.Sprintf("%x", hash))
	form.Set("touchscreen", "none")
	form.Set("startmode", "pingselect")
	form.Set("accuracy", "1")
	form.Set("bytesreceived", strconv.FormatInt(r.Server.BytesReceived, 10))
	form.Set("bytessent", strconv.FormatInt(r.Server.BytesSent, 10))
	form.Set("serverid", r.Server.ID)

	req, err := c.newRequest(ctx, http.MethodPost, shareURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.doer.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "submitting share request")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "reading share response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.Errorf("share request got status %d", resp.StatusCode)
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return "", errors.Wrap(err, "parsing share response")
	}
	resultID := values.Get("resultid")
	if resultID == "" {
		return "", errors.New("share response carried no result id")
	}

	r.Share = fmt.Sprintf("%s://www.speedtest.net/result/%s.png", c.scheme(), resultID)
	return r.Share, nil
}
