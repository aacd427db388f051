package speedtest

import (
	"context"
	"encoding/xml"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const speedTestConfigURL = "://www.speedtest.net/speedtest-config.php"

// ClientInfo describes the caller as determined by speedtest.net.
type ClientInfo struct {
	IP  string  `xml:"ip,attr" json:"ip"`
	Lat float64 `xml:"lat,attr" json:"lat"`
	Lon float64 `xml:"lon,attr" json:"lon"`
	Isp string  `xml:"isp,attr" json:"isp"`
}

// Location returns the client coordinates as a Point.
func (ci *ClientInfo) Location() Point {
	return Point{Lat: ci.Lat, Lon: ci.Lon}
}

// String representation of ClientInfo.
func (ci *ClientInfo) String() string {
	return ci.IP + " (" + ci.Isp + ")"
}

// TestConfig holds the test-sizing parameters from the remote
// configuration document. Read-only after load.
type TestConfig struct {
	ThreadCount         int
	DownloadLength      time.Duration
	DownloadInitialSize int
	UploadLength        time.Duration
	UploadRatio         int
	UploadInitialSize   int
	UploadMinSize       int
	IgnoreIDs           map[string]struct{}
}

// Config is the full configuration for one run: who the caller is and how
// the test phases are sized.
type Config struct {
	Client ClientInfo
	TestConfig
}

// configDocument mirrors the settings XML served by speedtest.net.
type configDocument struct {
	Client       ClientInfo `xml:"client"`
	ServerConfig struct {
		ThreadCount int    `xml:"threadcount,attr"`
		IgnoreIDs   string `xml:"ignoreids,attr"`
	} `xml:"server-config"`
	Download struct {
		TestLength  int `xml:"testlength,attr"`
		InitialTest int `xml:"initialtest,attr"`
	} `xml:"download"`
	Upload struct {
		TestLength  int `xml:"testlength,attr"`
		Ratio       int `xml:"ratio,attr"`
		InitialTest int `xml:"initialtest,attr"`
		MinTestSize int `xml:"mintestsize,attr"`
	} `xml:"upload"`
}

// FetchConfig retrieves and validates the remote configuration document.
func (c *Client) FetchConfig() (*Config, error) {
	return c.FetchConfigContext(context.Background())
}

// FetchConfigContext retrieves and validates the remote configuration
// document, observing the given context. Malformed or unreachable
// documents are ErrConfigRetrieval; documents that parse but carry
// nonsensical values are ErrInvalidConfig.
func (c *Client) FetchConfigContext(ctx context.Context) (*Config, error) {
	req, err := c.newRequest(ctx, "GET", speedTestConfigURL, nil)
	if err != nil {
		return nil, errors.Wrapf(ErrConfigRetrieval, "building request: %v", err)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrConfigRetrieval, "fetching configuration: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrapf(ErrConfigRetrieval, "unexpected status %d", resp.StatusCode)
	}

	var doc configDocument
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, errors.Wrapf(ErrConfigRetrieval, "decoding settings document: %v", err)
	}

	cfg := &Config{
		Client: doc.Client,
		TestConfig: TestConfig{
			ThreadCount:         doc.ServerConfig.ThreadCount,
			DownloadLength:      time.Duration(doc.Download.TestLength) * time.Second,
			DownloadInitialSize: doc.Download.InitialTest,
			UploadLength:        time.Duration(doc.Upload.TestLength) * time.Second,
			UploadRatio:         doc.Upload.Ratio,
			UploadInitialSize:   doc.Upload.InitialTest,
			UploadMinSize:       doc.Upload.MinTestSize,
			IgnoreIDs:           parseIgnoreIDs(doc.ServerConfig.IgnoreIDs),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseIgnoreIDs(raw string) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, id := range strings.Split(raw, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids
}

// validate runs once at load; every later read of the config can assume
// sane values.
func (cfg *Config) validate() error {
	switch {
	case cfg.ThreadCount < 1:
		return errors.Wrapf(ErrInvalidConfig, "thread count %d, want at least 1", cfg.ThreadCount)
	case cfg.DownloadLength <= 0:
		return errors.Wrapf(ErrInvalidConfig, "download test length %s, want > 0", cfg.DownloadLength)
	case cfg.UploadLength <= 0:
		return errors.Wrapf(ErrInvalidConfig, "upload test length %s, want > 0", cfg.UploadLength)
	case cfg.DownloadInitialSize <= 0:
		return errors.Wrapf(ErrInvalidConfig, "download initial size %d, want > 0", cfg.DownloadInitialSize)
	case cfg.UploadRatio < 1 || cfg.UploadRatio > len(ulSizes):
		return errors.Wrapf(ErrInvalidConfig, "upload ratio %d, want between 1 and %d", cfg.UploadRatio, len(ulSizes))
	case cfg.UploadMinSize < 0 || cfg.UploadInitialSize < 0:
		return errors.Wrapf(ErrInvalidConfig, "negative upload size bounds")
	}
	return nil
}

// UploadSizes returns the upload request sizes selected by the ratio,
// bounded below by the configured minimum test size.
func (cfg *TestConfig) UploadSizes() []int {
	selected := ulSizes[cfg.UploadRatio-1:]
	sizes := make([]int, len(selected))
	for i, size := range selected {
		if size < cfg.UploadMinSize {
			size = cfg.UploadMinSize
		}
		sizes[i] = size
	}
	return sizes
}
