package speedtest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// requestFunc performs one transfer, crediting moved bytes to the meter.
type requestFunc func(ctx context.Context, m *meter, item work) error

var (
	// download image sizes in pixels, ascending; the endpoint serves
	// random<size>x<size>.jpg files
	dlSizes = [...]int{350, 500, 750, 1000, 1500, 2000, 2500, 3000, 3500, 4000}
	// upload payload sizes in bytes, ascending; the configured upload
	// ratio selects the tail of this table
	ulSizes = [...]int{32768, 65536, 131072, 262144, 524288, 1048576, 7340032}
)

// threadsPerSize replicates each queued size so the queue outlasts the
// time budget at any plausible bandwidth.
const threadsPerSize = 4

type work struct {
	url  string
	size int
}

// DownloadTest measures download throughput against the server.
func (s *Server) DownloadTest(cfg *TestConfig) error {
	return s.DownloadTestContext(context.Background(), cfg)
}

// DownloadTestContext measures download throughput, observing the given
// context. The result is stored on the server record exactly once.
func (s *Server) DownloadTestContext(ctx context.Context, cfg *TestConfig) error {
	return s.downloadTestContext(ctx, cfg, s.client.downloadRequest)
}

func (s *Server) downloadTestContext(ctx context.Context, cfg *TestConfig, request requestFunc) error {
	m := newMeter()
	start := time.Now()

	// one request at the initial size gauges whether the configured
	// sizes fit the time budget
	scale := 1.0
	warm := work{url: downloadURL(s.URL, cfg.DownloadInitialSize), size: cfg.DownloadInitialSize}
	if err := request(ctx, m, warm); err != nil {
		dbg.Printf("download warm-up failed: %v", err)
	}
	if warmElapsed := time.Since(start); warmElapsed > cfg.DownloadLength/2 {
		scale = cfg.DownloadLength.Seconds() / (2 * warmElapsed.Seconds())
		dbg.Printf("download warm-up took %s, scaling sizes by %.3f", warmElapsed, scale)
	}

	rate, err := runPhase(ctx, m, downloadQueue(s.URL, scale), cfg.ThreadCount, cfg.DownloadLength, start, request)
	if err != nil {
		return err
	}
	s.DLSpeed = rate
	s.BytesReceived = m.bytes()
	return nil
}

// UploadTest measures upload throughput against the server.
func (s *Server) UploadTest(cfg *TestConfig) error {
	return s.UploadTestContext(context.Background(), cfg)
}

// UploadTestContext measures upload throughput, observing the given
// context. The result is stored on the server record exactly once.
func (s *Server) UploadTestContext(ctx context.Context, cfg *TestConfig) error {
	return s.uploadTestContext(ctx, cfg, s.client.uploadRequest)
}

func (s *Server) uploadTestContext(ctx context.Context, cfg *TestConfig, request requestFunc) error {
	m := newMeter()
	start := time.Now()

	scale := 1.0
	if cfg.UploadInitialSize > 0 {
		warm := work{url: s.URL, size: cfg.UploadInitialSize}
		if err := request(ctx, m, warm); err != nil {
			dbg.Printf("upload warm-up failed: %v", err)
		}
		if warmElapsed := time.Since(start); warmElapsed > cfg.UploadLength/2 {
			scale = cfg.UploadLength.Seconds() / (2 * warmElapsed.Seconds())
			dbg.Printf("upload warm-up took %s, scaling sizes by %.3f", warmElapsed, scale)
		}
	}

	rate, err := runPhase(ctx, m, uploadQueue(s.URL, cfg, scale), cfg.ThreadCount, cfg.UploadLength, start, request)
	if err != nil {
		return err
	}
	s.ULSpeed = rate
	s.BytesSent = m.bytes()
	return nil
}

// runPhase drives one timed throughput phase. thread_count workers drain
// the queue until the deadline signal trips; an in-flight transfer always
// finishes, and a failed transfer just advances the worker to the next
// item. The aggregate rate uses the wall clock measured from phase start
// to the final worker join, so overrun past the deadline is counted.
func runPhase(ctx context.Context, m *meter, queue []work, threads int, budget time.Duration, start time.Time, request requestFunc) (ByteRate, error) {
	remaining := budget - time.Since(start)
	if remaining < 0 {
		remaining = 0
	}
	timer := time.AfterFunc(remaining, m.expire)
	defer timer.Stop()

	jobs := make(chan work, len(queue))
	for _, item := range queue {
		jobs <- item
	}
	close(jobs)

	var g errgroup.Group
	for i := 0; i < threads; i++ {
		g.Go(func() error {
			for item := range jobs {
				if m.expired() {
					return nil
				}
				if err := request(ctx, m, item); err != nil {
					dbg.Printf("request %s (%d) failed: %v", item.url, item.size, err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	total := m.bytes()
	if total == 0 {
		return 0, ErrNoBytesTransferred
	}
	return ByteRate(float64(total) / elapsed.Seconds()), nil
}

func downloadQueue(serverURL string, scale float64) []work {
	queue := make([]work, 0, len(dlSizes)*threadsPerSize)
	for _, size := range dlSizes {
		scaled := int(float64(size) * scale)
		if scaled < dlSizes[0] {
			scaled = dlSizes[0]
		}
		for i := 0; i < threadsPerSize; i++ {
			queue = append(queue, work{url: downloadURL(serverURL, scaled), size: scaled})
		}
	}
	return queue
}

func uploadQueue(serverURL string, cfg *TestConfig, scale float64) []work {
	sizes := cfg.UploadSizes()
	queue := make([]work, 0, len(sizes)*threadsPerSize)
	for _, size := range sizes {
		scaled := int(float64(size) * scale)
		if scaled < cfg.UploadMinSize {
			scaled = cfg.UploadMinSize
		}
		if scaled <= 0 {
			scaled = sizes[0]
		}
		for i := 0; i < threadsPerSize; i++ {
			queue = append(queue, work{url: serverURL, size: scaled})
		}
	}
	return queue
}

func downloadURL(serverURL string, size int) string {
	u, err := url.Parse(serverURL)
	if err != nil {
		return serverURL
	}
	u.Path = path.Dir(u.Path)
	return u.JoinPath(fmt.Sprintf("random%dx%d.jpg", size, size)).String()
}

func (c *Client) downloadRequest(ctx context.Context, m *meter, item work) error {
	req, err := c.newRequest(ctx, http.MethodGet, item.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.doer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("unexpected status %d from %s", resp.StatusCode, item.url)
	}
	_, err = m.drain(resp.Body)
	return err
}

func (c *Client) uploadRequest(ctx context.Context, m *meter, item work) error {
	req, err := c.newRequest(ctx, http.MethodPost, item.url, m.newPayloadReader(item.size))
	if err != nil {
		return err
	}
	req.ContentLength = int64(item.size)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.doer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("unexpected status %d from %s", resp.StatusCode, item.url)
	}
	return nil
}
