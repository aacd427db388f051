package speedtest

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

const (
	probeCandidates = 5
	probeAttempts   = 3
)

// FindBestServer probes the closest candidates and returns the one with
// the lowest mean round-trip time.
func (c *Client) FindBestServer(servers Servers, origin Point, ignoreIDs map[string]struct{}) (*Server, error) {
	return c.FindBestServerContext(context.Background(), servers, origin, ignoreIDs)
}

// FindBestServerContext narrows the directory to the geographically
// closest candidates, probes each with a fixed number of lightweight
// round trips, and picks the lowest mean latency. Ties go to the closer
// server. The winner's measured latency is stored on the record and
// reused as the reported ping; it is never re-measured.
func (c *Client) FindBestServerContext(ctx context.Context, servers Servers, origin Point, ignoreIDs map[string]struct{}) (*Server, error) {
	candidates, err := servers.Closest(origin, probeCandidates, ignoreIDs)
	if err != nil {
		return nil, err
	}

	var best *Server
	for _, server := range candidates {
		latency, ok := c.probeLatency(ctx, server)
		if !ok {
			dbg.Printf("probe: no successful attempt against %s", server.URL)
			continue
		}
		server.Latency = latency
		dbg.Printf("probe: %s latency %s distance %.2f km", server.ID, latency, server.Distance)

		if best == nil ||
			latency < best.Latency ||
			(latency == best.Latency && server.Distance < best.Distance) {
			best = server
		}
	}
	if best == nil {
		return nil, ErrBestServerFailure
	}
	return best, nil
}

// MeasureLatency probes a single, manually selected server and stores its
// latency. Used when the caller pins a server id instead of ranking.
func (c *Client) MeasureLatency(ctx context.Context, server *Server) error {
	latency, ok := c.probeLatency(ctx, server)
	if !ok {
		return ErrBestServerFailure
	}
	server.Latency = latency
	return nil
}

// probeLatency issues the fixed number of round trips against the
// server's latency endpoint. Any transport error or non-2xx status counts
// uniformly as one failed attempt; the mean covers successes only.
func (c *Client) probeLatency(ctx context.Context, server *Server) (time.Duration, bool) {
	probeURL := latencyURL(server.URL)
	var total time.Duration
	successes := 0

	for i := 0; i < probeAttempts; i++ {
		req, err := c.newRequest(ctx, http.MethodGet, probeURL, nil)
		if err != nil {
			return 0, false
		}

		start := time.Now()
		resp, err := c.doer.Do(req)
		elapsed := time.Since(start)
		if err != nil {
			dbg.Printf("probe: attempt %d against %s failed: %v", i+1, probeURL, err)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			dbg.Printf("probe: attempt %d against %s got status %d", i+1, probeURL, resp.StatusCode)
			continue
		}

		total += elapsed
		successes++
	}

	if successes == 0 {
		return 0, false
	}
	return total / time.Duration(successes), true
}

// latencyURL points at the latency.txt file next to the server's upload
// endpoint.
func latencyURL(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil {
		return serverURL
	}
	u.Path = path.Dir(u.Path)
	return u.JoinPath("latency.txt").String()
}
