package speedtest

import (
	"context"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

const (
	speedTestServersURL            = "://www.speedtest.net/api/js/servers?engine=js"
	speedTestServersAlternativeURL = "://www.speedtest.net/speedtest-servers-static.php"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server is one candidate test endpoint from the directory. Lat and Lon
// stay in wire format; Distance is computed once during ranking and
// immutable afterwards, as are Latency and the measured speeds once their
// phase completes.
type Server struct {
	URL      string        `xml:"url,attr" json:"url"`
	Lat      string        `xml:"lat,attr" json:"lat"`
	Lon      string        `xml:"lon,attr" json:"lon"`
	Name     string        `xml:"name,attr" json:"name"`
	Country  string        `xml:"country,attr" json:"country"`
	Sponsor  string        `xml:"sponsor,attr" json:"sponsor"`
	ID       string        `xml:"id,attr" json:"id"`
	Host     string        `xml:"host,attr" json:"host"`
	Distance float64       `json:"distance"`
	Latency  time.Duration `json:"latency"`
	DLSpeed  ByteRate      `json:"dl_speed"`
	ULSpeed  ByteRate      `json:"ul_speed"`

	BytesReceived int64 `json:"bytes_received"`
	BytesSent     int64 `json:"bytes_sent"`

	client      *Client
	distanceSet bool
}

// Servers is the candidate server directory.
type Servers []*Server

// serverList is the XML fallback payload shape.
type serverList struct {
	Servers []*Server `xml:"servers>server"`
}

// FetchServers retrieves the server directory ranked against the client
// location in the configuration.
func (c *Client) FetchServers(cfg *Config) (Servers, error) {
	return c.FetchServersContext(context.Background(), cfg)
}

// FetchServersContext retrieves the server directory, observing the given
// context. The primary JSON endpoint is tried first; an empty response
// falls back to the static XML list, exactly like the official clients.
func (c *Client) FetchServersContext(ctx context.Context, cfg *Config) (Servers, error) {
	fetchURL := fmt.Sprintf("%s&lat=%f&lon=%f", speedTestServersURL, cfg.Client.Lat, cfg.Client.Lon)
	req, err := c.newRequest(ctx, "GET", fetchURL, nil)
	if err != nil {
		return nil, errors.Wrapf(ErrConfigRetrieval, "building server-list request: %v", err)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrConfigRetrieval, "fetching server list: %v", err)
	}

	var servers Servers
	if resp.ContentLength == 0 {
		resp.Body.Close()

		req, err = c.newRequest(ctx, "GET", speedTestServersAlternativeURL, nil)
		if err != nil {
			return nil, errors.Wrapf(ErrConfigRetrieval, "building server-list request: %v", err)
		}
		resp, err = c.doer.Do(req)
		if err != nil {
			return nil, errors.Wrapf(ErrConfigRetrieval, "fetching server list: %v", err)
		}
		defer resp.Body.Close()

		var list serverList
		if err := xml.NewDecoder(resp.Body).Decode(&list); err != nil {
			return nil, errors.Wrapf(ErrConfigRetrieval, "decoding server list: %v", err)
		}
		servers = list.Servers
	} else {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(&servers); err != nil {
			return nil, errors.Wrapf(ErrConfigRetrieval, "decoding server list: %v", err)
		}
	}

	for _, server := range servers {
		server.client = c
	}
	return servers, nil
}

// computeDistance fills in the great-circle distance from origin, once.
func (s *Server) computeDistance(origin Point) {
	if s.distanceSet {
		return
	}
	lat, _ := strconv.ParseFloat(s.Lat, 64)
	lon, _ := strconv.ParseFloat(s.Lon, 64)
	s.Distance = Distance(origin, Point{Lat: lat, Lon: lon})
	s.distanceSet = true
}

// Closest returns up to limit servers ordered by distance from origin,
// nearest first. Equal distances keep the original input order, and
// ignored ids are excluded before ranking.
func (servers Servers) Closest(origin Point, limit int, ignoreIDs map[string]struct{}) (Servers, error) {
	type ranked struct {
		distance float64
		index    int
		server   *Server
	}

	candidates := make([]ranked, 0, len(servers))
	for i, s := range servers {
		if _, ignored := ignoreIDs[s.ID]; ignored {
			continue
		}
		s.computeDistance(origin)
		candidates = append(candidates, ranked{distance: s.Distance, index: i, server: s})
	}
	if len(candidates) == 0 {
		return nil, ErrNoServersAvailable
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].index < candidates[j].index
	})

	if limit > len(candidates) {
		limit = len(candidates)
	}
	closest := make(Servers, limit)
	for i := 0; i < limit; i++ {
		closest[i] = candidates[i].server
	}
	return closest, nil
}

// FindServer returns the server with the given id.
func (servers Servers) FindServer(id string) (*Server, error) {
	for _, s := range servers {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, errors.Wrapf(ErrNoServersAvailable, "server %s not found", id)
}

// String representation of Server.
func (s *Server) String() string {
	return fmt.Sprintf("[%5s] %8.2f km %s (%s) by %s", s.ID, s.Distance, s.Name, s.Country, s.Sponsor)
}
