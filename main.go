package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/paisdup/speedtest-cli/speedtest"
)

var (
	showList     = kingpin.Flag("list", "Display a list of speedtest.net servers sorted by distance").Short('l').Bool()
	serverID     = kingpin.Flag("server", "Specify a server ID to test against").Short('s').String()
	simple       = kingpin.Flag("simple", "Suppress verbose output, only show basic information").Bool()
	csvOut       = kingpin.Flag("csv", "Suppress verbose output, only show basic information in CSV format").Bool()
	csvDelimiter = kingpin.Flag("csv-delimiter", "Single character delimiter to use in CSV output").Default(",").String()
	csvHeader    = kingpin.Flag("csv-header", "Print CSV headers and exit").Bool()
	jsonOut      = kingpin.Flag("json", "Suppress verbose output, only show basic information in JSON format").Bool()
	noDownload   = kingpin.Flag("no-download", "Do not perform download test").Bool()
	noUpload     = kingpin.Flag("no-upload", "Do not perform upload test").Bool()
	shareFlag    = kingpin.Flag("share", "Generate and provide a URL to the speedtest.net share results image").Bool()
	secure       = kingpin.Flag("secure", "Use HTTPS instead of HTTP when communicating with speedtest.net operated servers").Bool()
	timeoutOpt   = kingpin.Flag("timeout", "HTTP timeout in seconds").Default("10").Int()
	source       = kingpin.Flag("source", "Source IP address to bind to").String()
	proxyURL     = kingpin.Flag("proxy", "Upstream HTTP proxy URL").String()
	debugFlag    = kingpin.Flag("debug", "Enable debug logging").Bool()
)

func main() {
	kingpin.Version(speedtest.Version)
	kingpin.Parse()

	if len(*csvDelimiter) != 1 {
		fmt.Fprintln(os.Stderr, "--csv-delimiter must be a single character")
		os.Exit(1)
	}
	if *noDownload && *noUpload {
		fmt.Fprintln(os.Stderr, "Cannot supply both --no-download and --no-upload")
		os.Exit(1)
	}
	if *csvHeader {
		fmt.Println(speedtest.CSVHeader(*csvDelimiter))
		return
	}
	if *debugFlag {
		speedtest.EnableDebug()
	}

	opts := []speedtest.Option{
		speedtest.WithTimeout(time.Duration(*timeoutOpt) * time.Second),
		speedtest.WithSecure(*secure),
	}
	if *source != "" {
		opts = append(opts, speedtest.WithSourceAddress(*source))
	}
	if *proxyURL != "" {
		opts = append(opts, speedtest.WithProxy(*proxyURL))
	}
	client, err := speedtest.New(opts...)
	checkError(err)

	ctx := context.Background()
	quiet := *simple || *csvOut || *jsonOut
	tm := InitTaskManager(quiet)

	var cfg *speedtest.Config
	tm.Run("Retrieving speedtest.net configuration", func(task *Task) {
		var err error
		cfg, err = client.FetchConfigContext(ctx)
		task.CheckError(err)
		task.Printf("Testing from %s", cfg.Client.String())
		task.Complete()
	})

	var servers speedtest.Servers
	tm.Run("Retrieving speedtest.net server list", func(task *Task) {
		var err error
		servers, err = client.FetchServersContext(ctx, cfg)
		task.CheckError(err)
		task.Printf("Retrieved %d servers", len(servers))
		task.Complete()
	})

	origin := cfg.Client.Location()

	if *showList {
		tm.Stop()
		ranked, err := servers.Closest(origin, len(servers), cfg.IgnoreIDs)
		checkError(err)
		for _, s := range ranked {
			fmt.Println(s)
		}
		return
	}

	var best *speedtest.Server
	tm.Run("Selecting best server based on ping", func(task *Task) {
		var err error
		if *serverID != "" {
			// manual selection skips ranking but still measures the
			// reported ping once
			var ranked speedtest.Servers
			ranked, err = servers.Closest(origin, len(servers), nil)
			task.CheckError(err)
			best, err = ranked.FindServer(*serverID)
			task.CheckError(err)
			err = client.MeasureLatency(ctx, best)
		} else {
			best, err = client.FindBestServerContext(ctx, servers, origin, cfg.IgnoreIDs)
		}
		task.CheckError(err)
		task.Printf("Hosted by %s (%s) [%.2f km]: %.2f ms",
			best.Sponsor, best.Name, best.Distance, float64(best.Latency)/float64(time.Millisecond))
		task.Complete()
	})

	if !*noDownload {
		tm.Run("Testing download speed", func(task *Task) {
			err := best.DownloadTestContext(ctx, &cfg.TestConfig)
			task.CheckError(err)
			task.Printf("Download: %s (%s transferred)", best.DLSpeed, humanize.Bytes(uint64(best.BytesReceived)))
			task.Complete()
		})
	}

	if !*noUpload {
		tm.Run("Testing upload speed", func(task *Task) {
			err := best.UploadTestContext(ctx, &cfg.TestConfig)
			task.CheckError(err)
			task.Printf("Upload: %s (%s transferred)", best.ULSpeed, humanize.Bytes(uint64(best.BytesSent)))
			task.Complete()
		})
	}
	tm.Stop()

	result := speedtest.NewResult(best, &cfg.Client)
	if *shareFlag {
		if _, err := client.SubmitShare(ctx, result); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not submit share results: %v\n", err)
		}
	}

	switch {
	case *csvOut:
		fmt.Println(result.CSV(*csvDelimiter))
	case *jsonOut:
		out, err := result.JSON(false)
		checkError(err)
		fmt.Println(string(out))
	case *simple:
		fmt.Println(result.String())
	default:
		fmt.Println()
		fmt.Println(result.String())
		if result.Share != "" {
			fmt.Printf("Share results: %s\n", result.Share)
		}
	}
}

func checkError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
