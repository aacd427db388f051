package speedtest

import "errors"

// Fatal error kinds. Per-request transport failures during a throughput
// phase are absorbed by the workers and never surface through these.
var (
	// ErrConfigRetrieval indicates the configuration or server-list
	// document could not be obtained or parsed.
	ErrConfigRetrieval = errors.New("unable to retrieve speedtest configuration")

	// ErrInvalidConfig indicates the remote configuration carries
	// nonsensical bounds or ratios.
	ErrInvalidConfig = errors.New("invalid speedtest configuration")

	// ErrNoServersAvailable indicates the server directory is empty or
	// every server in it is ignored.
	ErrNoServersAvailable = errors.New("no servers available")

	// ErrBestServerFailure indicates no latency probe succeeded against
	// any candidate server.
	ErrBestServerFailure = errors.New("unable to connect to any probed server")

	// ErrNoBytesTransferred indicates a throughput phase ended with zero
	// bytes moved across all workers.
	ErrNoBytesTransferred = errors.New("no bytes transferred during test")
)
