package speedtest

import "strconv"

// ByteRate is a transfer rate in bytes per second.
type ByteRate float64

// Mbps returns the rate in megabits per second.
func (r ByteRate) Mbps() float64 {
	return float64(r) * 8 / 1000000
}

// Bps returns the rate in bits per second, the unit results are
// serialized with.
func (r ByteRate) Bps() int64 {
	return int64(float64(r) * 8)
}

// String formats the rate the way the test output displays it.
func (r ByteRate) String() string {
	return strconv.FormatFloat(r.Mbps(), 'f', 2, 64) + " Mbit/s"
}
