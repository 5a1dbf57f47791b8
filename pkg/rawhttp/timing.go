package rawhttp

import "time"

// Timing represents timing information for different phases of the request
type Timing struct {
	DNSLookup    time.Duration // Time spent on DNS resolution (0 with ConnIP or a literal address)
	TCPConnect   time.Duration // Time spent on TCP connection establishment
	ContinueWait time.Duration // Time spent waiting for 100 Continue (0 without Expect)
	TTFB         time.Duration // Time to first byte (from sending the request head to the first response byte)
	Total        time.Duration // Total time until the response head was parsed
}

// String returns a human-readable representation of timing information
func (t *Timing) String() string {
	return formatTiming(t)
}

func formatTiming(t *Timing) string {
	result := "Timing:\n"
	if t.DNSLookup > 0 {
		result += "  DNS Lookup: " + t.DNSLookup.String() + "\n"
	}
	if t.TCPConnect > 0 {
		result += "  TCP Connect: " + t.TCPConnect.String() + "\n"
	}
	if t.ContinueWait > 0 {
		result += "  Continue Wait: " + t.ContinueWait.String() + "\n"
	}
	if t.TTFB > 0 {
		result += "  Time to First Byte: " + t.TTFB.String() + "\n"
	}
	result += "  Total: " + t.Total.String()
	return result
}
