package telegram

import (
	"net"
	"net/http"
	"time"
)

// longPollClient returns a pooled HTTP client whose timeout leaves headroom
// above the Bot API long-poll window, so a quiet getUpdates call is not
// misreported as a transport failure.
func longPollClient(pollWindow time.Duration) *http.Client {
	timeout := pollWindow + 20*time.Second
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
