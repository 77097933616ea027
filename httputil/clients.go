package httputil

import (
	"net"
	"net/http"
	"time"
)

const (
	connectBudget = 5 * time.Second
	readBudget    = 12 * time.Second
)

// Clients holds the two long-lived, connection-pooling HTTP clients shared
// by the whole process: one for outbound scraping of the target site, one
// for talking to the ingestion sink.
type Clients struct {
	Scraping *http.Client
	Sink     *http.Client
}

func NewClients(sinkTimeout time.Duration) *Clients {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: connectBudget,
		}).DialContext,
		TLSHandshakeTimeout:   connectBudget,
		ResponseHeaderTimeout: readBudget,
		MaxIdleConnsPerHost:   4,
	}

	scraping := &http.Client{
		// A single attempt never exceeds the connect+read budget.
		Timeout:   readBudget,
		Transport: transport,
	}

	if sinkTimeout <= 0 {
		sinkTimeout = 20 * time.Second
	}

	return &Clients{
		Scraping: scraping,
		Sink:     &http.Client{Timeout: sinkTimeout},
	}
}
