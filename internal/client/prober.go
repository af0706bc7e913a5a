package client

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Prober checks reachability of the authority with a short abort timeout.
// The draft engine uses probe results to decide whether a tick may send.
type Prober struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	log      zerolog.Logger
}

// NewProber creates a prober against a health endpoint. A non-positive
// timeout defaults to 5 seconds.
func NewProber(endpoint string, timeout time.Duration, log zerolog.Logger) *Prober {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		endpoint: endpoint,
		timeout:  timeout,
		http:     &http.Client{},
		log:      log,
	}
}

// Online reports whether the authority answered the probe within the
// timeout. Probe failures are expected during disconnects and logged at
// debug only.
func (p *Prober) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return false
	}

	resp, err := p.http.Do(req)
	if err != nil {
		p.log.Debug().Err(err).Msg("connectivity probe failed")
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < 500
}

// Watch polls the probe on interval and invokes onChange on every
// transition until ctx is cancelled.
func (p *Prober) Watch(ctx context.Context, interval time.Duration, onChange func(online bool)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := p.Online(ctx)
	onChange(last)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := p.Online(ctx)
			if current != last {
				last = current
				onChange(current)
			}
		}
	}
}
