// Package httpclient provides the shared outbound HTTP client used by the
// notification transports and the browserless fetch mode.
package httpclient

import (
	"net/http"
	"time"

	"github.com/pagewatch/pagewatch/errors"
)

const maxRedirects = 10

// New returns an http.Client with a hard timeout, a bounded redirect chain,
// and sane connection pooling. Notification dispatch and static page fetches
// share this shape.
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.Newf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
		Transport: &http.Transport{
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
