package connectutil

import (
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// H2CHandler serves handler over cleartext HTTP/2 as well as HTTP/1.1, so
// gRPC-style clients can reach the flow service without TLS.
func H2CHandler(handler http.Handler) http.Handler {
	return h2c.NewHandler(handler, &http2.Server{
		MaxConcurrentStreams: 250,
		MaxReadFrameSize:     1 << 20,
		IdleTimeout:          2 * time.Minute,
	})
}
