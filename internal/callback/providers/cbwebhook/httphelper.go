package cbwebhook

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 1024

// ClassifyNetworkError maps a transport error to a short failure code.
//
//   - dns_error:           domain doesn't exist or DNS lookup failed
//   - connection_refused:  peer not listening
//   - connection_reset:    connection dropped by the peer
//   - network_unreachable: no route to the peer
//   - timeout:             I/O timeout or context deadline
//   - tls_error:           certificate or handshake failure
//   - network_error:       anything else
func ClassifyNetworkError(err error) string {
	if err == nil {
		return "unknown"
	}

	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "no such host"):
		return "dns_error"
	case strings.Contains(errStr, "connection refused"):
		return "connection_refused"
	case strings.Contains(errStr, "connection reset"):
		return "connection_reset"
	case strings.Contains(errStr, "network is unreachable"):
		return "network_unreachable"
	case strings.Contains(errStr, "i/o timeout"), strings.Contains(errStr, "context deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "tls:"), strings.Contains(errStr, "x509:"):
		return "tls_error"
	default:
		return "network_error"
	}
}

// responseError reads a bounded part of a failed response for the error message.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
