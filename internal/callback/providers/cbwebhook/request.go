package cbwebhook

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type WebhookRequest struct {
	URL          string
	Timestamp    time.Time
	RawBody      []byte
	Metadata     map[string]string
	HeaderPrefix string
	UserAgent    string
	Signer       *Signer
}

func (wr *WebhookRequest) ToHTTPRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wr.URL, bytes.NewReader(wr.RawBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if wr.UserAgent != "" {
		req.Header.Set("User-Agent", wr.UserAgent)
	}
	req.Header.Set(wr.HeaderPrefix+"timestamp", fmt.Sprintf("%d", wr.Timestamp.Unix()))

	if wr.Signer != nil && wr.Signer.Enabled() {
		req.Header.Set(wr.HeaderPrefix+"signature", wr.Signer.Header(wr.Timestamp, wr.RawBody))
	}

	for key, value := range wr.Metadata {
		req.Header.Set(wr.HeaderPrefix+strings.ToLower(key), value)
	}

	return req, nil
}
