package cbwebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Signer produces the signature header value for a request body. Peers verify
// it by recomputing HMAC-SHA256 over "<unix timestamp>.<body>" with the shared
// secret.
type Signer struct {
	secrets []string
}

// NewSigner signs with every non-empty secret, so a peer can rotate keys by
// accepting either of two signatures for a while.
func NewSigner(secrets ...string) *Signer {
	s := &Signer{}
	for _, secret := range secrets {
		if secret != "" {
			s.secrets = append(s.secrets, secret)
		}
	}
	return s
}

func (s *Signer) Enabled() bool {
	return len(s.secrets) > 0
}

func (s *Signer) Signatures(timestamp time.Time, body []byte) []string {
	content := fmt.Sprintf("%d.%s", timestamp.Unix(), body)
	signatures := make([]string, 0, len(s.secrets))
	for _, secret := range s.secrets {
		signatures = append(signatures, Sign(secret, content))
	}
	return signatures
}

// Header formats the signatures as "t=<unix>,v0=<sig>[,<sig>...]".
func (s *Signer) Header(timestamp time.Time, body []byte) string {
	if !s.Enabled() {
		return ""
	}
	return fmt.Sprintf("t=%d,v0=%s", timestamp.Unix(), strings.Join(s.Signatures(timestamp, body), ","))
}

func Sign(secret, content string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}
