package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const SignatureHeader = "X-Labportal-Signature"

// WebhookDispatcher POSTs each event as JSON to URL. The body is signed with
// base64(HMAC_SHA256(secret, body)) in SignatureHeader.
type WebhookDispatcher struct {
	HTTPClient *http.Client
	URL        string
	Secret     string
}

func (d WebhookDispatcher) Dispatch(ctx context.Context, ev Event) error {
	if d.URL == "" {
		return nil
	}
	client := d.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Labportal-Event-Id", ev.ID)
	if d.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, d.Secret))
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if len(b) > 0 {
			return fmt.Errorf("notify webhook: status=%d body=%s", resp.StatusCode, string(b))
		}
		return fmt.Errorf("notify webhook: status=%d", resp.StatusCode)
	}
	return nil
}

func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign.
func Verify(body []byte, signature string, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}
