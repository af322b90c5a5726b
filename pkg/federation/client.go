package federation

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nodeweave/nodeweave/pkg/fedauth"
)

// Client performs outbound federation calls. Every signed call carries the
// local hostname and an HMAC over the exact transmitted bytes.
type Client struct {
	localHostname string
	insecure      bool
	http          *http.Client
}

func NewClient(localHostname string, insecure bool, timeout time.Duration) *Client {
	transport := http.DefaultTransport
	if insecure {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Client{
		localHostname: localHostname,
		insecure:      insecure,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (c *Client) baseURL(hostname string) string {
	scheme := "https"
	if c.insecure {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, hostname)
}

// PostSigned canonicalizes payload, signs it with secret and POSTs it.
func (c *Client) PostSigned(ctx context.Context, hostname, secret, path string, payload any, out any) error {
	body, err := fedauth.CanonicalBody(payload)
	if err != nil {
		return err
	}
	return c.PostSignedRaw(ctx, hostname, secret, path, body, out)
}

// PostSignedRaw sends pre-canonicalized bytes. The outbox sender uses this so
// the stored payload and the signed payload are the same bytes.
func (c *Client) PostSignedRaw(ctx context.Context, hostname, secret, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL(hostname)+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(fedauth.HeaderNodeHostname, c.localHostname)
	req.Header.Set(fedauth.HeaderNodeSignature, fedauth.Sign(secret, body))
	return c.do(req, hostname, out)
}

// GetSigned performs a signed body-less GET; the signature covers the empty
// byte string.
func (c *Client) GetSigned(ctx context.Context, hostname, secret, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL(hostname)+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set(fedauth.HeaderNodeHostname, c.localHostname)
	req.Header.Set(fedauth.HeaderNodeSignature, fedauth.Sign(secret, nil))
	return c.do(req, hostname, out)
}

// PostUnsigned is for the two bootstrap endpoints that run before any shared
// secret exists: initiate_pairing and targeted_subscribe.
func (c *Client) PostUnsigned(ctx context.Context, hostname, path string, payload any, out any) error {
	body, err := fedauth.CanonicalBody(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL(hostname)+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(fedauth.HeaderNodeHostname, c.localHostname)
	return c.do(req, hostname, out)
}

func (c *Client) do(req *http.Request, hostname string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s on %s: %w", req.URL.Path, hostname, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("node %s returned %d for %s: %s", hostname, resp.StatusCode, req.URL.Path, bytes.TrimSpace(snippet))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", hostname, err)
	}
	return nil
}
