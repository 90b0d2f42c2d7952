// Package provider defines the external CEP lookup contract and the pieces
// shared by its HTTP implementations.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Defaults shared by the HTTP providers
const (
	DefaultTimeout   = 5 * time.Second
	DefaultUserAgent = "CEP-Crawler/1.0"

	// maxBodyBytes caps provider responses; a CEP record is well under 1KB
	maxBodyBytes = 64 << 10
)

// CEPData is the normalized address payload persisted on success
type CEPData struct {
	CEP         string `json:"cep"`
	Logradouro  string `json:"logradouro"`
	Complemento string `json:"complemento"`
	Bairro      string `json:"bairro"`
	Localidade  string `json:"localidade"`
	UF          string `json:"uf"`
	IBGE        string `json:"ibge,omitempty"`
	GIA         string `json:"gia,omitempty"`
	DDD         string `json:"ddd,omitempty"`
	SIAFI       string `json:"siafi,omitempty"`
	Source      string `json:"source"`
}

// Result is the classified outcome of one lookup. Exactly one of Success,
// NotFound or a non-empty Error describes it; RateLimited refines Error.
type Result struct {
	Success     bool
	Payload     json.RawMessage
	Error       string
	NotFound    bool
	RateLimited bool
	StatusCode  int
}

// Provider looks up a single CEP. Implementations bound every call with
// their own timeout and never return a transport error directly: failures
// are folded into Result.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, cep string) Result
}

// Succeeded builds a success result from data
func Succeeded(data CEPData) Result {
	payload, err := json.Marshal(data)
	if err != nil {
		return Failed(0, fmt.Sprintf("failed to encode payload: %v", err))
	}
	return Result{Success: true, Payload: payload, StatusCode: http.StatusOK}
}

// NotFound builds a terminal not-found result
func NotFound(status int) Result {
	return Result{NotFound: true, Error: "CEP not found", StatusCode: status}
}

// Failed builds a transient failure; 429 is flagged as rate limited
func Failed(status int, msg string) Result {
	return Result{
		Error:       msg,
		StatusCode:  status,
		RateLimited: status == http.StatusTooManyRequests,
	}
}

// HTTPClient is the subset of *http.Client the providers need
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns a client with keep-alive connections suited to one
// host being called sequentially.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        16,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	}
}

// Get performs a bounded GET and returns status and body
func Get(ctx context.Context, client HTTPClient, url, userAgent string, timeout time.Duration) (int, []byte, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, body, nil
}

// HTTPError formats a non-2xx response the way results report it
func HTTPError(status int) string {
	return fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
}
