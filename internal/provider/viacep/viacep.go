// Package viacep implements the CEP provider backed by viacep.com.br.
package viacep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/cep-crawler/internal/metrics"
	"github.com/cuongbtq/cep-crawler/internal/provider"
)

// Name identifies the provider in logs, metrics and health status
const Name = "ViaCEP"

// Config holds ViaCEP client configuration
type Config struct {
	BaseURL   string
	TestCEP   string
	Timeout   time.Duration
	UserAgent string
}

// Provider queries {BaseURL}/{cep}/json/
type Provider struct {
	cfg    Config
	client provider.HTTPClient
	logger *slog.Logger
}

// response mirrors the ViaCEP JSON body. erro is a bool in the v1 API and
// the string "true" in newer deployments.
type response struct {
	CEP         string          `json:"cep"`
	Logradouro  string          `json:"logradouro"`
	Complemento string          `json:"complemento"`
	Bairro      string          `json:"bairro"`
	Localidade  string          `json:"localidade"`
	UF          string          `json:"uf"`
	IBGE        string          `json:"ibge"`
	GIA         string          `json:"gia"`
	DDD         string          `json:"ddd"`
	SIAFI       string          `json:"siafi"`
	Erro        json.RawMessage `json:"erro"`
}

func (r *response) notFound() bool {
	v := strings.Trim(strings.TrimSpace(string(r.Erro)), `"`)
	return v == "true"
}

// New creates a ViaCEP provider. A nil client gets a default one.
func New(cfg Config, client provider.HTTPClient, logger *slog.Logger) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = provider.DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if client == nil {
		client = provider.NewHTTPClient(cfg.Timeout)
	}
	return &Provider{
		cfg:    cfg,
		client: client,
		logger: logger.With(slog.String("provider", Name)),
	}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return Name
}

// Fetch looks up one CEP
func (p *Provider) Fetch(ctx context.Context, cep string) provider.Result {
	p.logger.Debug("Fetching CEP", slog.String("cep", cep))

	start := time.Now()
	status, body, err := provider.Get(ctx, p.client, p.url(cep), p.cfg.UserAgent, p.cfg.Timeout)
	metrics.ObserveProviderRequest(Name, time.Since(start))

	if err != nil {
		p.logger.Error("Error fetching CEP",
			slog.String("cep", cep),
			slog.Any("error", err),
		)
		return provider.Failed(status, fmt.Sprintf("Network error: %v", err))
	}

	if status != http.StatusOK {
		p.logger.Warn("Unexpected status fetching CEP",
			slog.String("cep", cep),
			slog.Int("status", status),
		)
		return provider.Failed(status, provider.HTTPError(status))
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return provider.Failed(status, fmt.Sprintf("Malformed response: %v", err))
	}

	if resp.notFound() {
		return provider.NotFound(status)
	}

	return provider.Succeeded(provider.CEPData{
		CEP:         resp.CEP,
		Logradouro:  resp.Logradouro,
		Complemento: resp.Complemento,
		Bairro:      resp.Bairro,
		Localidade:  resp.Localidade,
		UF:          resp.UF,
		IBGE:        resp.IBGE,
		GIA:         resp.GIA,
		DDD:         resp.DDD,
		SIAFI:       resp.SIAFI,
		Source:      Name,
	})
}

// Ping checks the service by looking up the configured test CEP
func (p *Provider) Ping(ctx context.Context) error {
	if p.cfg.TestCEP == "" {
		return errors.New("viacep: test CEP not configured")
	}

	result := p.Fetch(ctx, p.cfg.TestCEP)
	if !result.Success {
		return fmt.Errorf("health check returned false: %s", result.Error)
	}
	return nil
}

func (p *Provider) url(cep string) string {
	return fmt.Sprintf("%s/%s/json/", p.cfg.BaseURL, cep)
}
