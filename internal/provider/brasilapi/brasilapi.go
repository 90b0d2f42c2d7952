// Package brasilapi implements the CEP provider backed by brasilapi.com.br.
package brasilapi

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

const Name = "BrasilAPI"

type Config struct {
	BaseURL   string
	TestCEP   string
	Timeout   time.Duration
	UserAgent string
}

// Provider queries {BaseURL}/{cep}. BrasilAPI answers unknown CEPs with 404.
type Provider struct {
	cfg    Config
	client provider.HTTPClient
	logger *slog.Logger
}

type response struct {
	CEP          string `json:"cep"`
	State        string `json:"state"`
	City         string `json:"city"`
	Neighborhood string `json:"neighborhood"`
	Street       string `json:"street"`
}

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

func (p *Provider) Name() string {
	return Name
}

func (p *Provider) Fetch(ctx context.Context, cep string) provider.Result {
	start := time.Now()
	status, body, err := provider.Get(ctx, p.client, p.cfg.BaseURL+"/"+cep, p.cfg.UserAgent, p.cfg.Timeout)
	metrics.ObserveProviderRequest(Name, time.Since(start))

	if err != nil {
		p.logger.Error("Error fetching CEP",
			slog.String("cep", cep),
			slog.Any("error", err),
		)
		return provider.Failed(status, fmt.Sprintf("Network error: %v", err))
	}

	switch {
	case status == http.StatusNotFound:
		return provider.NotFound(status)
	case status != http.StatusOK:
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

	return provider.Succeeded(provider.CEPData{
		CEP:        resp.CEP,
		Logradouro: resp.Street,
		Bairro:     resp.Neighborhood,
		Localidade: resp.City,
		UF:         resp.State,
		Source:     Name,
	})
}

// Ping looks up the configured test CEP
func (p *Provider) Ping(ctx context.Context) error {
	if p.cfg.TestCEP == "" {
		return errors.New("brasilapi: test CEP not configured")
	}

	result := p.Fetch(ctx, p.cfg.TestCEP)
	if !result.Success {
		return fmt.Errorf("health check returned false: %s", result.Error)
	}
	return nil
}
