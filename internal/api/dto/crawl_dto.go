package dto

import "encoding/json"

type CreateCrawlRequest struct {
	CEPStart string `json:"cep_start" binding:"required"`
	CEPEnd   string `json:"cep_end" binding:"required"`
}

type CreateCrawlResponse struct {
	CrawlID   string `json:"crawl_id"`
	Message   string `json:"message"`
	TotalCEPs int    `json:"total_ceps"`
}

type CrawlStatusDTO struct {
	CrawlID        string  `json:"crawl_id"`
	CEPStart       string  `json:"cep_start"`
	CEPEnd         string  `json:"cep_end"`
	TotalCEPs      int     `json:"total_ceps"`
	ProcessedCount int     `json:"processed_count"`
	SuccessCount   int     `json:"success_count"`
	ErrorCount     int     `json:"error_count"`
	Status         string  `json:"status"`
	StartedAt      *string `json:"started_at,omitempty"`
	FinishedAt     *string `json:"finished_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

type ListResultsRequest struct {
	Page  string `form:"page"`
	Limit string `form:"limit"`
}

type CrawlResultDTO struct {
	CEP          string          `json:"cep"`
	Success      bool            `json:"success"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    string          `json:"created_at"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type CrawlResultsResponse struct {
	CrawlID    string           `json:"crawl_id"`
	Results    []CrawlResultDTO `json:"results"`
	Pagination Pagination       `json:"pagination"`
}

type ProviderHealthDTO struct {
	Provider            string  `json:"provider"`
	Healthy             bool    `json:"healthy"`
	LastCheck           *string `json:"last_check,omitempty"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
}

type HealthResponse struct {
	Status             string              `json:"status"`
	Service            string              `json:"service"`
	Dependencies       map[string]string   `json:"dependencies,omitempty"`
	Providers          []ProviderHealthDTO `json:"providers"`
	HealthyProviders   []string            `json:"healthy_providers"`
	UnhealthyProviders []string            `json:"unhealthy_providers"`
}
