package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cuongbtq/cep-crawler/internal/api/dto"
	"github.com/cuongbtq/cep-crawler/internal/domain"
	"github.com/gin-gonic/gin"
)

// MessageCrawlCreated is returned when a crawl is accepted
const MessageCrawlCreated = "Crawl request created successfully"

// CreateCrawl handles POST /api/v1/crawls
// Accepts a CEP range and enqueues one work item per CEP
func (h *CrawlHandler) CreateCrawl(c *gin.Context) {
	h.logger.Info("CreateCrawl called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	)

	// 1. Validate request body
	var req dto.CreateCrawlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	// 2. Create the job and enqueue its items
	crawlID, total, err := h.crawls.CreateJob(c.Request.Context(), req.CEPStart, req.CEPEnd)
	if err != nil {
		h.writeCreateError(c, err)
		return
	}

	// 3. Return accepted response
	c.JSON(http.StatusAccepted, dto.CreateCrawlResponse{
		CrawlID:   crawlID,
		Message:   MessageCrawlCreated,
		TotalCEPs: total,
	})
}

func (h *CrawlHandler) writeCreateError(c *gin.Context, err error) {
	var partial *domain.PartialEnqueueError

	switch {
	case errors.Is(err, domain.ErrInvalidRange):
		h.logger.Warn("Rejected crawl range", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})

	case errors.Is(err, domain.ErrUpstreamUnavailable):
		h.logger.Warn("Rejected crawl, no healthy provider", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "CEP provider unavailable, try again later",
			"details": err.Error(),
		})

	case errors.As(err, &partial):
		h.logger.Error("Crawl partially enqueued",
			slog.String("crawl_id", partial.JobID),
			slog.Int("enqueued", partial.Enqueued),
			slog.Int("total_ceps", partial.Total),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Failed to enqueue all CEPs",
			"crawl_id":   partial.JobID,
			"enqueued":   partial.Enqueued,
			"total_ceps": partial.Total,
		})

	default:
		h.logger.Error("Failed to create crawl", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create crawl",
		})
	}
}

// GetCrawl handles GET /api/v1/crawls/:crawl_id
// Retrieves the progress of a crawl
func (h *CrawlHandler) GetCrawl(c *gin.Context) {
	crawlID := c.Param("crawl_id")

	h.logger.Info("GetCrawl called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("crawl_id", crawlID),
	)

	job, err := h.crawls.GetStatus(c.Request.Context(), crawlID)
	if err != nil {
		h.writeLookupError(c, crawlID, err)
		return
	}

	c.JSON(http.StatusOK, toStatusDTO(job))
}

// ListResults handles GET /api/v1/crawls/:crawl_id/results
// Lists item results newest first with page/limit pagination
func (h *CrawlHandler) ListResults(c *gin.Context) {
	crawlID := c.Param("crawl_id")

	h.logger.Info("ListResults called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("crawl_id", crawlID),
		slog.String("query", c.Request.URL.RawQuery),
	)

	// 1. Parse and validate pagination parameters
	var req dto.ListResultsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	page, limit, err := h.parsePagination(req)
	if err != nil {
		h.logger.Warn("Invalid pagination parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid pagination parameters",
		})
		return
	}

	// 2. Query the page
	resultPage, err := h.crawls.GetResults(c.Request.Context(), crawlID, page, limit)
	if err != nil {
		h.writeLookupError(c, crawlID, err)
		return
	}

	// 3. Build response
	results := make([]dto.CrawlResultDTO, len(resultPage.Results))
	for i := range resultPage.Results {
		results[i] = toResultDTO(&resultPage.Results[i])
	}

	c.JSON(http.StatusOK, dto.CrawlResultsResponse{
		CrawlID: resultPage.JobID,
		Results: results,
		Pagination: dto.Pagination{
			Page:       resultPage.Page,
			Limit:      resultPage.Limit,
			Total:      resultPage.Total,
			TotalPages: resultPage.TotalPages,
		},
	})
}

// parsePagination applies defaults and enforces page >= 1, 1 <= limit <= max
func (h *CrawlHandler) parsePagination(req dto.ListResultsRequest) (int, int, error) {
	page, limit := 1, h.defaultPageSize

	if req.Page != "" {
		n, err := strconv.Atoi(req.Page)
		if err != nil {
			return 0, 0, fmt.Errorf("page: %w", err)
		}
		page = n
	}
	if req.Limit != "" {
		n, err := strconv.Atoi(req.Limit)
		if err != nil {
			return 0, 0, fmt.Errorf("limit: %w", err)
		}
		limit = n
	}

	if page < 1 || limit < 1 || limit > h.maxPageSize {
		return 0, 0, fmt.Errorf("page=%d limit=%d out of range", page, limit)
	}
	return page, limit, nil
}

func (h *CrawlHandler) writeLookupError(c *gin.Context, crawlID string, err error) {
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("Crawl request with ID %s not found", crawlID),
		})
		return
	}

	h.logger.Error("Failed to get crawl",
		slog.String("crawl_id", crawlID),
		slog.String("error", err.Error()),
	)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Failed to get crawl",
	})
}

func toStatusDTO(job *domain.Job) dto.CrawlStatusDTO {
	return dto.CrawlStatusDTO{
		CrawlID:        job.ID,
		CEPStart:       job.RangeStart,
		CEPEnd:         job.RangeEnd,
		TotalCEPs:      job.TotalItems,
		ProcessedCount: job.ProcessedCount,
		SuccessCount:   job.SuccessCount,
		ErrorCount:     job.ErrorCount,
		Status:         job.Status,
		StartedAt:      formatOptionalTime(job.StartedAt),
		FinishedAt:     formatOptionalTime(job.FinishedAt),
		CreatedAt:      job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      job.UpdatedAt.Format(time.RFC3339),
	}
}

func toResultDTO(r *domain.ItemResult) dto.CrawlResultDTO {
	out := dto.CrawlResultDTO{
		CEP:       r.ItemKey,
		Success:   r.Success,
		Data:      r.PayloadJSON(),
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
	if r.ErrorMessage != nil {
		out.ErrorMessage = *r.ErrorMessage
	}
	return out
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
