package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/toniwang/geyago/internal/config"
	"github.com/toniwang/geyago/internal/qa"
	"github.com/toniwang/geyago/pkg/errors"
)

// Query envelope codes. Bank hits and misses share code 0 so userscript
// clients can treat "no new answer" uniformly; a freshly generated answer is
// code 1 and carries the provider id in source.
const (
	codeBank      = 0
	codeGenerated = 1
)

// respondError maps a service error to the error envelope
func respondError(c *gin.Context, err error) {
	var se *errors.ServiceError
	if e, ok := err.(*errors.ServiceError); ok {
		se = e
	} else {
		se = errors.New(errors.ErrInternalServer, "internal server error")
	}
	c.JSON(errors.HTTPStatus(err), gin.H{
		"error": gin.H{
			"code":    se.Code,
			"message": se.Message,
			"details": se.Details,
		},
	})
}

// handleQuery resolves a question: bank first, providers on a miss
func (s *Server) handleQuery(c *gin.Context) {
	title := c.Query("title")
	options := c.Query("options")
	questionType := c.Query("type")
	providerID := c.Query("provider")
	model := c.Query("model")

	resolution, err := s.resolver.Resolve(c.Request.Context(), title, options, questionType, providerID, model)
	if err != nil {
		respondError(c, err)
		return
	}

	switch resolution.Status {
	case qa.StatusCached:
		c.JSON(http.StatusOK, gin.H{
			"code":   codeBank,
			"data":   resolution.Answer,
			"msg":    "success",
			"source": resolution.Origin,
		})
	case qa.StatusGenerated:
		c.JSON(http.StatusOK, gin.H{
			"code":   codeGenerated,
			"data":   resolution.Answer,
			"msg":    "success",
			"source": resolution.Origin,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"code":   codeBank,
			"data":   nil,
			"msg":    "no answer found",
			"source": "",
		})
	}
}

type addQuestionRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Options  string `json:"options"`
	Type     string `json:"type"`
}

func (s *Server) handleAddQuestion(c *gin.Context) {
	var req addQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidation("invalid request body"))
		return
	}

	created, err := s.resolver.AddQuestion(c.Request.Context(), req.Question, req.Answer, req.Options, req.Type)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    created,
	})
}

func (s *Server) handleListQuestions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	questions, err := s.resolver.List(page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	total, err := s.resolver.Count()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    questions,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

// handleDeleteQuestion removes a stored question. Deleting an id that does
// not exist is reported as deleted:false, not an error.
func (s *Server) handleDeleteQuestion(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		respondError(c, errors.NewValidation("invalid question id"))
		return
	}

	if err := s.resolver.DeleteQuestion(c.Request.Context(), uint(id)); err != nil {
		if errors.IsNotFound(err) {
			c.JSON(http.StatusOK, gin.H{"success": true, "deleted": false})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": true})
}

func (s *Server) handleSearch(c *gin.Context) {
	keyword := c.Query("q")
	questions, err := s.resolver.Search(keyword)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    questions,
		"count":   len(questions),
	})
}

func (s *Server) handleRecent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	questions, err := s.resolver.Recent(limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    questions,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	total, err := s.resolver.Count()
	if err != nil {
		respondError(c, err)
		return
	}

	dbStatus := "ok"
	if err := s.db.Ping(); err != nil {
		dbStatus = "unreachable"
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"total_questions":  total,
			"database":         dbStatus,
			"providers":        len(s.registry.IDs()),
			"default_provider": s.registry.DefaultID(),
			"uptime_seconds":   int64(time.Since(s.started).Seconds()),
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	healthy := s.db.Ping() == nil
	status := http.StatusOK
	text := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		text = "degraded"
	}

	c.JSON(status, gin.H{
		"status":    text,
		"timestamp": time.Now().UTC(),
		"version":   s.cfg.Get().App.Version,
		"providers": len(s.registry.IDs()),
	})
}

// handleClientConfig serves the document userscript clients bootstrap from
func (s *Server) handleClientConfig(c *gin.Context) {
	appCfg := s.cfg.Get().App
	c.JSON(http.StatusOK, gin.H{
		"name":     appCfg.Name,
		"version":  appCfg.Version,
		"homepage": appCfg.Homepage,
		"endpoints": gin.H{
			"query":  "/api/query",
			"search": "/api/search",
			"recent": "/api/recent",
		},
		"providers":        s.registry.IDs(),
		"default_provider": s.registry.DefaultID(),
	})
}

func (s *Server) handleListProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    s.registry.Infos(),
		"default": s.registry.DefaultID(),
	})
}

func (s *Server) handleSetDefault(c *gin.Context) {
	id := c.Param("id")
	if err := s.registry.SetDefault(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"default": id,
	})
}

// handleProbeProvider resolves a trivial arithmetic question through one
// provider to verify credentials and connectivity end to end.
func (s *Server) handleProbeProvider(c *gin.Context) {
	id := c.Param("id")
	start := time.Now()

	result, err := s.ai.Probe(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"provider":    id,
			"found":       result.Found,
			"answer":      result.Answer,
			"duration_ms": time.Since(start).Milliseconds(),
		},
	})
}

func (s *Server) handleListModels(c *gin.Context) {
	models, err := s.registry.ModelsFor(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    models,
	})
}

type modelRequest struct {
	Model string `json:"model"`
}

func (s *Server) handleAddModel(c *gin.Context) {
	var req modelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidation("invalid request body"))
		return
	}
	if err := s.registry.AddModel(c.Param("id"), req.Model); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleRemoveModel uses a wildcard parameter because model names may
// contain slashes (vendor/model).
func (s *Server) handleRemoveModel(c *gin.Context) {
	model := strings.TrimPrefix(c.Param("model"), "/")
	if model == "" {
		respondError(c, errors.NewValidation("model name is required"))
		return
	}
	if err := s.registry.RemoveModel(c.Param("id"), model); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleGetAIConfig(c *gin.Context) {
	cfg := s.cfg.Get()

	enabled := make(map[string]bool, len(cfg.Providers))
	for id, provider := range cfg.Providers {
		enabled[id] = provider.Enabled
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"timeout":     cfg.API.Timeout,
			"max_retries": cfg.API.MaxRetries,
			"retry_delay": cfg.API.RetryDelay,
			"default_ai":  cfg.App.DefaultAI,
			"providers":   enabled,
		},
	})
}

type providerToggle struct {
	Enabled *bool `json:"enabled"`
}

type aiConfigRequest struct {
	Timeout    *int                      `json:"timeout"`
	MaxRetries *int                      `json:"max_retries"`
	RetryDelay *int                      `json:"retry_delay"`
	DefaultAI  *string                   `json:"default_ai"`
	Providers  map[string]providerToggle `json:"providers"`
}

// handleUpdateAIConfig applies partial updates to the shared provider call
// settings, persists the document and rebuilds the adapter set.
func (s *Server) handleUpdateAIConfig(c *gin.Context) {
	var req aiConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidation("invalid request body"))
		return
	}

	// The mutation runs on a config copy and is swapped in atomically; a
	// rejected update leaves the published document untouched and in-flight
	// resolutions keep the snapshot they started with.
	err := s.cfg.Update(func(cfg *config.Config) error {
		if req.Timeout != nil {
			if *req.Timeout <= 0 {
				return errors.NewValidation("timeout must be positive")
			}
			cfg.API.Timeout = *req.Timeout
		}
		if req.MaxRetries != nil {
			if *req.MaxRetries < 1 {
				return errors.NewValidation("max_retries must be at least 1")
			}
			cfg.API.MaxRetries = *req.MaxRetries
		}
		if req.RetryDelay != nil {
			if *req.RetryDelay < 0 {
				return errors.NewValidation("retry_delay must not be negative")
			}
			cfg.API.RetryDelay = *req.RetryDelay
		}
		if req.DefaultAI != nil {
			cfg.App.DefaultAI = *req.DefaultAI
		}
		for id, toggle := range req.Providers {
			provider, ok := cfg.Providers[id]
			if !ok {
				return errors.NewNotFound("provider " + id + " not found")
			}
			if toggle.Enabled != nil {
				provider.Enabled = *toggle.Enabled
			}
		}
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.registry.Reinitialize(); err != nil {
		respondError(c, errors.New(errors.ErrInternalServer, "failed to reinitialize providers"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
