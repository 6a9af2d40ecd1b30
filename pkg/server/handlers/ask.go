package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/go-servicegraph/pkg/qa"
	"github.com/soundprediction/go-servicegraph/pkg/server/dto"
	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// Asker answers a question with the named strategy.
type Asker interface {
	Ask(ctx context.Context, strategy qa.Strategy, question string) *qa.Answer
}

// AskHandler serves the question page and the ask endpoint
type AskHandler struct {
	asker    Asker
	strategy qa.Strategy
	logger   *slog.Logger
}

// NewAskHandler creates a new ask handler. Requests that name no strategy
// use defaultStrategy.
func NewAskHandler(asker Asker, defaultStrategy qa.Strategy, logger *slog.Logger) *AskHandler {
	if defaultStrategy == "" {
		defaultStrategy = qa.StrategyVector
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AskHandler{asker: asker, strategy: defaultStrategy, logger: logger}
}

// Index handles GET /
func (h *AskHandler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, IndexTemplate, h.page(string(h.strategy)))
}

// Ask handles POST /ask. JSON requests get a JSON answer; form posts get the
// question page back with the answer filled in.
func (h *AskHandler) Ask(c *gin.Context) {
	asJSON := c.ContentType() == gin.MIMEJSON

	var req dto.AskRequest
	if err := c.ShouldBind(&req); err != nil {
		if asJSON {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "invalid_request",
				Message: err.Error(),
			})
			return
		}
		data := h.page(req.Strategy)
		data.Answer, data.Failed = "Please enter a question.", true
		c.HTML(http.StatusBadRequest, IndexTemplate, data)
		return
	}

	strategy := h.strategy
	if req.Strategy != "" {
		parsed, err := qa.ParseStrategy(req.Strategy)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "invalid_strategy",
				Message: err.Error(),
			})
			return
		}
		strategy = parsed
	}

	answer := h.asker.Ask(c.Request.Context(), strategy, req.Question)
	status := statusFor(answer.Err)
	if answer.Err != nil && status != http.StatusOK {
		h.logger.ErrorContext(c.Request.Context(), "question failed",
			"strategy", strategy, "error", answer.Err, "error_kind", types.KindOf(answer.Err))
	}

	if asJSON {
		c.JSON(status, toAskResponse(answer))
		return
	}
	data := h.page(string(strategy))
	data.Question = req.Question
	data.Answer = answer.Message()
	data.Cypher = answer.Cypher
	data.Context = answer.Context
	data.Failed = status != http.StatusOK
	c.HTML(status, IndexTemplate, data)
}

func (h *AskHandler) page(strategy string) pageData {
	names := make([]string, len(qa.Strategies))
	for i, s := range qa.Strategies {
		names[i] = string(s)
	}
	if strategy == "" {
		strategy = string(h.strategy)
	}
	return pageData{Strategy: strategy, Strategies: names}
}

func toAskResponse(a *qa.Answer) dto.AskResponse {
	resp := dto.AskResponse{
		Strategy: string(a.Strategy),
		Question: a.Question,
		Answer:   a.Message(),
		Cypher:   a.Cypher,
		Context:  a.Context,
		Rows:     a.Rows,
		Matches:  a.Matches,
	}
	if a.Err != nil {
		resp.Error = a.Err.Error()
		resp.ErrorKind = string(types.KindOf(a.Err))
	}
	return resp
}
