package controller

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"codejudge/internal/common/http/middleware"
	"codejudge/internal/judge/repository"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/response"
)

// QueueState exposes the dispatcher's load.
type QueueState interface {
	Busy() bool
	Pending() int
}

// JudgeController serves the read API over submissions.
type JudgeController struct {
	repo      repository.SubmissionRepository
	queue     QueueState
	languages []string
}

// NewJudgeController creates a new controller.
func NewJudgeController(repo repository.SubmissionRepository, queue QueueState, languages []string) *JudgeController {
	return &JudgeController{repo: repo, queue: queue, languages: languages}
}

// Register mounts the API routes. auth guards the per-user endpoints.
func (h *JudgeController) Register(r gin.IRouter, auth gin.HandlerFunc) {
	api := r.Group("/api/v1/judge")
	api.GET("/languages", h.ListLanguages)
	api.GET("/queue", h.GetQueue)
	api.GET("/submissions", auth, h.ListSubmissions)
	api.GET("/submissions/:id", auth, h.GetSubmission)
}

// ListSubmissions returns the caller's submissions, newest first.
func (h *JudgeController) ListSubmissions(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.BadRequest(c, "Invalid limit")
			return
		}
		limit = n
	}
	items, err := h.repo.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, items)
}

// GetSubmission returns one of the caller's submissions with its test cases.
func (h *JudgeController) GetSubmission(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	detail, err := h.repo.GetDetail(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	// Other users' submissions are reported as missing.
	if detail.UserID != userID {
		response.Error(c, appErr.New(appErr.SubmissionNotFound))
		return
	}
	response.Success(c, detail)
}

// ListLanguages returns the supported language keys.
func (h *JudgeController) ListLanguages(c *gin.Context) {
	response.Success(c, gin.H{"languages": h.languages})
}

// GetQueue reports whether a job is running and how many are waiting.
func (h *JudgeController) GetQueue(c *gin.Context) {
	if h.queue == nil {
		response.Error(c, appErr.New(appErr.ServiceUnavailable))
		return
	}
	response.Success(c, gin.H{"busy": h.queue.Busy(), "pending": h.queue.Pending()})
}
