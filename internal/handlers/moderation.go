package handlers

import (
	"net/http"

	"jukwaa/internal/apperr"
	"jukwaa/internal/middleware"
	"jukwaa/internal/models"
	"jukwaa/internal/services"

	"github.com/gin-gonic/gin"
)

type ModerationHandler struct {
	Base
	reports    *services.ReportAggregator
	moderation *services.ModerationEngine
}

func NewModerationHandler(base Base, reports *services.ReportAggregator, moderation *services.ModerationEngine) *ModerationHandler {
	return &ModerationHandler{Base: base, reports: reports, moderation: moderation}
}

// Report 举报帖子、评论或用户
func (h *ModerationHandler) Report(c *gin.Context) {
	var in services.FileReportInput
	if !h.bind(c, &in) {
		return
	}
	record, err := h.reports.FileReport(c.Request.Context(), middleware.CurrentActor(c), in)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

// Queue 待审核列表
func (h *ModerationHandler) Queue(c *gin.Context) {
	var in services.QueueInput
	if err := c.ShouldBindQuery(&in); err != nil {
		h.Fail(c, apperr.Validation("invalid query: %s", err.Error()))
		return
	}
	records, err := h.moderation.ListQueue(c.Request.Context(), middleware.CurrentActor(c), in)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *ModerationHandler) History(c *gin.Context) {
	kind, err := parseKind(c)
	if err != nil {
		h.Fail(c, err)
		return
	}
	records, err := h.moderation.History(c.Request.Context(), middleware.CurrentActor(c), services.Target{Kind: kind, ID: c.Param("id")})
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

type moderateRequest struct {
	Action string `json:"action"`
	Notes  string `json:"notes"`
}

// Moderate 处理单个举报记录：approve / reject / ban
func (h *ModerationHandler) Moderate(c *gin.Context) {
	kind, err := parseKind(c)
	if err != nil {
		h.Fail(c, err)
		return
	}
	var req moderateRequest
	if !h.bind(c, &req) {
		return
	}
	action, err := models.ParseModerationAction(req.Action)
	if err != nil {
		h.Fail(c, err)
		return
	}
	record, err := h.moderation.Moderate(c.Request.Context(), middleware.CurrentActor(c), services.Target{Kind: kind, ID: c.Param("id")}, action, req.Notes)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

type bulkTarget struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type bulkRequest struct {
	Targets []bulkTarget `json:"targets"`
	Action  string       `json:"action"`
	Notes   string       `json:"notes"`
}

// Bulk applies one action to many targets. Per-target failures are reported
// in the results, so the response is 200 even when some items fail.
func (h *ModerationHandler) Bulk(c *gin.Context) {
	var req bulkRequest
	if !h.bind(c, &req) {
		return
	}
	if len(req.Targets) == 0 {
		h.Fail(c, apperr.Validation("targets must not be empty"))
		return
	}
	action, err := models.ParseModerationAction(req.Action)
	if err != nil {
		h.Fail(c, err)
		return
	}
	targets := make([]services.Target, len(req.Targets))
	for i, t := range req.Targets {
		kind, err := models.ParseContentKind(t.Kind)
		if err != nil {
			h.Fail(c, apperr.Validation("targets[%d]: %s", i, apperr.From(err).Message))
			return
		}
		targets[i] = services.Target{Kind: kind, ID: t.ID}
	}
	outcomes, err := h.moderation.ModerateMany(c.Request.Context(), middleware.CurrentActor(c), targets, action, req.Notes)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": outcomes})
}

// Reinstate 解除用户封禁（仅管理员）
func (h *ModerationHandler) Reinstate(c *gin.Context) {
	if err := h.moderation.ReinstateUser(c.Request.Context(), middleware.CurrentActor(c), c.Param("id")); err != nil {
		h.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
