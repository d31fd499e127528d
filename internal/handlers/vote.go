package handlers

import (
	"net/http"

	"jukwaa/internal/apperr"
	"jukwaa/internal/middleware"
	"jukwaa/internal/models"
	"jukwaa/internal/services"

	"github.com/gin-gonic/gin"
)

type VoteHandler struct {
	Base
	votes *services.VoteLedger
	polls *services.PollEngine
}

func NewVoteHandler(base Base, votes *services.VoteLedger, polls *services.PollEngine) *VoteHandler {
	return &VoteHandler{Base: base, votes: votes, polls: polls}
}

type voteRequest struct {
	Direction *string `json:"direction"`
}

// Toggle 点赞/点踩：同方向再次投票即取消，反方向则切换
func (h *VoteHandler) Toggle(c *gin.Context) {
	kind, err := parseKind(c)
	if err != nil {
		h.Fail(c, err)
		return
	}
	var req voteRequest
	if !h.bind(c, &req) {
		return
	}
	if req.Direction == nil {
		h.Fail(c, apperr.Validation("direction is required"))
		return
	}
	dir, err := models.ParseDirection(*req.Direction)
	if err != nil {
		h.Fail(c, err)
		return
	}
	tally, err := h.votes.ToggleVote(c.Request.Context(), middleware.CurrentActor(c), kind, c.Param("id"), dir)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tally)
}

// Set makes the caller's vote equal direction; null clears it.
func (h *VoteHandler) Set(c *gin.Context) {
	kind, err := parseKind(c)
	if err != nil {
		h.Fail(c, err)
		return
	}
	var req voteRequest
	if !h.bind(c, &req) {
		return
	}
	var dir *models.Direction
	if req.Direction != nil {
		d, err := models.ParseDirection(*req.Direction)
		if err != nil {
			h.Fail(c, err)
			return
		}
		dir = &d
	}
	tally, err := h.votes.SetVote(c.Request.Context(), middleware.CurrentActor(c), kind, c.Param("id"), dir)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tally)
}

// Tally 查看得分，登录用户附带自己的投票方向
func (h *VoteHandler) Tally(c *gin.Context) {
	kind, err := parseKind(c)
	if err != nil {
		h.Fail(c, err)
		return
	}
	tally, err := h.votes.GetTally(c.Request.Context(), middleware.CurrentActor(c), kind, c.Param("id"))
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tally)
}

type pollVoteRequest struct {
	OptionIndex *int `json:"option_index"`
}

func (h *VoteHandler) PollVote(c *gin.Context) {
	var req pollVoteRequest
	if !h.bind(c, &req) {
		return
	}
	if req.OptionIndex == nil {
		h.Fail(c, apperr.Validation("option_index is required"))
		return
	}
	tally, err := h.polls.VoteOnPoll(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"), *req.OptionIndex)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tally)
}

func (h *VoteHandler) PollTally(c *gin.Context) {
	tally, err := h.polls.Tally(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"))
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tally)
}
