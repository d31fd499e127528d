package handlers

import (
	"net/http"
	"time"

	"jukwaa/internal/apperr"
	"jukwaa/internal/middleware"
	"jukwaa/internal/services"

	"github.com/gin-gonic/gin"
)

type PostHandler struct {
	Base
	content *services.ContentService
}

func NewPostHandler(base Base, content *services.ContentService) *PostHandler {
	return &PostHandler{Base: base, content: content}
}

// Create 发布帖子
func (h *PostHandler) Create(c *gin.Context) {
	var in services.CreatePostInput
	if !h.bind(c, &in) {
		return
	}
	actor := middleware.CurrentActor(c)
	post, err := h.content.CreatePost(c.Request.Context(), actor, in)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newPostView(post, actor.ID, time.Now()))
}

// List 帖子列表，支持 new/hot 排序和分类、标签、地区筛选
func (h *PostHandler) List(c *gin.Context) {
	var in services.ListPostsInput
	if err := c.ShouldBindQuery(&in); err != nil {
		h.Fail(c, apperr.Validation("invalid query: %s", err.Error()))
		return
	}
	actor := middleware.CurrentActor(c)
	posts, err := h.content.ListPosts(c.Request.Context(), actor, in)
	if err != nil {
		h.Fail(c, err)
		return
	}
	now := time.Now()
	views := make([]postView, len(posts))
	for i, p := range posts {
		views[i] = newPostView(p, actor.ID, now)
	}
	c.JSON(http.StatusOK, gin.H{"posts": views})
}

// Detail 帖子详情，包含评论树
func (h *PostHandler) Detail(c *gin.Context) {
	tree, err := h.content.GetContentTree(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"))
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

func (h *PostHandler) Update(c *gin.Context) {
	var in services.EditPostInput
	if !h.bind(c, &in) {
		return
	}
	actor := middleware.CurrentActor(c)
	post, err := h.content.EditPost(c.Request.Context(), actor, c.Param("id"), in)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newPostView(post, actor.ID, time.Now()))
}

func (h *PostHandler) Delete(c *gin.Context) {
	if err := h.content.DeletePost(c.Request.Context(), middleware.CurrentActor(c), c.Param("id")); err != nil {
		h.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateComment 发表评论，parent_id 为空时为一级评论
func (h *PostHandler) CreateComment(c *gin.Context) {
	var in services.CommentInput
	if !h.bind(c, &in) {
		return
	}
	comment, err := h.content.CreateComment(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"), in)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

type replyRequest struct {
	Body string `json:"body"`
}

func (h *PostHandler) Reply(c *gin.Context) {
	var req replyRequest
	if !h.bind(c, &req) {
		return
	}
	comment, err := h.content.AppendChild(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"), req.Body)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *PostHandler) UpdateComment(c *gin.Context) {
	var req replyRequest
	if !h.bind(c, &req) {
		return
	}
	comment, err := h.content.EditComment(c.Request.Context(), middleware.CurrentActor(c), c.Param("id"), req.Body)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

// DeleteComment 删除评论，子评论保留
func (h *PostHandler) DeleteComment(c *gin.Context) {
	if err := h.content.DeleteComment(c.Request.Context(), middleware.CurrentActor(c), c.Param("id")); err != nil {
		h.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
