package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"jukwaa/internal/apperr"
	"jukwaa/internal/models"
	"jukwaa/internal/services"

	"github.com/gin-gonic/gin"
)

// Base carries what every handler needs to answer errors.
type Base struct {
	Logger *slog.Logger
	// Debug adds the wrapped cause of internal errors to responses.
	Debug bool
}

// Fail writes the JSON error envelope for err.
func (b Base) Fail(c *gin.Context, err error) {
	e := apperr.From(err)
	status := apperr.HTTPStatus(e)
	body := gin.H{"code": e.Code, "message": e.Message}
	if status >= http.StatusInternalServerError {
		services.ResolveLogger(b.Logger).Error("request failed",
			"event", "http_internal_error",
			"module", "handlers",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err.Error(),
		)
		if b.Debug && e.Err != nil {
			body["detail"] = e.Err.Error()
		}
	}
	c.JSON(status, gin.H{"error": body})
}

// bind decodes a JSON body, reporting malformed input as a validation error.
func (b Base) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		b.Fail(c, apperr.Validation("malformed request body: %s", err.Error()))
		return false
	}
	return true
}

// postView swaps the raw poll (with voter lists) for its public tally.
type postView struct {
	*models.Post
	Poll *services.PollTally `json:"poll,omitempty"`
}

func newPostView(p *models.Post, viewerID string, now time.Time) postView {
	v := postView{Post: p}
	if p.Poll != nil {
		v.Poll = services.TallyPoll(p.Poll, now, viewerID)
		v.Poll.PostID = p.ID
	}
	return v
}

func parseKind(c *gin.Context) (models.ContentKind, error) {
	return models.ParseContentKind(c.Param("kind"))
}
