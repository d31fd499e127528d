package middleware

import (
	"net/http"

	"jukwaa/internal/apperr"
	"jukwaa/internal/models"
	"jukwaa/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const ActorKey = "actor"

// Session keys written by the account service at sign-in.
const (
	SessionActorID      = "actor_id"
	SessionRole         = "role"
	SessionConstituency = "constituency"
)

// LoadActor reads the caller from the shared session cookie. Requests
// without a session continue as anonymous.
func LoadActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		id, _ := session.Get(SessionActorID).(string)
		if id == "" {
			c.Next()
			return
		}

		actor := services.Actor{ID: id, Role: models.RoleCitizen}
		if raw, ok := session.Get(SessionRole).(string); ok {
			if role, err := models.ParseRole(raw); err == nil {
				actor.Role = role
			}
		}
		actor.Constituency, _ = session.Get(SessionConstituency).(string)
		c.Set(ActorKey, actor)
		c.Next()
	}
}

// CurrentActor returns the caller, or the anonymous actor.
func CurrentActor(c *gin.Context) services.Actor {
	if v, ok := c.Get(ActorKey); ok {
		if actor, ok := v.(services.Actor); ok {
			return actor
		}
	}
	return services.Actor{}
}

// AuthRequired ensures a user is logged in
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentActor(c).Anonymous() {
			abortWithError(c, apperr.ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// ModeratorRequired lets moderators and admins through.
func ModeratorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := CurrentActor(c)
		if actor.Anonymous() {
			abortWithError(c, apperr.ErrUnauthorized)
			return
		}
		if !actor.CanModerate() {
			abortWithError(c, apperr.Forbidden("moderator role required"))
			return
		}
		c.Next()
	}
}

func abortWithError(c *gin.Context, err error) {
	e := apperr.From(err)
	status := apperr.HTTPStatus(e)
	if status == http.StatusTooManyRequests {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": e.Code, "message": e.Message}})
}
