package router

import (
	"log/slog"
	"net/http"

	"jukwaa/internal/handlers"
	"jukwaa/internal/middleware"
	"jukwaa/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const sessionName = "jukwaa_session"

type Services struct {
	Content    *services.ContentService
	Votes      *services.VoteLedger
	Polls      *services.PollEngine
	Reports    *services.ReportAggregator
	Moderation *services.ModerationEngine
}

type Options struct {
	SessionSecret string
	Debug         bool
	Logger        *slog.Logger
	// Limiter is applied to every mutation route; nil disables it.
	Limiter *middleware.RateLimiter
}

// New builds the engine with sessions, actor loading and every API route.
func New(svc Services, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(opts.Logger))

	// Setup Sessions
	store := cookie.NewStore([]byte(opts.SessionSecret))
	store.Options(sessions.Options{Path: "/", HttpOnly: true, Secure: !opts.Debug, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(middleware.LoadActor())

	RegisterRoutes(r, svc, opts)
	return r
}

func RegisterRoutes(r *gin.Engine, svc Services, opts Options) {
	base := handlers.Base{Logger: opts.Logger, Debug: opts.Debug}
	postHandler := handlers.NewPostHandler(base, svc.Content)
	voteHandler := handlers.NewVoteHandler(base, svc.Votes, svc.Polls)
	moderationHandler := handlers.NewModerationHandler(base, svc.Reports, svc.Moderation)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// 公共路由 (Public Routes)
	api.GET("/posts", postHandler.List)               // 帖子列表
	api.GET("/posts/:id", postHandler.Detail)         // 帖子详情 + 评论树
	api.GET("/posts/:id/poll", voteHandler.PollTally) // 投票结果
	api.GET("/votes/:kind/:id", voteHandler.Tally)    // 得分

	// 受保护路由 (Protected Routes)
	authorized := api.Group("")
	authorized.Use(middleware.AuthRequired())
	if opts.Limiter != nil {
		authorized.Use(opts.Limiter.Middleware())
	}
	{
		authorized.POST("/posts", postHandler.Create)                     // 发布帖子
		authorized.PATCH("/posts/:id", postHandler.Update)                // 编辑帖子
		authorized.DELETE("/posts/:id", postHandler.Delete)               // 删除帖子
		authorized.POST("/posts/:id/comments", postHandler.CreateComment) // 发表评论
		authorized.POST("/comments/:id/replies", postHandler.Reply)       // 回复评论
		authorized.PATCH("/comments/:id", postHandler.UpdateComment)      // 编辑评论
		authorized.DELETE("/comments/:id", postHandler.DeleteComment)     // 删除评论
		authorized.POST("/votes/:kind/:id", voteHandler.Toggle)           // 点赞/点踩（切换）
		authorized.PUT("/votes/:kind/:id", voteHandler.Set)               // 设置投票（幂等）
		authorized.POST("/posts/:id/poll/votes", voteHandler.PollVote)    // 参与投票
		authorized.POST("/reports", moderationHandler.Report)             // 举报
	}

	// 审核路由 (Moderation Routes)
	moderation := api.Group("/moderation")
	moderation.Use(middleware.ModeratorRequired())
	{
		moderation.GET("/queue", moderationHandler.Queue)                    // 待审核列表
		moderation.GET("/records/:kind/:id", moderationHandler.History)      // 审核历史
		moderation.POST("/bulk", moderationHandler.Bulk)                     // 批量处理
		moderation.POST("/users/:id/reinstate", moderationHandler.Reinstate) // 解除封禁
		moderation.POST("/:kind/:id", moderationHandler.Moderate)            // 处理单个记录
	}
}
