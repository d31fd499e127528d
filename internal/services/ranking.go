package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"jukwaa/internal/metrics"
	"jukwaa/internal/models"
	"jukwaa/internal/store"
	"jukwaa/internal/utils"
)

const (
	rankingBatchSize     = 50
	rankingFlushInterval = 500 * time.Millisecond
)

// RankingService 异步计算并更新帖子热度分
type RankingService struct {
	store   store.Store
	clock   func() time.Time
	logger  *slog.Logger
	queue   chan string // 待更新的帖子 ID 队列
	pending map[string]bool
	mu      sync.Mutex
	done    chan struct{}
}

func NewRankingService(st store.Store, queueSize int, logger *slog.Logger) *RankingService {
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &RankingService{
		store:   st,
		clock:   time.Now,
		logger:  ResolveLogger(logger),
		queue:   make(chan string, queueSize),
		pending: make(map[string]bool),
		done:    make(chan struct{}),
	}
}

// Start runs the batching worker until ctx is cancelled.
func (s *RankingService) Start(ctx context.Context) {
	go s.worker(ctx)
}

// Done is closed once the worker has flushed and exited.
func (s *RankingService) Done() <-chan struct{} {
	return s.done
}

// ScheduleUpdate 将帖子加入更新队列（异步）
// 使用去重机制避免短时间内重复计算同一帖子
func (s *RankingService) ScheduleUpdate(postID string) {
	if postID == "" {
		return
	}
	s.mu.Lock()
	if s.pending[postID] {
		// 已在队列中，跳过
		s.mu.Unlock()
		return
	}
	s.pending[postID] = true
	s.mu.Unlock()

	// 非阻塞发送到队列
	select {
	case s.queue <- postID:
	default:
		// 队列满了，移除 pending 标记
		s.mu.Lock()
		delete(s.pending, postID)
		s.mu.Unlock()
		metrics.RankingQueueDroppedTotal.Inc()
		s.logger.Warn("ranking queue full, skipping post",
			"event", "ranking_queue_full",
			"module", "services/ranking",
			"post_id", postID,
		)
	}
}

// worker 后台处理队列中的更新请求
func (s *RankingService) worker(ctx context.Context) {
	defer close(s.done)
	batch := make([]string, 0, rankingBatchSize)
	ticker := time.NewTicker(rankingFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case postID := <-s.queue:
			batch = append(batch, postID)
			if len(batch) >= rankingBatchSize {
				s.processBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.processBatch(batch)
				batch = batch[:0]
			}
		case <-ctx.Done():
			// 退出前处理完已入队的请求
			for drained := false; !drained; {
				select {
				case postID := <-s.queue:
					batch = append(batch, postID)
				default:
					drained = true
				}
			}
			if len(batch) > 0 {
				s.processBatch(batch)
			}
			return
		}
	}
}

// processBatch 批量处理帖子热度更新
func (s *RankingService) processBatch(postIDs []string) {
	for _, postID := range postIDs {
		// 先清除 pending，计算期间的新互动会再次入队
		s.mu.Lock()
		delete(s.pending, postID)
		s.mu.Unlock()

		s.UpdatePostScore(context.Background(), postID)
	}
}

// UpdatePostScore 同步计算并更新单个帖子的热度分
func (s *RankingService) UpdatePostScore(ctx context.Context, postID string) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		s.logger.Warn("hot score update skipped",
			"event", "ranking_post_missing",
			"module", "services/ranking",
			"post_id", postID,
			"error", err.Error(),
		)
		return
	}

	up, down, err := s.store.CountVotes(ctx, models.KindPost, postID)
	if err != nil {
		s.fail(postID, err)
		return
	}
	comments, err := s.store.CountComments(ctx, postID)
	if err != nil {
		s.fail(postID, err)
		return
	}
	pollVotes := 0
	if post.Poll != nil {
		for _, o := range post.Poll.Options {
			pollVotes += len(o.Voters)
		}
	}

	score := utils.CalculateScore(post.CreatedAt, s.clock(), utils.Interactions{
		Upvotes:   up,
		Downvotes: down,
		Comments:  comments,
		PollVotes: pollVotes,
	})
	if err := s.store.SetHotScore(ctx, postID, score); err != nil {
		s.fail(postID, err)
	}
}

func (s *RankingService) fail(postID string, err error) {
	s.logger.Error("hot score update failed",
		"event", "ranking_update_failed",
		"module", "services/ranking",
		"post_id", postID,
		"error", err.Error(),
	)
}

// StartPeriodicRefresh 定时重算最新帖子的热度，让时间衰减在没有新互动时也生效
func (s *RankingService) StartPeriodicRefresh(ctx context.Context, every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.refreshRecent(ctx)
			}
		}
	}()
}

func (s *RankingService) refreshRecent(ctx context.Context) {
	posts, err := s.store.ListPosts(ctx, store.PostFilter{Sort: store.SortNew, Limit: 100, ViewerModerator: true})
	if err != nil {
		s.fail("", err)
		return
	}
	for _, p := range posts {
		s.UpdatePostScore(ctx, p.ID)
	}
	s.logger.Info("hot scores refreshed",
		"event", "ranking_refresh_done",
		"module", "services/ranking",
		"posts", len(posts),
	)
}
