package services

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"jukwaa/internal/apperr"
	"jukwaa/internal/config"
	"jukwaa/internal/metrics"
	"jukwaa/internal/models"
	"jukwaa/internal/store"
	"jukwaa/internal/utils"

	"github.com/google/uuid"
)

type CreatePostInput struct {
	Title      string           `json:"title" validate:"min=5,max=200"`
	Body       string           `json:"body" validate:"min=1,max=10000"`
	Category   string           `json:"category" validate:"required"`
	Tags       []string         `json:"tags" validate:"max=5,dive,min=2,max=30"`
	Location   *models.Location `json:"location"`
	Visibility string           `json:"visibility"`
	Poll       *PollInput       `json:"poll"`
	MediaURLs  []string         `json:"media_urls" validate:"max=10,dive,required,max=2048"`
}

type PollInput struct {
	Question           string    `json:"question" validate:"min=5,max=200"`
	Options            []string  `json:"options" validate:"min=2,max=10,dive,min=1,max=100"`
	EndsAt             time.Time `json:"ends_at" validate:"required"`
	AllowMultipleVotes bool      `json:"allow_multiple_votes"`
}

// EditPostInput changes title and/or body; nil fields keep their value.
type EditPostInput struct {
	Title *string `json:"title" validate:"omitempty,min=5,max=200"`
	Body  *string `json:"body" validate:"omitempty,min=1,max=10000"`
}

type CommentInput struct {
	ParentID *string `json:"parent_id"`
	Body     string  `json:"body" validate:"min=1,max=1000"`
}

type ListPostsInput struct {
	Sort         string `form:"sort"`
	Category     string `form:"category"`
	Tag          string `form:"tag"`
	County       string `form:"county"`
	Constituency string `form:"constituency"`
	Ward         string `form:"ward"`
	Limit        int    `form:"limit"`
	Offset       int    `form:"offset"`
}

type ContentConfig struct {
	MaxDepth    int
	DepthPolicy config.DepthPolicy
}

// ContentService owns posts and comments and rebuilds the comment tree on read.
type ContentService struct {
	deps Deps
	cfg  ContentConfig
}

func NewContentService(deps Deps, cfg ContentConfig) *ContentService {
	if cfg.MaxDepth < 1 {
		cfg.MaxDepth = 5
	}
	if cfg.DepthPolicy == "" {
		cfg.DepthPolicy = config.DepthPolicyReject
	}
	return &ContentService{deps: deps.resolve(), cfg: cfg}
}

func (s *ContentService) CreatePost(ctx context.Context, actor Actor, in CreatePostInput) (*models.Post, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	in.normalize()
	if err := validateInput(in); err != nil {
		return nil, err
	}
	category, err := models.ParseCategory(in.Category)
	if err != nil {
		return nil, err
	}
	visibility, err := models.ParseVisibility(in.Visibility)
	if err != nil {
		return nil, err
	}
	var location models.Location
	if in.Location != nil {
		location = *in.Location
	}
	if visibility == models.VisibilityConstituency && location.Constituency == "" {
		return nil, apperr.Validation("constituency visibility needs a location constituency")
	}

	now := s.deps.Clock()
	post := &models.Post{
		ID:         newID(),
		AuthorID:   actor.ID,
		Title:      in.Title,
		Body:       in.Body,
		Category:   category,
		Tags:       in.Tags,
		Location:   location,
		Visibility: visibility,
		MediaURLs:  in.MediaURLs,
		Status:     models.ContentStatusNone,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if in.Poll != nil {
		if !in.Poll.EndsAt.After(now) {
			return nil, apperr.Validation("poll end time must be in the future")
		}
		post.Poll = &models.Poll{
			Question:           in.Poll.Question,
			EndsAt:             in.Poll.EndsAt,
			AllowMultipleVotes: in.Poll.AllowMultipleVotes,
		}
		for _, text := range in.Poll.Options {
			post.Poll.Options = append(post.Poll.Options, models.PollOption{Text: text, Voters: []string{}})
		}
	}

	err = s.deps.Store.Atomic(ctx, store.Key(models.KindPost, post.ID), func(tx store.Store) error {
		return tx.CreatePost(ctx, post)
	})
	if err != nil {
		return nil, s.internal("content_create_post_failed", err, "author_id", actor.ID)
	}

	metrics.ContentCreatedTotal.WithLabelValues(string(models.KindPost)).Inc()
	s.deps.Events.Publish(Event{
		Type:        EventPostCreated,
		ContentKind: models.KindPost,
		ContentID:   post.ID,
		ActorID:     actor.ID,
		Metadata:    map[string]any{"category": string(post.Category), "visibility": string(post.Visibility), "has_poll": post.Poll != nil},
	})
	s.deps.Ranking.ScheduleUpdate(post.ID)
	return post, nil
}

func (in *CreatePostInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Body = strings.TrimSpace(in.Body)
	in.Tags = normalizeTags(in.Tags)
	for i, u := range in.MediaURLs {
		in.MediaURLs[i] = strings.TrimSpace(u)
	}
	if in.Location != nil {
		in.Location.County = strings.TrimSpace(in.Location.County)
		in.Location.Constituency = strings.TrimSpace(in.Location.Constituency)
		in.Location.Ward = strings.TrimSpace(in.Location.Ward)
	}
	if in.Poll != nil {
		in.Poll.Question = strings.TrimSpace(in.Poll.Question)
		for i, o := range in.Poll.Options {
			in.Poll.Options[i] = strings.TrimSpace(o)
		}
	}
}

// normalizeTags lower-cases, trims and de-duplicates, keeping first-seen order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// GetPost returns a single visible post with its counters filled in.
func (s *ContentService) GetPost(ctx context.Context, viewer Actor, id string) (*models.Post, error) {
	post, err := s.loadVisiblePost(ctx, s.deps.Store, viewer, id)
	if err != nil {
		return nil, err
	}
	if err := s.fillCounters(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *ContentService) ListPosts(ctx context.Context, viewer Actor, in ListPostsInput) ([]*models.Post, error) {
	filter := viewer.filter()
	switch strings.ToLower(in.Sort) {
	case "", string(store.SortNew):
		filter.Sort = store.SortNew
	case string(store.SortHot):
		filter.Sort = store.SortHot
	default:
		return nil, apperr.Validation("sort must be new or hot")
	}
	if in.Category != "" {
		category, err := models.ParseCategory(in.Category)
		if err != nil {
			return nil, err
		}
		filter.Category = category
	}
	filter.Tag = strings.ToLower(strings.TrimSpace(in.Tag))
	filter.County = strings.TrimSpace(in.County)
	filter.Constituency = strings.TrimSpace(in.Constituency)
	filter.Ward = strings.TrimSpace(in.Ward)
	filter.Limit = in.Limit
	filter.Offset = in.Offset

	posts, err := s.deps.Store.ListPosts(ctx, filter)
	if err != nil {
		return nil, s.internal("content_list_posts_failed", err)
	}
	for _, p := range posts {
		if err := s.fillCounters(ctx, p); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

func (s *ContentService) EditPost(ctx context.Context, actor Actor, id string, in EditPostInput) (*models.Post, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		in.Title = &t
	}
	if in.Body != nil {
		b := strings.TrimSpace(*in.Body)
		in.Body = &b
	}
	if in.Title == nil && in.Body == nil {
		return nil, apperr.Validation("nothing to edit")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var edited *models.Post
	err := s.deps.Store.Atomic(ctx, store.Key(models.KindPost, id), func(tx store.Store) error {
		post, err := tx.GetPost(ctx, id)
		if err != nil {
			return notFound(err, "post")
		}
		if post.Deleted {
			return apperr.NotFound("post")
		}
		if post.AuthorID != actor.ID {
			return apperr.Forbidden("only the author can edit this post")
		}
		now := s.deps.Clock()
		post.EditHistory = append(post.EditHistory, models.Revision{Title: post.Title, Body: post.Body, EditedAt: now})
		if in.Title != nil {
			post.Title = *in.Title
		}
		if in.Body != nil {
			post.Body = *in.Body
		}
		post.EditedAt = &now
		if err := tx.UpdatePost(ctx, post); err != nil {
			return err
		}
		edited = post
		return nil
	})
	if err != nil {
		return nil, s.internal("content_edit_post_failed", err, "post_id", id)
	}

	s.deps.Cache.Invalidate(id)
	s.deps.Events.Publish(Event{
		Type:        EventPostEdited,
		ContentKind: models.KindPost,
		ContentID:   id,
		ActorID:     actor.ID,
		Metadata:    map[string]any{"revision": len(edited.EditHistory)},
	})
	return edited, nil
}

// DeletePost tombstones the post. Deleting an already deleted post succeeds.
func (s *ContentService) DeletePost(ctx context.Context, actor Actor, id string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	changed := false
	var authorID string
	err := s.deps.Store.Atomic(ctx, store.Key(models.KindPost, id), func(tx store.Store) error {
		post, err := tx.GetPost(ctx, id)
		if err != nil {
			return notFound(err, "post")
		}
		if post.AuthorID != actor.ID && !actor.CanModerate() {
			return apperr.Forbidden("only the author or a moderator can delete this post")
		}
		if post.Deleted {
			return nil
		}
		post.Deleted = true
		post.DeletedBy = actor.ID
		authorID = post.AuthorID
		changed = true
		return tx.UpdatePost(ctx, post)
	})
	if err != nil {
		return s.internal("content_delete_post_failed", err, "post_id", id)
	}
	if changed {
		s.deps.Cache.Invalidate(id)
		s.deps.Events.Publish(Event{
			Type:        EventPostDeleted,
			ContentKind: models.KindPost,
			ContentID:   id,
			ActorID:     actor.ID,
			Metadata:    map[string]any{"target_author_id": authorID, "by_moderator": authorID != actor.ID},
		})
	}
	return nil
}

// CreateComment adds a comment to a post, optionally under a parent comment.
// Replies that would nest deeper than MaxDepth fail with DepthExceeded, or
// under the reparent policy attach to the deepest ancestor that still fits.
func (s *ContentService) CreateComment(ctx context.Context, actor Actor, postID string, in CommentInput) (*models.Comment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	in.Body = strings.TrimSpace(in.Body)
	if in.ParentID != nil {
		p := strings.TrimSpace(*in.ParentID)
		if p == "" {
			in.ParentID = nil
		} else {
			in.ParentID = &p
		}
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var (
		comment    *models.Comment
		meta       = map[string]any{}
		requested  = in.ParentID
		postAuthor string
	)
	err := s.deps.Store.Atomic(ctx, store.Key(models.KindPost, postID), func(tx store.Store) error {
		post, err := s.loadVisiblePost(ctx, tx, actor, postID)
		if err != nil {
			return err
		}
		if post.Status == models.ContentStatusRejected {
			return apperr.NotFound("post")
		}
		postAuthor = post.AuthorID

		parentID, err := s.resolveParent(ctx, tx, postID, requested, meta)
		if err != nil {
			return err
		}

		now := s.deps.Clock()
		comment = &models.Comment{
			ID:        newID(),
			PostID:    postID,
			ParentID:  parentID,
			AuthorID:  actor.ID,
			Body:      in.Body,
			Status:    models.ContentStatusNone,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.CreateComment(ctx, comment)
	})
	if err != nil {
		return nil, s.internal("content_create_comment_failed", err, "post_id", postID)
	}

	meta["post_id"] = postID
	meta["post_author_id"] = postAuthor
	metrics.ContentCreatedTotal.WithLabelValues(string(models.KindComment)).Inc()
	s.deps.Cache.Invalidate(postID)
	s.deps.Events.Publish(Event{
		Type:        EventCommentCreated,
		ContentKind: models.KindComment,
		ContentID:   comment.ID,
		ActorID:     actor.ID,
		Metadata:    meta,
	})
	s.deps.Ranking.ScheduleUpdate(postID)
	return comment, nil
}

// resolveParent checks the requested parent and applies the depth policy.
func (s *ContentService) resolveParent(ctx context.Context, tx store.Store, postID string, requested *string, meta map[string]any) (*string, error) {
	if requested == nil {
		return nil, nil
	}
	comments, err := tx.ListComments(ctx, postID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Comment, len(comments))
	for _, c := range comments {
		byID[c.ID] = c
	}

	parent, ok := byID[*requested]
	if !ok {
		// distinguish a parent on another post from one that does not exist
		if _, err := tx.GetComment(ctx, *requested); err == nil {
			return nil, apperr.Validation("parent comment belongs to a different post")
		}
		return nil, apperr.NotFound("parent comment")
	}
	if parent.Removed() {
		return nil, apperr.NotFound("parent comment")
	}
	meta["parent_author_id"] = parent.AuthorID

	depth := depthOf(byID, parent)
	if depth+1 <= s.cfg.MaxDepth {
		return &parent.ID, nil
	}
	if s.cfg.DepthPolicy != config.DepthPolicyReparent {
		return nil, apperr.DepthExceeded(s.cfg.MaxDepth)
	}

	// 挂到最深的、仍在限制内的祖先下
	anchor := parent
	for depth+1 > s.cfg.MaxDepth && anchor.ParentID != nil {
		next, ok := byID[*anchor.ParentID]
		if !ok {
			break
		}
		anchor = next
		depth--
	}
	meta["reparented_from"] = parent.ID
	if depth+1 > s.cfg.MaxDepth {
		return nil, nil
	}
	return &anchor.ID, nil
}

// AppendChild replies to an existing comment.
func (s *ContentService) AppendChild(ctx context.Context, actor Actor, parentCommentID string, body string) (*models.Comment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	parent, err := s.deps.Store.GetComment(ctx, parentCommentID)
	if err != nil {
		return nil, s.internal("content_append_child_failed", notFound(err, "comment"), "comment_id", parentCommentID)
	}
	return s.CreateComment(ctx, actor, parent.PostID, CommentInput{ParentID: &parent.ID, Body: body})
}

func (s *ContentService) EditComment(ctx context.Context, actor Actor, id string, body string) (*models.Comment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	in := CommentInput{Body: strings.TrimSpace(body)}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var edited *models.Comment
	err := s.deps.Store.Atomic(ctx, store.Key(models.KindComment, id), func(tx store.Store) error {
		c, err := tx.GetComment(ctx, id)
		if err != nil {
			return notFound(err, "comment")
		}
		if c.Removed() {
			return apperr.NotFound("comment")
		}
		if c.AuthorID != actor.ID {
			return apperr.Forbidden("only the author can edit this comment")
		}
		now := s.deps.Clock()
		c.EditHistory = append(c.EditHistory, models.Revision{Body: c.Body, EditedAt: now})
		c.Body = in.Body
		c.EditedAt = &now
		if err := tx.UpdateComment(ctx, c); err != nil {
			return err
		}
		edited = c
		return nil
	})
	if err != nil {
		return nil, s.internal("content_edit_comment_failed", err, "comment_id", id)
	}

	s.deps.Cache.Invalidate(edited.PostID)
	s.deps.Events.Publish(Event{
		Type:        EventCommentEdited,
		ContentKind: models.KindComment,
		ContentID:   id,
		ActorID:     actor.ID,
		Metadata:    map[string]any{"post_id": edited.PostID, "revision": len(edited.EditHistory)},
	})
	return edited, nil
}

// DeleteComment tombstones one comment. Its replies stay in the tree.
func (s *ContentService) DeleteComment(ctx context.Context, actor Actor, id string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	var (
		postID   string
		authorID string
		changed  bool
	)
	err := s.deps.Store.Atomic(ctx, store.Key(models.KindComment, id), func(tx store.Store) error {
		c, err := tx.GetComment(ctx, id)
		if err != nil {
			return notFound(err, "comment")
		}
		if c.AuthorID != actor.ID && !actor.CanModerate() {
			return apperr.Forbidden("only the author or a moderator can delete this comment")
		}
		postID, authorID = c.PostID, c.AuthorID
		if c.Deleted {
			return nil
		}
		c.Deleted = true
		c.DeletedBy = actor.ID
		changed = true
		return tx.UpdateComment(ctx, c)
	})
	if err != nil {
		return s.internal("content_delete_comment_failed", err, "comment_id", id)
	}
	if changed {
		s.deps.Cache.Invalidate(postID)
		s.deps.Events.Publish(Event{
			Type:        EventCommentDeleted,
			ContentKind: models.KindComment,
			ContentID:   id,
			ActorID:     actor.ID,
			Metadata:    map[string]any{"post_id": postID, "target_author_id": authorID, "by_moderator": authorID != actor.ID},
		})
		s.deps.Ranking.ScheduleUpdate(postID)
	}
	return nil
}

// GetContentTree returns the post and its comments nested by parent, bodies
// rendered to sanitized HTML. Removed comments keep their place in the tree.
func (s *ContentService) GetContentTree(ctx context.Context, viewer Actor, postID string) (*ContentTree, error) {
	if tree, ok := s.deps.Cache.Get(postID); ok {
		if !s.canRead(viewer, tree.Post) {
			return nil, apperr.NotFound("post")
		}
		return tree, nil
	}
	gen := s.deps.Cache.Generation(postID)

	post, err := s.loadVisiblePost(ctx, s.deps.Store, viewer, postID)
	if err != nil {
		return nil, err
	}
	if err := s.fillCounters(ctx, post); err != nil {
		return nil, err
	}
	comments, err := s.deps.Store.ListComments(ctx, postID)
	if err != nil {
		return nil, s.internal("content_list_comments_failed", err, "post_id", postID)
	}

	var tallyErr error
	tally := func(id string) (int, int) {
		up, down, err := s.deps.Store.CountVotes(ctx, models.KindComment, id)
		if err != nil && tallyErr == nil {
			tallyErr = err
		}
		return up, down
	}
	tree := &ContentTree{
		Post:     post,
		BodyHTML: utils.RenderPost(post.Body),
		Comments: buildCommentTree(comments, tally),
	}
	if tallyErr != nil {
		return nil, s.internal("content_comment_tally_failed", tallyErr, "post_id", postID)
	}
	if post.Poll != nil {
		tree.Poll = TallyPoll(post.Poll, s.deps.Clock(), "")
		tree.Poll.PostID = post.ID
		// voter lists stay server-side
		post.Poll = nil
	}
	s.deps.Cache.Set(postID, gen, tree)
	return tree, nil
}

// loadVisiblePost hides deleted posts from everyone and rejected posts from
// everyone but their author and moderators.
func (s *ContentService) loadVisiblePost(ctx context.Context, st store.Store, viewer Actor, id string) (*models.Post, error) {
	post, err := st.GetPost(ctx, id)
	if err != nil {
		return nil, s.internal("content_get_post_failed", notFound(err, "post"), "post_id", id)
	}
	if !s.canRead(viewer, post) {
		return nil, apperr.NotFound("post")
	}
	return post, nil
}

func (s *ContentService) canRead(viewer Actor, post *models.Post) bool {
	if post.Deleted {
		return false
	}
	if post.Status == models.ContentStatusRejected && post.AuthorID != viewer.ID && !viewer.CanModerate() {
		return false
	}
	return viewer.filter().Visible(post)
}

func (s *ContentService) fillCounters(ctx context.Context, post *models.Post) error {
	up, down, err := s.deps.Store.CountVotes(ctx, models.KindPost, post.ID)
	if err != nil {
		return s.internal("content_count_votes_failed", err, "post_id", post.ID)
	}
	n, err := s.deps.Store.CountComments(ctx, post.ID)
	if err != nil {
		return s.internal("content_count_comments_failed", err, "post_id", post.ID)
	}
	post.Upvotes, post.Downvotes, post.CommentCount = up, down, n
	return nil
}

// internal passes domain errors through and logs anything else as internal.
func (s *ContentService) internal(event string, err error, attrs ...any) error {
	return logInternal(s.deps.Logger, "services/content", event, err, attrs...)
}

func logInternal(logger *slog.Logger, module, event string, err error, attrs ...any) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	fields := make([]any, 0, len(attrs)+6)
	fields = append(fields, "event", event, "module", module, "error", err.Error())
	fields = append(fields, attrs...)
	logger.Error("service operation failed", fields...)
	return apperr.Internal(err)
}

// notFound maps the store's not-found sentinel to a NotFoundError for what.
func notFound(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(what)
	}
	return err
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
