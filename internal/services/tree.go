package services

import (
	"html/template"
	"sync"
	"time"

	"jukwaa/internal/metrics"
	"jukwaa/internal/models"
	"jukwaa/internal/utils"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ContentTree is a post with its comments nested by parent. Trees handed
// out by the cache are shared and must be treated as read-only.
type ContentTree struct {
	Post     *models.Post   `json:"post"`
	BodyHTML template.HTML  `json:"body_html"`
	Poll     *PollTally     `json:"poll,omitempty"`
	Comments []*CommentNode `json:"comments"`
}

type CommentNode struct {
	ID        string               `json:"id"`
	ParentID  *string              `json:"parent_id"`
	AuthorID  string               `json:"author_id,omitempty"`
	Body      string               `json:"body,omitempty"`
	BodyHTML  template.HTML        `json:"body_html,omitempty"`
	Removed   bool                 `json:"removed"`
	Status    models.ContentStatus `json:"status"`
	Depth     int                  `json:"depth"`
	Upvotes   int                  `json:"upvotes"`
	Downvotes int                  `json:"downvotes"`
	Score     int                  `json:"score"`
	CreatedAt time.Time            `json:"created_at"`
	EditedAt  *time.Time           `json:"edited_at,omitempty"`
	Replies   []*CommentNode       `json:"replies"`
}

// buildCommentTree nests a creation-ordered flat list. Replies keep the
// order of the input at every level.
func buildCommentTree(comments []*models.Comment, tally func(id string) (int, int)) []*CommentNode {
	nodes := make(map[string]*CommentNode, len(comments))
	for _, c := range comments {
		n := &CommentNode{
			ID:        c.ID,
			ParentID:  c.ParentID,
			Status:    c.Status,
			CreatedAt: c.CreatedAt,
			EditedAt:  c.EditedAt,
			Replies:   []*CommentNode{},
		}
		if c.Removed() {
			n.Removed = true
		} else {
			n.AuthorID = c.AuthorID
			n.Body = c.Body
			n.BodyHTML = utils.RenderComment(c.Body)
			n.Upvotes, n.Downvotes = tally(c.ID)
			n.Score = n.Upvotes - n.Downvotes
		}
		nodes[c.ID] = n
	}

	roots := make([]*CommentNode, 0)
	for _, c := range comments {
		n := nodes[c.ID]
		var parent *CommentNode
		if c.ParentID != nil {
			parent = nodes[*c.ParentID]
		}
		if parent == nil {
			roots = append(roots, n)
			continue
		}
		parent.Replies = append(parent.Replies, n)
	}
	setDepth(roots, 1)
	return roots
}

func setDepth(nodes []*CommentNode, depth int) {
	for _, n := range nodes {
		n.Depth = depth
		setDepth(n.Replies, depth+1)
	}
}

// depthOf walks parent edges. A top-level comment has depth 1.
func depthOf(byID map[string]*models.Comment, c *models.Comment) int {
	depth := 1
	for c.ParentID != nil && depth <= len(byID) {
		parent, ok := byID[*c.ParentID]
		if !ok {
			break
		}
		c = parent
		depth++
	}
	return depth
}

// TreeCache keeps rendered content trees keyed by post id. Each post has a
// generation that Invalidate advances; a tree built before the latest
// invalidation is not stored.
type TreeCache struct {
	cache *utils.TTLCache[*ContentTree]

	mu    sync.Mutex
	seq   uint64
	floor uint64 // highest generation evicted from gens
	gens  *lru.Cache[string, uint64]
}

func NewTreeCache(size int, ttl time.Duration) (*TreeCache, error) {
	c, err := utils.NewTTLCache[*ContentTree](size, ttl)
	if err != nil {
		return nil, err
	}
	tc := &TreeCache{cache: c}
	// 代数表比树缓存大，淘汰时抬高 floor，保证被淘汰的 post 不会回到旧代数
	tc.gens, err = lru.NewWithEvict[string, uint64](size*4, func(_ string, gen uint64) {
		if gen > tc.floor {
			tc.floor = gen
		}
	})
	if err != nil {
		return nil, err
	}
	return tc, nil
}

func (c *TreeCache) Get(postID string) (*ContentTree, bool) {
	if c == nil {
		return nil, false
	}
	tree, ok := c.cache.Get(postID)
	if ok {
		metrics.TreeCacheTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.TreeCacheTotal.WithLabelValues("miss").Inc()
	}
	return tree, ok
}

// Generation is read before loading a tree from the store and passed back
// to Set.
func (c *TreeCache) Generation(postID string) uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation(postID)
}

func (c *TreeCache) generation(postID string) uint64 {
	if gen, ok := c.gens.Peek(postID); ok {
		return gen
	}
	return c.floor
}

// Set stores tree unless postID was invalidated after gen was read.
func (c *TreeCache) Set(postID string, gen uint64, tree *ContentTree) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation(postID) != gen {
		metrics.TreeCacheTotal.WithLabelValues("stale").Inc()
		return false
	}
	c.cache.Set(postID, tree)
	return true
}

func (c *TreeCache) Invalidate(postID string) {
	if c == nil || postID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.gens.Add(postID, c.seq)
	c.cache.Delete(postID)
}
