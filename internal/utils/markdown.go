package utils

import (
	"bytes"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

type bodyRenderer struct {
	md      goldmark.Markdown
	policy  *bluemonday.Policy
	enhance bool
}

var (
	postRenderer = bodyRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
		),
		policy:  postPolicy(),
		enhance: true,
	}

	// 评论只保留行内格式和列表，不渲染图片和标题
	commentRenderer = bodyRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
			goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
		),
		policy: commentPolicy(),
	}
)

func postPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowImages()
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)
	return p
}

func commentPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowStandardURLs()
	p.AllowAttrs("href").OnElements("a")
	p.AllowElements("p", "br", "strong", "em", "del", "code", "pre", "blockquote", "ul", "ol", "li")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	return p
}

func (r bodyRenderer) render(source string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(source))
	}
	sanitized := r.policy.SanitizeBytes(buf.Bytes())
	if !r.enhance {
		return template.HTML(sanitized)
	}
	return EnhanceHTMLContent(string(sanitized))
}

// RenderPost converts a post body to sanitized HTML. Images are kept and
// video links are turned into embeds.
func RenderPost(source string) template.HTML {
	return postRenderer.render(source)
}

// RenderComment converts a comment body to sanitized HTML with a narrower
// element set than posts.
func RenderComment(source string) template.HTML {
	return commentRenderer.render(source)
}
