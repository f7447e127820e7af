package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

// builtinText reads text, markdown and HTML files without external
// dependencies. The whole file is a single page.
type builtinText struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func newBuiltinText() *builtinText {
	return &builtinText{md: goldmark.New(), policy: bluemonday.UGCPolicy()}
}

func (e *builtinText) ID() ID { return BuiltinText }

func (e *builtinText) Extract(ctx context.Context, path string, opts Options) (*Raw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failed(BuiltinText, err)
	}
	content := strings.ToValidUTF8(string(data), "")
	meta := map[string]any{}

	ext := opts.Ext
	if ext == "" {
		ext = filepath.Ext(path)
	}
	switch strings.ToLower(ext) {
	case ".html", ".htm":
		if title := htmlTitle(content); title != "" {
			meta["title"] = title
		}
		content, err = htmltomarkdown.ConvertString(e.policy.Sanitize(content))
		if err != nil {
			return nil, failed(BuiltinText, fmt.Errorf("convert html: %w", err))
		}
		meta["source_format"] = "html"
	case ".md", ".markdown":
		meta["headings"] = e.countHeadings([]byte(content))
	}
	meta["lines"] = strings.Count(content, "\n") + 1

	return &Raw{
		Content:  content,
		Pages:    []RawPage{{Index: 1, Text: content}},
		Metadata: meta,
	}, nil
}

func (e *builtinText) countHeadings(src []byte) int {
	doc := e.md.Parser().Parse(text.NewReader(src))
	n := 0
	ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && node.Kind() == ast.KindHeading {
			n++
		}
		return ast.WalkContinue, nil
	})
	return n
}

// htmlTitle returns the text of the first <title> element.
func htmlTitle(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			if name, _ := z.TagName(); string(name) != "title" {
				continue
			}
			if z.Next() == html.TextToken {
				return strings.TrimSpace(string(z.Text()))
			}
			return ""
		}
	}
}
