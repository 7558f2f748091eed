package sources

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sarathavasarala/markly/internal/db"
	"github.com/sarathavasarala/markly/internal/indexer"
	"golang.org/x/net/html"
)

// FileSource reads a browser bookmark export in the Netscape HTML format.
type FileSource struct {
	path   string
	enrich bool
}

func NewFileSource(path string, enrich bool) *FileSource {
	return &FileSource{path: path, enrich: enrich}
}

func (f *FileSource) Name() string {
	return "file"
}

func (f *FileSource) Available() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// Candidates parses the whole file; incremental has no meaning here.
func (f *FileSource) Candidates(ctx context.Context, incremental bool) ([]indexer.Candidate, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open bookmarks file: %w", err)
	}
	defer file.Close()

	candidates, err := ParseNetscape(file)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	for i := range candidates {
		candidates[i].Enrich = f.enrich
	}
	return candidates, nil
}

// ParseNetscape extracts links from a bookmark export. The enclosing folder
// name becomes a tag, alongside any TAGS attribute, and a <DD> following a
// link becomes its notes.
func ParseNetscape(r io.Reader) ([]indexer.Candidate, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var candidates []indexer.Candidate
	var folderStack []string
	pendingFolder := ""

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "h3":
				// Folder header; its <DL> follows as a sibling
				pendingFolder = strings.TrimSpace(nodeText(n))
			case "a":
				if c, ok := linkCandidate(n, folderStack); ok {
					candidates = append(candidates, c)
				}
			case "dd":
				if len(candidates) > 0 && candidates[len(candidates)-1].Notes == "" {
					candidates[len(candidates)-1].Notes = strings.TrimSpace(ownText(n))
				}
			}
		}

		opened := false
		if n.Type == html.ElementNode && n.Data == "dl" && pendingFolder != "" {
			folderStack = append(folderStack, pendingFolder)
			pendingFolder = ""
			opened = true
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		// When exiting DL container - "close" current folder
		if opened {
			folderStack = folderStack[:len(folderStack)-1]
		}
	}

	walk(doc)
	return candidates, nil
}

func linkCandidate(n *html.Node, folders []string) (indexer.Candidate, bool) {
	c := indexer.Candidate{Source: db.SourceImport}
	for _, attr := range n.Attr {
		switch attr.Key {
		case "href":
			c.URL = strings.TrimSpace(attr.Val)
		case "tags":
			for _, tag := range strings.Split(attr.Val, ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					c.Tags = append(c.Tags, tag)
				}
			}
		}
	}
	if c.URL == "" || !strings.HasPrefix(c.URL, "http") {
		// place: and javascript: entries from browser toolbars
		return c, false
	}
	c.Title = strings.TrimSpace(nodeText(n))
	if len(folders) > 0 {
		c.Tags = append(c.Tags, folders[len(folders)-1])
	}
	return c, true
}

// nodeText concatenates all text below n.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// ownText is the text directly inside n, ignoring nested elements such as
// the <DT> that the parser may hang under an unclosed <DD>.
func ownText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
