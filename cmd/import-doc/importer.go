package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/josinaldojr/askdocs-rag/internal/rag"
)

type uploader interface {
	UploadAndIndex(ctx context.Context, fileName string, data []byte) (*rag.UploadResult, error)
}

type importer struct {
	svc      uploader
	supports func(path string) bool
	client   *http.Client
	log      *zap.Logger

	indexed int
	failed  int
}

func (im *importer) upload(ctx context.Context, name string, data []byte) {
	res, err := im.svc.UploadAndIndex(ctx, name, data)
	if err != nil {
		im.failed++
		im.log.Warn("document not indexed", zap.String("file", name), zap.Error(err))
		return
	}
	im.indexed++
	im.log.Info("document indexed",
		zap.String("file", res.FileName),
		zap.Int("pages", res.Pages),
		zap.Int("chunks", res.Chunks),
	)
}

// fromDir indexes every supported file under root. Documents are keyed by
// base name, so two files with the same name in different folders replace
// each other.
func (im *importer) fromDir(ctx context.Context, root string) error {
	im.log.Info("importing local documents", zap.String("path", root))

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") || !im.supports(path) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		im.upload(ctx, d.Name(), data)
		return nil
	})
}

// fromURL crawls same-host pages breadth first and indexes each page as an
// HTML document named after its path.
func (im *importer) fromURL(ctx context.Context, baseURL string, maxPages int) error {
	base, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	client := im.client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	im.log.Info("crawling", zap.String("base", base.String()), zap.Int("max_pages", maxPages))

	visited := make(map[string]bool)
	queue := []string{base.String()}
	pages := 0

	for len(queue) > 0 && pages < maxPages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		pages++

		body, err := fetch(ctx, client, current)
		if err != nil {
			im.log.Warn("fetch failed", zap.String("url", current), zap.Error(err))
			continue
		}

		im.upload(ctx, pageFileName(current, base), body)

		for _, link := range extractLinks(body, base) {
			if !visited[link] {
				queue = append(queue, link)
			}
		}
	}
	return nil
}

func fetch(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// pageFileName turns a page URL into a flat document name ending in .html.
func pageFileName(raw string, base *url.URL) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "page.html"
	}
	p := strings.Trim(u.Path, "/")
	if p == "" || p == strings.Trim(base.Path, "/") {
		return "index.html"
	}
	p = strings.TrimSuffix(p, filepath.Ext(p))
	p = strings.NewReplacer("/", "_", "\\", "_").Replace(p)
	return p + ".html"
}

func extractLinks(body []byte, base *url.URL) []string {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key != "href" {
					continue
				}
				h := strings.TrimSpace(a.Val)
				if h == "" || strings.HasPrefix(h, "#") {
					continue
				}
				u, err := url.Parse(h)
				if err != nil {
					continue
				}
				u = base.ResolveReference(u)
				if u.Host != base.Host || isAsset(u.Path) {
					continue
				}
				link := u.Scheme + "://" + u.Host + u.Path
				if !seen[link] {
					seen[link] = true
					out = append(out, link)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func isAsset(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".woff", ".woff2":
		return true
	}
	return false
}
