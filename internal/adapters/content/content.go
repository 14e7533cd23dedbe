// Package content serves the marketing pages, which are markdown files with
// YAML front matter kept in a directory next to the binary.
package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"
)

// IndexSlug is the page served at "/".
const IndexSlug = "index"

const reloadDebounce = 200 * time.Millisecond

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// ErrNoTitle means a page's front matter has no title.
var ErrNoTitle = errors.New("page front matter needs a title")

// Page is one rendered marketing page.
type Page struct {
	Slug        string
	Title       string
	Description string
	NavOrder    int // 0 keeps the page out of the navigation
	HTML        template.HTML
	ModTime     time.Time
}

type frontMatter struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	NavOrder    int    `yaml:"nav_order"`
	Draft       bool   `yaml:"draft"`
}

// Store holds the rendered pages of one directory.
// INVARIANT: a failed reload leaves the previous pages in place
type Store struct {
	dir string
	md  goldmark.Markdown

	mu    sync.RWMutex
	pages map[string]Page
	nav   []Page
}

// Load renders every *.md file in dir.
// PRE: dir exists
// POST: returns a store with all non-draft pages, or the first parse error
func Load(dir string) (*Store, error) {
	s := &Store{
		dir: dir,
		// raw HTML in markdown is escaped (WithUnsafe is not set)
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Typographer),
			goldmark.WithRendererOptions(goldmarkHTML.WithHardWraps()),
		),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the page for slug.
func (s *Store) Get(slug string) (Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[slug]
	return p, ok
}

// Nav returns the pages shown in the site navigation, by nav_order.
func (s *Store) Nav() []Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.nav)
}

// Reload re-reads the directory and swaps in the new pages atomically.
func (s *Store) Reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read content dir: %w", err)
	}
	pages := make(map[string]Page, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		slug := strings.TrimSuffix(e.Name(), ".md")
		if !slugPattern.MatchString(slug) {
			slog.Warn("content_skipped", "file", e.Name(), "reason", "bad_slug")
			continue
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return fmt.Errorf("read %s: %w", e.Name(), err)
		}
		page, draft, err := s.render(slug, raw)
		if err != nil {
			return fmt.Errorf("render %s: %w", e.Name(), err)
		}
		if draft {
			continue
		}
		page.ModTime = info.ModTime()
		pages[slug] = page
	}

	nav := make([]Page, 0, len(pages))
	for _, p := range pages {
		if p.NavOrder > 0 {
			nav = append(nav, p)
		}
	}
	slices.SortFunc(nav, func(a, b Page) int {
		if a.NavOrder != b.NavOrder {
			return a.NavOrder - b.NavOrder
		}
		return strings.Compare(a.Slug, b.Slug)
	})

	s.mu.Lock()
	s.pages = pages
	s.nav = nav
	s.mu.Unlock()
	slog.Info("content_loaded", "pages", len(pages))
	return nil
}

// render splits front matter from the body and converts the body to HTML.
func (s *Store) render(slug string, raw []byte) (Page, bool, error) {
	meta, body, err := splitFrontMatter(raw)
	if err != nil {
		return Page{}, false, err
	}
	var fm frontMatter
	if err := yaml.Unmarshal(meta, &fm); err != nil {
		return Page{}, false, fmt.Errorf("front matter: %w", err)
	}
	if strings.TrimSpace(fm.Title) == "" {
		return Page{}, false, ErrNoTitle
	}
	var buf bytes.Buffer
	if err := s.md.Convert(body, &buf); err != nil {
		return Page{}, false, err
	}
	return Page{
		Slug:        slug,
		Title:       fm.Title,
		Description: fm.Description,
		NavOrder:    fm.NavOrder,
		HTML:        template.HTML(buf.String()), //nolint:gosec // goldmark escapes raw HTML
	}, fm.Draft, nil
}

// splitFrontMatter expects the file to open with a "---" line and returns
// the YAML between the first two delimiter lines and the rest as body.
func splitFrontMatter(raw []byte) (meta, body []byte, err error) {
	raw = bytes.TrimPrefix(raw, []byte("\ufeff"))
	raw = bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(raw, []byte("---\n")) {
		return nil, nil, errors.New("missing front matter")
	}
	rest := raw[len("---\n"):]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, nil, errors.New("unterminated front matter")
	}
	meta = rest[:end]
	body = rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	return meta, body, nil
}

// Watch reloads the store when files in its directory change, until ctx is
// done. Bursts of events are coalesced into one reload.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("content watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}
	slog.Info("content_watching", "dir", s.dir)

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ".md" || ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			if err := s.Reload(); err != nil {
				slog.Error("content_reload_failed", "error", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("content_watch_error", "error", err)
		}
	}
}
