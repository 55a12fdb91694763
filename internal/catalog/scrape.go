package catalog

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dbsmedya/goapidiscovery/internal/logger"
)

// explorerPages are tried in order; the first HTML page wins.
var explorerPages = []string{
	"/sn_rpexplorer.do",
	"/rest_api_explorer.do",
	"/now/nav/ui/classic/params/target/rest_api_explorer.do",
}

// selectKeywords are matched against label text and select attributes.
var selectKeywords = map[Kind][]string{
	KindNamespace: {"namespace"},
	KindAPI:       {"api name", "api"},
	KindVersion:   {"version", "api version"},
}

// placeholders are option labels that never denote a real token.
var placeholders = map[string]bool{
	"namespace":  true,
	"api":        true,
	"api name":   true,
	"version":    true,
	"select":     true,
	"-- none --": true,
}

var versionPattern = regexp.MustCompile(`^v\d+`)

// Scraper reads selector options from the REST API explorer page. The page
// is fetched once per Scraper.
type Scraper struct {
	client  Client
	logger  *logger.Logger
	fetched bool
	doc     *html.Node
}

// NewScraper creates the explorer-page strategy.
func NewScraper(client Client, log *logger.Logger) *Scraper {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Scraper{client: client, logger: log.WithComponent("catalog.scrape")}
}

// Name implements Strategy.
func (s *Scraper) Name() string { return "scrape" }

// Resolve implements Strategy. The page does not scope APIs or versions by
// namespace, so q is ignored.
func (s *Scraper) Resolve(ctx context.Context, kind Kind, _ Query) ([]string, error) {
	doc := s.page(ctx)
	if doc == nil {
		return nil, nil
	}

	var out []string
	for _, opt := range extractSelectOptions(doc, selectKeywords[kind]) {
		if placeholders[strings.ToLower(opt)] {
			continue
		}
		if kind == KindVersion && !versionPattern.MatchString(opt) {
			continue
		}
		out = append(out, opt)
	}
	return out, nil
}

func (s *Scraper) page(ctx context.Context) *html.Node {
	if s.fetched {
		return s.doc
	}
	s.fetched = true

	for _, path := range explorerPages {
		resp, err := s.client.Get(ctx, path, nil)
		if err != nil {
			s.logger.Debugw("Explorer page unavailable", "path", path, "error", err)
			continue
		}
		if resp.StatusCode != http.StatusOK || !strings.Contains(strings.ToLower(string(resp.Body)), "<html") {
			continue
		}
		doc, err := html.Parse(strings.NewReader(string(resp.Body)))
		if err != nil {
			s.logger.Debugw("Explorer page unparsable", "path", path, "error", err)
			continue
		}
		s.doc = doc
		return doc
	}
	return nil
}

// extractSelectOptions finds the select for keywords and returns its option
// texts. A label whose text contains a keyword selects the next select in
// document order; otherwise the first select whose id, name, aria-label or
// title contains a keyword is used.
func extractSelectOptions(doc *html.Node, keywords []string) []string {
	nodes := elements(doc)

	for i, n := range nodes {
		if n.DataAtom != atom.Label {
			continue
		}
		if !containsAny(strings.ToLower(textOf(n)), keywords) {
			continue
		}
		for _, next := range nodes[i+1:] {
			if next.DataAtom == atom.Select {
				return optionTexts(next)
			}
		}
	}

	for _, n := range nodes {
		if n.DataAtom != atom.Select {
			continue
		}
		var attrs []string
		for _, key := range []string{"id", "name", "aria-label", "title"} {
			if v := attr(n, key); v != "" {
				attrs = append(attrs, v)
			}
		}
		if containsAny(strings.ToLower(strings.Join(attrs, " ")), keywords) {
			return optionTexts(n)
		}
	}
	return nil
}

// elements returns every element node in document order.
func elements(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func optionTexts(sel *html.Node) []string {
	var out []string
	for _, n := range elements(sel) {
		if n.DataAtom != atom.Option {
			continue
		}
		if text := textOf(n); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// textOf concatenates the trimmed text nodes under n.
func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
