// Package contacts fetches establishment websites and pulls typed contact
// identifiers out of the contact-bearing regions of the page.
package contacts

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/biomed-sul/leadscout/internal/fetcher"
	"github.com/biomed-sul/leadscout/internal/model"
)

// Regions of the page scanned for contacts. Anything else is noise.
var regionSelectors = []string{
	"header",
	"footer",
	`[class*="contact"]`, `[id*="contact"]`,
	`[class*="contato"]`, `[id*="contato"]`,
	`[class*="fale-conosco"]`, `[id*="fale-conosco"]`,
	`[class*="atendimento"]`, `[id*="atendimento"]`,
}

var contactVocabulary = []string{"contato", "contact", "fale-conosco", "fale conosco", "faleconosco", "atendimento"}

// Options configures an Extractor.
type Options struct {
	Timeout           time.Duration
	MaxBytes          int64
	MaxRedirects      int
	MaxText           int
	FollowContactPage bool
	UserAgent         string
}

// DefaultOptions returns the limits used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Timeout:      10 * time.Second,
		MaxBytes:     5 << 20,
		MaxRedirects: 3,
		MaxText:      50000,
		UserAgent:    fetcher.DefaultUserAgent,
	}
}

// Extractor fetches pages and extracts contacts. It is safe for concurrent use.
type Extractor struct {
	client *http.Client
	opts   Options
	log    *zap.Logger
}

// NewExtractor creates an Extractor. A nil client gets a fresh one bounded by
// opts.Timeout and opts.MaxRedirects.
func NewExtractor(opts Options, client *http.Client) *Extractor {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = def.MaxBytes
	}
	if opts.MaxRedirects < 0 {
		opts.MaxRedirects = def.MaxRedirects
	}
	if opts.MaxText <= 0 {
		opts.MaxText = def.MaxText
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	} else {
		c := *client
		client = &c
	}
	maxRedirects := opts.MaxRedirects
	client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return eris.Errorf("contacts: stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	return &Extractor{
		client: client,
		opts:   opts,
		log:    zap.L().With(zap.String("component", "contacts")),
	}
}

// Extract fetches pageURL and returns the contacts found. It never fails:
// network errors, bad statuses and non-HTML bodies all yield an empty Result
// whose Outcome says why.
func (e *Extractor) Extract(ctx context.Context, pageURL string) Result {
	doc, outcome := e.fetch(ctx, pageURL)
	if doc == nil {
		return Result{Outcome: outcome}
	}
	res, contactPage := Parse(doc, pageURL, e.opts.MaxText)
	res.Outcome = outcome

	if e.opts.FollowContactPage && contactPage != "" {
		if sub, _ := e.fetch(ctx, contactPage); sub != nil {
			more, _ := Parse(sub, contactPage, e.opts.MaxText)
			res = res.Merge(more)
		}
	}
	return res
}

func (e *Extractor) fetch(ctx context.Context, pageURL string) (*goquery.Document, Outcome) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	log := e.log.With(zap.String("url", pageURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		log.Debug("contacts: bad url", zap.Error(err))
		return nil, OutcomeFailed
	}
	req.Header.Set("User-Agent", e.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		log.Debug("contacts: fetch failed", zap.Error(err))
		return nil, OutcomeFailed
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Debug("contacts: unexpected status", zap.Int("status", resp.StatusCode))
		return nil, OutcomeStatus
	}

	mediaType, params, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "" && mediaType != "text/html" && mediaType != "application/xhtml+xml" {
		log.Debug("contacts: not html", zap.String("content_type", mediaType))
		return nil, OutcomeNotHTML
	}

	body, err := decodeCharset(io.LimitReader(resp.Body, e.opts.MaxBytes), params["charset"])
	if err != nil {
		log.Debug("contacts: charset", zap.Error(err))
		return nil, OutcomeFailed
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		log.Debug("contacts: parse failed", zap.Error(err))
		return nil, OutcomeFailed
	}
	return doc, OutcomeOK
}

// decodeCharset wraps r in a UTF-8 decoder when the page declares another
// charset in its Content-Type.
func decodeCharset(r io.Reader, charset string) (io.Reader, error) {
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "utf8") {
		return r, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "contacts: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(r), nil
}

// Parse extracts contacts from an already-parsed page. It also returns the
// absolute URL of a same-host contact page link, if the page has one.
func Parse(doc *goquery.Document, pageURL string, maxText int) (Result, string) {
	doc.Find("script, style, noscript").Remove()

	var sb strings.Builder
	for _, sel := range regionSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			for _, n := range s.Nodes {
				writeText(&sb, n)
			}
		})
	}

	base, _ := url.Parse(pageURL)
	var contactPage string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		sb.WriteString(href)
		sb.WriteByte(' ')
		if contactPage == "" && base != nil && isContactLink(href, s.Text()) {
			contactPage = resolveSameHost(base, href)
		}
	})

	text := truncate(sb.String(), maxText)

	res := Result{
		Emails:   matchEmails(text),
		Phones:   matchPhones(text),
		WhatsApp: matchWhatsApp(text),
	}
	for _, sp := range socialPatterns {
		if handles := matchHandles(sp.re, text); len(handles) > 0 {
			if res.Social == nil {
				res.Social = make(map[model.ContactType][]string)
			}
			res.Social[sp.typ] = handles
		}
	}
	return res, contactPage
}

// writeText appends every text node under n followed by a space, so adjacent
// blocks never run together.
func writeText(sb *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c)
	}
}

func isContactLink(href, text string) bool {
	if strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") || strings.HasPrefix(href, "#") {
		return false
	}
	candidate := strings.ToLower(href + " " + text)
	for _, w := range contactVocabulary {
		if strings.Contains(candidate, w) {
			return true
		}
	}
	return false
}

func resolveSameHost(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	if !strings.EqualFold(abs.Hostname(), base.Hostname()) {
		return ""
	}
	abs.Fragment = ""
	if abs.String() == base.String() {
		return ""
	}
	return abs.String()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
