// Package classify decides whether a raw search result names a relevant
// establishment, and which category it belongs to.
package classify

import (
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/biomed-sul/leadscout/internal/model"
	"github.com/biomed-sul/leadscout/internal/textnorm"
)

// Rejection reason codes, in cascade order.
const (
	ReasonDocument        = "pdf_or_document"
	ReasonURLPattern      = "url_pattern"
	ReasonDomainBlacklist = "domain_blacklist"
	ReasonNews            = "news_article"
	ReasonAcademic        = "academic_paper"
	ReasonGenericTitle    = "generic_title"
	ReasonGenericCategory = "generic_category"
)

// Result is a raw search hit.
type Result struct {
	Title   string
	Link    string
	Snippet string
}

// Outcome is the verdict for one Result. Category is set only when accepted,
// Reason only when rejected.
type Outcome struct {
	Accepted bool
	Category model.Category
	Reason   string
}

// Accept builds an accepting outcome.
func Accept(category model.Category) Outcome {
	return Outcome{Accepted: true, Category: category}
}

// Reject builds a rejecting outcome.
func Reject(reason string) Outcome {
	return Outcome{Reason: reason}
}

// Filters toggles individual cascade stages.
type Filters struct {
	Document        bool `yaml:"pdf" mapstructure:"pdf"`
	URLPattern      bool `yaml:"url_pattern" mapstructure:"url_pattern"`
	DomainBlacklist bool `yaml:"domain_blacklist" mapstructure:"domain_blacklist"`
	News            bool `yaml:"news" mapstructure:"news"`
	Academic        bool `yaml:"academic" mapstructure:"academic"`
	GenericTitle    bool `yaml:"generic_title" mapstructure:"generic_title"`
	Topic           bool `yaml:"topic" mapstructure:"topic"`
}

// AllFilters enables every stage.
func AllFilters() Filters {
	return Filters{
		Document:        true,
		URLPattern:      true,
		DomainBlacklist: true,
		News:            true,
		Academic:        true,
		GenericTitle:    true,
		Topic:           true,
	}
}

// Classifier runs the relevance cascade. It is safe for concurrent use.
type Classifier struct {
	rules   *compiled
	filters Filters
}

// New builds a Classifier from rule tables and stage toggles.
func New(rules *Rules, filters Filters) (*Classifier, error) {
	c, err := rules.compile()
	if err != nil {
		return nil, err
	}
	return &Classifier{rules: c, filters: filters}, nil
}

// NewDefault builds a Classifier from the embedded rules with every stage on.
func NewDefault() (*Classifier, error) {
	rules, err := DefaultRules()
	if err != nil {
		return nil, err
	}
	return New(rules, AllFilters())
}

// Classify runs the cascade. Structural checks come first and the first match
// wins; a result nothing objects to is accepted.
func (c *Classifier) Classify(r Result) Outcome {
	title := textnorm.Normalize(r.Title)
	text := title + " " + textnorm.Normalize(r.Snippet)
	u := parseLink(r.Link)

	if c.filters.Document && c.isDocument(u, text) {
		return Reject(ReasonDocument)
	}
	if c.filters.URLPattern && c.matchesURLPattern(u) {
		return Reject(ReasonURLPattern)
	}
	if c.filters.DomainBlacklist && c.isBlacklisted(u) {
		return Reject(ReasonDomainBlacklist)
	}
	if c.filters.News && c.isNews(text) {
		return Reject(ReasonNews)
	}
	if c.filters.Academic && containsAnyTerm(text, c.rules.academic) {
		return Reject(ReasonAcademic)
	}
	if c.filters.GenericTitle && c.isGenericTitle(title) {
		return Reject(ReasonGenericTitle)
	}
	if c.filters.Topic && !containsAnyTerm(text, c.rules.allow) && containsAnyTerm(text, c.rules.general) {
		return Reject(ReasonGenericCategory)
	}
	return Accept(c.Category(r.Title + " " + r.Snippet))
}

// Category returns the first category whose term occurs in text, or
// CategoryOther.
func (c *Classifier) Category(text string) model.Category {
	norm := textnorm.Normalize(text)
	for _, rule := range c.rules.categories {
		if containsTerm(norm, rule.Term) {
			return rule.Category
		}
	}
	return model.CategoryOther
}

func (c *Classifier) isDocument(u *url.URL, text string) bool {
	if u != nil {
		ext := strings.ToLower(path.Ext(u.Path))
		for _, e := range c.rules.docExts {
			if ext == e {
				return true
			}
		}
	}
	return containsAnyTerm(text, c.rules.docMarkers)
}

func (c *Classifier) matchesURLPattern(u *url.URL) bool {
	if u == nil {
		return false
	}
	p := strings.ToLower(u.Path)
	for _, pattern := range c.rules.urlPatterns {
		if strings.Contains(p, pattern) {
			return true
		}
	}
	return false
}

// isBlacklisted matches the host, and its registrable domain, against the
// blacklist by equality or parent-domain suffix.
func (c *Classifier) isBlacklisted(u *url.URL) bool {
	if u == nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return false
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		registrable = host
	}
	for _, d := range c.rules.blacklist {
		if host == d || strings.HasSuffix(host, "."+d) || registrable == d {
			return true
		}
	}
	return false
}

func (c *Classifier) isNews(text string) bool {
	if containsAnyTerm(text, c.rules.newsMarkers) {
		return true
	}
	return c.rules.newsDate != nil && c.rules.newsDate.MatchString(text)
}

func (c *Classifier) isGenericTitle(title string) bool {
	if len([]rune(title)) < c.rules.minTitleLen {
		return true
	}
	return c.rules.genericTitles[title]
}

func parseLink(link string) *url.URL {
	if link == "" {
		return nil
	}
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		zap.L().Debug("classify: unparseable link", zap.String("link", link), zap.Error(err))
		return nil
	}
	return u
}

// containsTerm reports whether term occurs in text on word boundaries. Both
// must already be normalized.
func containsTerm(text, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+term+" ")
}

func containsAnyTerm(text string, terms []string) bool {
	for _, t := range terms {
		if containsTerm(text, t) {
			return true
		}
	}
	return false
}
