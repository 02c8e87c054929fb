package classify

import (
	_ "embed"
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/biomed-sul/leadscout/internal/model"
	"github.com/biomed-sul/leadscout/internal/textnorm"
)

//go:embed rules.yaml
var defaultRules []byte

// CategoryRule maps a term to a category. Rules are evaluated in order.
type CategoryRule struct {
	Term     string         `yaml:"term"`
	Category model.Category `yaml:"category"`
}

// Rules holds the term tables the cascade matches against.
type Rules struct {
	DocumentExtensions []string       `yaml:"document_extensions"`
	DocumentMarkers    []string       `yaml:"document_markers"`
	URLPatterns        []string       `yaml:"url_patterns"`
	BlacklistDomains   []string       `yaml:"blacklist_domains"`
	NewsMarkers        []string       `yaml:"news_markers"`
	NewsDatePattern    string         `yaml:"news_date_pattern"`
	AcademicMarkers    []string       `yaml:"academic_markers"`
	GenericTitles      []string       `yaml:"generic_titles"`
	MinTitleLength     int            `yaml:"min_title_length"`
	AllowTerms         []string       `yaml:"allow_terms"`
	GeneralTerms       []string       `yaml:"general_terms"`
	Categories         []CategoryRule `yaml:"categories"`
}

// DefaultRules returns the embedded rule tables.
func DefaultRules() (*Rules, error) {
	return ParseRules(defaultRules)
}

// LoadRules reads rule tables from a YAML file. Tables missing from the file
// keep their embedded defaults.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "classify: read rules %s", path)
	}
	rules, err := DefaultRules()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, eris.Wrapf(err, "classify: parse rules %s", path)
	}
	return rules, nil
}

// ParseRules decodes rule tables from YAML.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "classify: parse rules")
	}
	return &r, nil
}

// compiled is the matcher-ready form of Rules. Terms are pre-normalized.
type compiled struct {
	docExts       []string
	docMarkers    []string
	urlPatterns   []string
	blacklist     []string
	newsMarkers   []string
	newsDate      *regexp.Regexp
	academic      []string
	genericTitles map[string]bool
	minTitleLen   int
	allow         []string
	general       []string
	categories    []CategoryRule
}

func (r *Rules) compile() (*compiled, error) {
	c := &compiled{
		docExts:       r.DocumentExtensions,
		docMarkers:    normalizeAll(r.DocumentMarkers),
		urlPatterns:   r.URLPatterns,
		blacklist:     r.BlacklistDomains,
		newsMarkers:   normalizeAll(r.NewsMarkers),
		academic:      normalizeAll(r.AcademicMarkers),
		genericTitles: make(map[string]bool, len(r.GenericTitles)),
		minTitleLen:   r.MinTitleLength,
		allow:         normalizeAll(r.AllowTerms),
		general:       normalizeAll(r.GeneralTerms),
	}
	if r.NewsDatePattern != "" {
		re, err := regexp.Compile(r.NewsDatePattern)
		if err != nil {
			return nil, eris.Wrap(err, "classify: compile news date pattern")
		}
		c.newsDate = re
	}
	for _, g := range r.GenericTitles {
		c.genericTitles[textnorm.Normalize(g)] = true
	}
	for _, cr := range r.Categories {
		c.categories = append(c.categories, CategoryRule{Term: textnorm.Normalize(cr.Term), Category: cr.Category})
	}
	return c, nil
}

func normalizeAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if n := textnorm.Normalize(t); n != "" {
			out = append(out, n)
		}
	}
	return out
}
