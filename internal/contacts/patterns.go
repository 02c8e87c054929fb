package contacts

import (
	"regexp"
	"strings"

	"github.com/biomed-sul/leadscout/internal/model"
)

var (
	emailRe     = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRe     = regexp.MustCompile(`(?:\+55\s?)?(?:\(?\d{2}\)?\s?)?\d{4,5}[-.\s]?\d{4}`)
	whatsappRe  = regexp.MustCompile(`(?i)(?:wa\.me|api\.whatsapp\.com/send\?phone=)[\d/]+`)
	instagramRe = regexp.MustCompile(`(?i)(?:instagram\.com|instagr\.am)/([a-zA-Z0-9_.]+)`)
	facebookRe  = regexp.MustCompile(`(?i)facebook\.com/([a-zA-Z0-9_.]+)`)
	linkedinRe  = regexp.MustCompile(`(?i)linkedin\.com/(?:company|in)/([a-zA-Z0-9_-]+)`)
	nonDigitRe  = regexp.MustCompile(`\D`)
)

// Placeholder and tooling domains that show up in templates and tracking
// snippets rather than as real addresses.
var ignoredEmailDomains = []string{
	"example", "sentry", "w3.org", "wixpress", "domain.com", "email.com", "seudominio", "yourdomain",
}

var imageSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}

// Path segments that follow the network host but are not profiles.
var socialNonProfiles = map[string]bool{
	"p": true, "reel": true, "reels": true, "explore": true, "stories": true, "accounts": true,
	"sharer": true, "sharer.php": true, "share": true, "share.php": true, "dialog": true,
	"plugins": true, "tr": true, "login": true, "home.php": true, "watch": true, "groups": true,
}

// socialPatterns lists the supported networks in output order.
var socialPatterns = []struct {
	typ model.ContactType
	re  *regexp.Regexp
}{
	{model.ContactInstagram, instagramRe},
	{model.ContactFacebook, facebookRe},
	{model.ContactLinkedIn, linkedinRe},
}

func matchEmails(text string) []string {
	var out []string
	for _, m := range emailRe.FindAllString(text, -1) {
		e := strings.ToLower(m)
		if ignoredEmail(e) {
			continue
		}
		out = append(out, e)
	}
	return dedupe(out)
}

func ignoredEmail(e string) bool {
	at := strings.LastIndexByte(e, '@')
	domain := e[at+1:]
	for _, d := range ignoredEmailDomains {
		if strings.Contains(domain, d) {
			return true
		}
	}
	for _, s := range imageSuffixes {
		if strings.HasSuffix(e, s) {
			return true
		}
	}
	return false
}

// matchPhones returns digit-only numbers of 10 to 13 digits.
func matchPhones(text string) []string {
	var out []string
	for _, m := range phoneRe.FindAllString(text, -1) {
		digits := nonDigitRe.ReplaceAllString(m, "")
		if len(digits) < 10 || len(digits) > 13 {
			continue
		}
		out = append(out, digits)
	}
	return dedupe(out)
}

func matchWhatsApp(text string) []string {
	var out []string
	for _, m := range whatsappRe.FindAllString(text, -1) {
		out = append(out, strings.TrimRight(strings.ToLower(m), "/"))
	}
	return dedupe(out)
}

func matchHandles(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		handle := strings.TrimRight(m[1], ".")
		if handle == "" || socialNonProfiles[strings.ToLower(handle)] {
			continue
		}
		out = append(out, handle)
	}
	return dedupe(out)
}

// dedupe keeps the first occurrence of each value.
func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
