package contacts

import "github.com/biomed-sul/leadscout/internal/model"

// Outcome describes how a page fetch ended. It never affects the caller's
// control flow; it only feeds logging and metrics.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeStatus  Outcome = "bad_status"
	OutcomeNotHTML Outcome = "not_html"
	OutcomeFailed  Outcome = "failed"
	OutcomeCached  Outcome = "cached"
)

// Result holds the contacts found on a page, deduplicated per type in
// first-seen order.
type Result struct {
	Emails   []string                       `json:"emails,omitempty"`
	Phones   []string                       `json:"phones,omitempty"`
	WhatsApp []string                       `json:"whatsapp,omitempty"`
	Social   map[model.ContactType][]string `json:"social,omitempty"`
	Outcome  Outcome                        `json:"outcome"`
}

// Empty reports whether no contact of any type was found.
func (r Result) Empty() bool {
	if len(r.Emails) > 0 || len(r.Phones) > 0 || len(r.WhatsApp) > 0 {
		return false
	}
	for _, v := range r.Social {
		if len(v) > 0 {
			return false
		}
	}
	return true
}

// Caps bounds how many values per type are persisted.
type Caps struct {
	Email    int
	Phone    int
	WhatsApp int
	Social   int // per network
}

// DefaultCaps keeps three emails and phones, two of everything else.
func DefaultCaps() Caps {
	return Caps{Email: 3, Phone: 3, WhatsApp: 2, Social: 2}
}

// Capped returns a copy of r truncated to caps.
func (r Result) Capped(c Caps) Result {
	out := Result{
		Emails:   head(r.Emails, c.Email),
		Phones:   head(r.Phones, c.Phone),
		WhatsApp: head(r.WhatsApp, c.WhatsApp),
		Outcome:  r.Outcome,
	}
	if len(r.Social) > 0 {
		out.Social = make(map[model.ContactType][]string, len(r.Social))
		for k, v := range r.Social {
			out.Social[k] = head(v, c.Social)
		}
	}
	return out
}

// Merge appends other's values after r's, keeping per-type uniqueness.
func (r Result) Merge(other Result) Result {
	out := Result{
		Emails:   dedupe(concat(r.Emails, other.Emails)),
		Phones:   dedupe(concat(r.Phones, other.Phones)),
		WhatsApp: dedupe(concat(r.WhatsApp, other.WhatsApp)),
		Outcome:  r.Outcome,
	}
	for _, sp := range socialPatterns {
		if v := dedupe(concat(r.Social[sp.typ], other.Social[sp.typ])); len(v) > 0 {
			if out.Social == nil {
				out.Social = make(map[model.ContactType][]string)
			}
			out.Social[sp.typ] = v
		}
	}
	return out
}

// Contacts flattens r into rows for establishmentID in a stable type order.
func (r Result) Contacts(establishmentID int64) []model.Contact {
	var out []model.Contact
	add := func(t model.ContactType, values []string) {
		for _, v := range values {
			out = append(out, model.Contact{EstablishmentID: establishmentID, Type: t, Value: v})
		}
	}
	add(model.ContactEmail, r.Emails)
	add(model.ContactPhone, r.Phones)
	add(model.ContactWhatsApp, r.WhatsApp)
	for _, sp := range socialPatterns {
		add(sp.typ, r.Social[sp.typ])
	}
	return out
}

func head(values []string, n int) []string {
	if n < 0 || len(values) <= n {
		return values
	}
	return values[:n]
}

func concat(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
