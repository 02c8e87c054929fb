package enrich

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/biomed-sul/leadscout/internal/contacts"
	"github.com/biomed-sul/leadscout/internal/model"
)

type fakeStore struct {
	mu        sync.Mutex
	ests      []model.Establishment
	contacts  []model.Contact
	seen      map[string]bool
	insertErr error
}

func (s *fakeStore) ListEstablishmentsWithoutContacts(context.Context) ([]model.Establishment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	has := make(map[int64]bool)
	for _, c := range s.contacts {
		has[c.EstablishmentID] = true
	}
	var out []model.Establishment
	for _, e := range s.ests {
		if e.HasWebsite() && !has[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertContact(_ context.Context, c model.Contact) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return false, s.insertErr
	}
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	key := fmt.Sprintf("%d|%s|%s", c.EstablishmentID, c.Type, c.Value)
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	s.contacts = append(s.contacts, c)
	return true, nil
}

func (s *fakeStore) byType(estID int64, typ model.ContactType) []string {
	var out []string
	for _, c := range s.contacts {
		if c.EstablishmentID == estID && c.Type == typ {
			out = append(out, c.Value)
		}
	}
	return out
}

// fakeExtractor serves canned results per URL and counts calls.
type fakeExtractor struct {
	mu    sync.Mutex
	pages map[string]contacts.Result
	calls map[string]int
}

func (f *fakeExtractor) Extract(_ context.Context, url string) contacts.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[url]++
	r, ok := f.pages[url]
	if !ok {
		return contacts.Result{Outcome: contacts.OutcomeFailed}
	}
	r.Outcome = contacts.OutcomeOK
	return r
}

func (f *fakeExtractor) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

var errBoom = eris.New("boom")
