package search

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/biomed-sul/leadscout/internal/model"
	"github.com/biomed-sul/leadscout/pkg/serper"
)

type fakeStore struct {
	mu         sync.Mutex
	locs       []model.Location
	logged     map[string]model.SearchLogEntry
	inserted   []model.Establishment
	keys       map[string]bool
	rejections []model.RejectedResult
	insertErr  error
}

func logKey(locationID int64, keyword string, source model.Source) string {
	return fmt.Sprintf("%d|%s|%s", locationID, keyword, source)
}

func (s *fakeStore) ListLocations(context.Context) ([]model.Location, error) {
	return s.locs, nil
}

func (s *fakeStore) SearchLogged(_ context.Context, locationID int64, keyword string, source model.Source) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.logged[logKey(locationID, keyword, source)]
	return ok, nil
}

func (s *fakeStore) LogSearch(_ context.Context, e model.SearchLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logged == nil {
		s.logged = map[string]model.SearchLogEntry{}
	}
	s.logged[logKey(e.LocationID, e.Keyword, e.Source)] = e
	return nil
}

func (s *fakeStore) InsertEstablishment(_ context.Context, e *model.Establishment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return false, s.insertErr
	}
	if s.keys == nil {
		s.keys = map[string]bool{}
	}
	key := fmt.Sprintf("%s|%d", e.NameNormalized, e.LocationID)
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	e.ID = int64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, *e)
	return true, nil
}

func (s *fakeStore) InsertRejection(_ context.Context, r model.RejectedResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections = append(s.rejections, r)
	return nil
}

// fakeClient answers every query with the same results and records the
// query texts in call order.
type fakeClient struct {
	mu      sync.Mutex
	queries []string
	results []serper.Result
	err     error
}

func (c *fakeClient) Search(_ context.Context, q serper.Query) ([]serper.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, q.Text)
	if c.err != nil {
		return nil, c.err
	}
	return c.results, nil
}

func (c *fakeClient) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

var errBoom = eris.New("boom")
