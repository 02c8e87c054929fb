package directory

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/biomed-sul/leadscout/internal/model"
)

type fakeFetcher struct {
	body string
	err  error
}

func (f fakeFetcher) Download(context.Context, string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

type fakeStore struct {
	locs      []model.Location
	inserted  []model.Establishment
	keys      map[string]bool
	listErr   error
	insertErr error
}

func (s *fakeStore) ListLocations(context.Context) ([]model.Location, error) {
	return s.locs, s.listErr
}

func (s *fakeStore) InsertEstablishment(_ context.Context, e *model.Establishment) (bool, error) {
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

var errBoom = eris.New("boom")
