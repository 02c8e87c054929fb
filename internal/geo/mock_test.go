package geo

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/biomed-sul/leadscout/internal/model"
	"github.com/biomed-sul/leadscout/pkg/ibge"
)

type fakeIBGE struct {
	mu        sync.Mutex
	munis     map[string][]ibge.Municipality
	pops      map[string]map[int64]int64
	muniErr   map[string]error
	popErr    map[string]error
	popCalls  map[string]int
	failFirst map[string]error // returned once by Municipalities, then cleared
}

func (f *fakeIBGE) Municipalities(_ context.Context, uf string) ([]ibge.Municipality, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFirst[uf]; ok {
		delete(f.failFirst, uf)
		return nil, err
	}
	if err := f.muniErr[uf]; err != nil {
		return nil, err
	}
	return f.munis[uf], nil
}

func (f *fakeIBGE) Populations(_ context.Context, uf string) (map[int64]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.popCalls == nil {
		f.popCalls = map[string]int{}
	}
	f.popCalls[uf]++
	if err := f.popErr[uf]; err != nil {
		return nil, err
	}
	return f.pops[uf], nil
}

type fakeLocationStore struct {
	upserted []model.Location
	coords   map[int64][2]float64
	known    map[int64]bool
	err      error
}

func (s *fakeLocationStore) UpsertLocations(_ context.Context, locs []model.Location) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.upserted = append(s.upserted, locs...)
	return int64(len(locs)), nil
}

func (s *fakeLocationStore) SetLocationCoordinates(_ context.Context, id int64, lat, lng float64) (bool, error) {
	if !s.known[id] {
		return false, nil
	}
	if s.coords == nil {
		s.coords = map[int64][2]float64{}
	}
	s.coords[id] = [2]float64{lat, lng}
	return true, nil
}

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

var errBoom = eris.New("boom")
