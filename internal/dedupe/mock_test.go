package dedupe

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/biomed-sul/leadscout/internal/model"
)

type fakeStore struct {
	ests      []model.Establishment
	deletes   [][]int64
	listErr   error
	deleteErr error
}

func (s *fakeStore) ListEstablishments(context.Context) ([]model.Establishment, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]model.Establishment(nil), s.ests...), nil
}

func (s *fakeStore) DeleteEstablishments(_ context.Context, ids []int64) (int64, error) {
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	s.deletes = append(s.deletes, ids)
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.ests[:0]
	for _, e := range s.ests {
		if !drop[e.ID] {
			kept = append(kept, e)
		}
	}
	s.ests = kept
	return int64(len(ids)), nil
}

var errBoom = eris.New("boom")
