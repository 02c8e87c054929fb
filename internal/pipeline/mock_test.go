package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/mock"

	"github.com/biomed-sul/leadscout/internal/dedupe"
	"github.com/biomed-sul/leadscout/internal/directory"
	"github.com/biomed-sul/leadscout/internal/enrich"
	"github.com/biomed-sul/leadscout/internal/geo"
	"github.com/biomed-sul/leadscout/internal/model"
	"github.com/biomed-sul/leadscout/internal/search"
)

// calls records stage invocations in order across every mock.
type calls []string

func (c *calls) add(name string) { *c = append(*c, name) }

type mockStore struct {
	mock.Mock
	order *calls
}

func (m *mockStore) EnsureSchema(ctx context.Context) error {
	m.order.add("schema")
	return m.Called(ctx).Error(0)
}

func (m *mockStore) ListLocations(ctx context.Context) ([]model.Location, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Location), args.Error(1)
}

type mockLoader struct {
	mock.Mock
	order *calls
}

func (m *mockLoader) Load(ctx context.Context) (*geo.LoadResult, error) {
	m.order.add("locations")
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geo.LoadResult), args.Error(1)
}

type mockDirectory struct {
	mock.Mock
	order *calls
}

func (m *mockDirectory) Collect(ctx context.Context) (*directory.Result, error) {
	m.order.add("directory")
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*directory.Result), args.Error(1)
}

type mockSearch struct {
	mock.Mock
	order *calls
}

func (m *mockSearch) Collect(ctx context.Context) (*search.Result, error) {
	m.order.add("search")
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*search.Result), args.Error(1)
}

type mockDedupe struct {
	mock.Mock
	order *calls
}

func (m *mockDedupe) Run(ctx context.Context) (*dedupe.Report, error) {
	m.order.add("dedupe")
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dedupe.Report), args.Error(1)
}

type mockEnricher struct {
	mock.Mock
	order *calls
}

func (m *mockEnricher) Run(ctx context.Context) (*enrich.Result, error) {
	m.order.add("enrich")
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*enrich.Result), args.Error(1)
}

var errBoom = eris.New("boom")
