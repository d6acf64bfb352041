package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/groundwork/internal/api/middleware"
	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Ingest(ctx context.Context, input service.IngestInput) (*service.IngestResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IngestResult), args.Error(1)
}

func (m *MockDocumentService) GetDocument(ctx context.Context, scope domain.AccessScope, docID string) (*domain.Document, error) {
	args := m.Called(ctx, scope, docID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) DeleteDocument(ctx context.Context, scope domain.AccessScope, docID string) error {
	args := m.Called(ctx, scope, docID)
	return args.Error(0)
}

func (m *MockDocumentService) Lineage(ctx context.Context, scope domain.AccessScope, docID, cursor string, limit int) (*service.LineagePage, error) {
	args := m.Called(ctx, scope, docID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.LineagePage), args.Error(1)
}

type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) Ask(ctx context.Context, in service.AskInput) (*domain.QueryResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.QueryResult), args.Error(1)
}

type MockReplayService struct {
	mock.Mock
}

func (m *MockReplayService) Replay(ctx context.Context, in service.ReplayInput) (*domain.ReplayRun, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReplayRun), args.Error(1)
}

func (m *MockReplayService) Get(ctx context.Context, orgID, runID string) (*domain.ReplayRun, error) {
	args := m.Called(ctx, orgID, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReplayRun), args.Error(1)
}

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) CreateOrg(ctx context.Context, name string) (*domain.Organization, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Organization), args.Error(1)
}

func (m *MockAuthService) CreateAPIKey(ctx context.Context, orgID, name string, opts service.KeyOptions) (string, error) {
	args := m.Called(ctx, orgID, name, opts)
	return args.String(0), args.Error(1)
}

var testScope = domain.AccessScope{OrgID: "org-1", Clearance: domain.ClassificationInternal}

func withPrincipal(r *http.Request, canIngest bool) *http.Request {
	key := &domain.APIKey{
		ID:        "key-1",
		OrgID:     testScope.OrgID,
		Clearance: testScope.Clearance,
		CanIngest: canIngest,
	}
	return r.WithContext(context.WithValue(r.Context(), middleware.PrincipalKey, key))
}
