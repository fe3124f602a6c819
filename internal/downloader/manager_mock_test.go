package downloader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"datastore-downloader/internal/core"
	"datastore-downloader/internal/database"
	"datastore-downloader/internal/datastore"
	"datastore-downloader/internal/downloader/mocks"
	"datastore-downloader/internal/query"
	"datastore-downloader/pkg/models"
)

func TestManager_NewReusesDerivative(t *testing.T) {
	ctrl := gomock.NewController(t)
	db := mocks.NewMockDatabaseInterface(ctrl)
	resolver := mocks.NewMockResolverInterface(ctrl)

	q, err := query.New(nil, "", map[string]int64{"specimens": 10})
	require.NoError(t, err)

	resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(q, nil)
	db.EXPECT().GetDerivativeByHash(gomock.Any()).Return(&models.DerivativeFileRecord{ID: 7, CoreID: 3}, nil)
	db.EXPECT().GetCoreRecord(int64(3)).Return(&models.CoreFileRecord{ID: 3}, nil)
	db.EXPECT().CreateRequest(gomock.Any()).DoAndReturn(func(r *models.DownloadRequest) error {
		require.Equal(t, models.StateInitiated, r.State)
		require.Equal(t, "direct", r.ServerArgs.Type)
		require.Equal(t, "none", r.NotifierArgs.Type)
		return nil
	})

	manager := NewManager(Config{}, Deps{DB: db, Resolver: resolver})
	request, err := manager.New(context.Background(), Args{File: DerivativeArgs{Format: "CSV"}})
	require.NoError(t, err)
	require.Equal(t, int64(3), request.CoreID)
	require.Equal(t, int64(7), request.DerivativeID)
	require.NotEmpty(t, request.ID)
}

func TestManager_NewReusesCore(t *testing.T) {
	ctrl := gomock.NewController(t)
	db := mocks.NewMockDatabaseInterface(ctrl)
	resolver := mocks.NewMockResolverInterface(ctrl)

	q, err := query.New(map[string]any{"search": "moth"}, "", map[string]int64{"specimens": 10})
	require.NoError(t, err)

	resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(q, nil)
	db.EXPECT().GetDerivativeByHash(gomock.Any()).Return(nil, database.ErrNotFound)
	db.EXPECT().FindCoreRecord(q.Hash(), q.ResourceHash()).Return(&models.CoreFileRecord{ID: 4}, nil)
	db.EXPECT().CreateDerivativeRecord(gomock.Any()).DoAndReturn(func(d *models.DerivativeFileRecord) error {
		require.Equal(t, int64(4), d.CoreID)
		require.Equal(t, "json", d.Format)
		require.Empty(t, d.Filepath)
		d.ID = 9
		return nil
	})
	db.EXPECT().CreateRequest(gomock.Any()).Return(nil)

	manager := NewManager(Config{}, Deps{DB: db, Resolver: resolver})
	request, err := manager.New(context.Background(), Args{File: DerivativeArgs{Format: "json"}})
	require.NoError(t, err)
	require.Equal(t, int64(4), request.CoreID)
	require.Equal(t, int64(9), request.DerivativeID)
}

func TestManager_RunMissingRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	db := mocks.NewMockDatabaseInterface(ctrl)
	db.EXPECT().GetRequest("nope").Return(nil, database.ErrNotFound)

	manager := NewManager(Config{}, Deps{DB: db})
	require.ErrorIs(t, manager.Run(context.Background(), "nope"), database.ErrNotFound)
}

func TestManager_RunMissingCore(t *testing.T) {
	ctrl := gomock.NewController(t)
	db := mocks.NewMockDatabaseInterface(ctrl)

	request := &models.DownloadRequest{ID: "req-1", CoreID: 3, DerivativeID: 7, State: models.StateInitiated}
	db.EXPECT().GetRequest("req-1").Return(request, nil)
	db.EXPECT().GetCoreRecord(int64(3)).Return(nil, database.ErrNotFound)
	db.EXPECT().UpdateRequest(gomock.Any()).DoAndReturn(func(r *models.DownloadRequest) error {
		require.Equal(t, models.StateFailed, r.State)
		require.Equal(t, "initiated: database.ErrNotFound: not found", r.Message)
		return nil
	})

	manager := NewManager(Config{}, Deps{DB: db})
	require.ErrorIs(t, manager.Run(context.Background(), "req-1"), database.ErrNotFound)
}

func TestManager_RunGeneratorFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	db := mocks.NewMockDatabaseInterface(ctrl)
	generator := mocks.NewMockGeneratorInterface(ctrl)
	archiver := mocks.NewMockArchiverInterface(ctrl)

	request := &models.DownloadRequest{ID: "req-1", CoreID: 3, DerivativeID: 7, State: models.StateInitiated}
	db.EXPECT().GetRequest("req-1").Return(request, nil)
	db.EXPECT().GetCoreRecord(int64(3)).Return(&models.CoreFileRecord{ID: 3, ResourceVersions: map[string]int64{"specimens": 10}}, nil)
	db.EXPECT().GetDerivativeRecord(int64(7)).Return(&models.DerivativeFileRecord{ID: 7, Format: "csv"}, nil)

	var states []models.RequestState
	db.EXPECT().UpdateRequest(gomock.Any()).DoAndReturn(func(r *models.DownloadRequest) error {
		states = append(states, r.State)
		return nil
	}).AnyTimes()
	generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(context.DeadlineExceeded)

	manager := NewManager(Config{}, Deps{DB: db, Generator: generator, Archiver: archiver})
	err := manager.Run(context.Background(), "req-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, []models.RequestState{models.StateCoreGen, models.StateFailed}, states)
	require.Equal(t, "gen_core: context.deadlineExceededError: context deadline exceeded", request.Message)
}

func TestManager_NewDuplicateDerivative(t *testing.T) {
	ctrl := gomock.NewController(t)
	db := mocks.NewMockDatabaseInterface(ctrl)
	resolver := mocks.NewMockResolverInterface(ctrl)

	q, err := query.New(nil, "", map[string]int64{"specimens": 10})
	require.NoError(t, err)

	resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(q, nil)
	gomock.InOrder(
		db.EXPECT().GetDerivativeByHash(gomock.Any()).Return(nil, database.ErrNotFound),
		db.EXPECT().FindCoreRecord(q.Hash(), q.ResourceHash()).Return(&models.CoreFileRecord{ID: 4}, nil),
		db.EXPECT().CreateDerivativeRecord(gomock.Any()).Return(fmt.Errorf("failed to create derivative record: %w", database.ErrDuplicate)),
		db.EXPECT().GetDerivativeByHash(gomock.Any()).Return(&models.DerivativeFileRecord{ID: 11, CoreID: 5}, nil),
		db.EXPECT().GetCoreRecord(int64(5)).Return(&models.CoreFileRecord{ID: 5}, nil),
		db.EXPECT().CreateRequest(gomock.Any()).Return(nil),
	)

	manager := NewManager(Config{}, Deps{DB: db, Resolver: resolver})
	request, err := manager.New(context.Background(), Args{File: DerivativeArgs{Format: "csv"}})
	require.NoError(t, err)
	require.Equal(t, int64(5), request.CoreID)
	require.Equal(t, int64(11), request.DerivativeID)
}

func TestManager_NewRawKeepsUnversionedResources(t *testing.T) {
	ctrl := gomock.NewController(t)
	db := mocks.NewMockDatabaseInterface(ctrl)
	resolver := mocks.NewMockResolverInterface(ctrl)

	q, err := query.New(nil, "", map[string]int64{"rawresource1": 10, "externalres2": models.NotVersioned})
	require.NoError(t, err)

	resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, args query.Args) (*query.Query, error) {
		require.True(t, args.AllowNonDatastore)
		return q, nil
	})
	db.EXPECT().GetDerivativeByHash(gomock.Any()).Return(&models.DerivativeFileRecord{ID: 7, CoreID: 3}, nil)
	db.EXPECT().GetCoreRecord(int64(3)).Return(&models.CoreFileRecord{ID: 3}, nil)
	db.EXPECT().CreateRequest(gomock.Any()).Return(nil)

	manager := NewManager(Config{}, Deps{DB: db, Resolver: resolver})
	_, err = manager.New(context.Background(), Args{File: DerivativeArgs{Format: "raw"}})
	require.NoError(t, err)
}

func TestManager_RunPanicMarksFailed(t *testing.T) {
	ctrl := gomock.NewController(t)
	db := mocks.NewMockDatabaseInterface(ctrl)
	generator := mocks.NewMockGeneratorInterface(ctrl)

	request := &models.DownloadRequest{ID: "req-1", CoreID: 3, DerivativeID: 7, State: models.StateInitiated}
	db.EXPECT().GetRequest("req-1").Return(request, nil)
	db.EXPECT().GetCoreRecord(int64(3)).Return(&models.CoreFileRecord{ID: 3, ResourceVersions: map[string]int64{"specimens": 10}}, nil)
	db.EXPECT().GetDerivativeRecord(int64(7)).Return(&models.DerivativeFileRecord{ID: 7, Format: "csv"}, nil)
	db.EXPECT().UpdateRequest(gomock.Any()).Return(nil).AnyTimes()
	generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, *query.Query, *models.CoreFileRecord, core.Progress) error {
			panic("index out of range")
		})

	manager := NewManager(Config{}, Deps{DB: db, Generator: generator})
	var err error
	require.NotPanics(t, func() {
		err = manager.Run(context.Background(), "req-1")
	})
	require.ErrorIs(t, err, ErrRunPanicked)
	require.Equal(t, models.StateFailed, request.State)
	require.Equal(t, "gen_core: downloader.ErrRunPanicked: download run panicked: index out of range", request.Message)
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "sentinel", err: fmt.Errorf("resource x: %w", ErrNoRawFile), want: "downloader.ErrNoRawFile"},
		{name: "database sentinel", err: fmt.Errorf("failed to load: %w", database.ErrNotFound), want: "database.ErrNotFound"},
		{name: "typed error", err: fmt.Errorf("failed to open: %w", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}), want: "*fs.PathError"},
		{name: "api error", err: fmt.Errorf("scan failed: %w", &datastore.APIError{}), want: "*datastore.APIError"},
		{name: "deadline", err: context.DeadlineExceeded, want: "context.deadlineExceededError"},
		{name: "joined", err: fmt.Errorf("%w: %w", errors.New("invalid"), &datastore.APIError{}), want: "*datastore.APIError"},
		{name: "plain", err: errors.New("connection reset"), want: "error"},
		{name: "wrapped plain", err: fmt.Errorf("outer: %w", errors.New("inner")), want: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, errorType(tt.err))
		})
	}
}
