package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/romariotrain/vod-platform/internal/media/models"
)

type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) Create(ctx context.Context, media *models.Media) error {
	args := m.Called(ctx, media)
	return args.Error(0)
}

func (m *StoreMock) GetByUUID(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.Media), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) AdvanceStatus(ctx context.Context, id uuid.UUID, to models.Status) (bool, error) {
	args := m.Called(ctx, id, to)
	return args.Bool(0), args.Error(1)
}

func (m *StoreMock) MarkReady(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *StoreMock) UpdateTitle(ctx context.Context, id uuid.UUID, owner, title string) error {
	args := m.Called(ctx, id, owner, title)
	return args.Error(0)
}

func (m *StoreMock) Delete(ctx context.Context, id uuid.UUID, owner string) error {
	args := m.Called(ctx, id, owner)
	return args.Error(0)
}

func (m *StoreMock) ListUnfinished(ctx context.Context) ([]*models.Media, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]*models.Media), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Media, error) {
	args := m.Called(ctx, ids)
	if v := args.Get(0); v != nil {
		return v.(map[uuid.UUID]*models.Media), args.Error(1)
	}
	return nil, args.Error(1)
}

type ClassifierMock struct {
	mock.Mock
}

func (m *ClassifierMock) Classify(ctx context.Context, path string) (models.MediaKind, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(models.MediaKind), args.Error(1)
}

type DispatcherMock struct {
	mock.Mock
}

func (m *DispatcherMock) Dispatch(ctx context.Context, media *models.Media) error {
	args := m.Called(ctx, media)
	return args.Error(0)
}

type IndexMock struct {
	mock.Mock
}

func (m *IndexMock) UpdateTitle(ctx context.Context, id uuid.UUID, owner, title string) error {
	args := m.Called(ctx, id, owner, title)
	return args.Error(0)
}

func (m *IndexMock) DeleteMedia(ctx context.Context, id uuid.UUID, owner string) error {
	args := m.Called(ctx, id, owner)
	return args.Error(0)
}
