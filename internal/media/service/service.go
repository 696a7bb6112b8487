package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/vod-platform/internal/media/artifacts"
	"github.com/romariotrain/vod-platform/internal/media/models"
	"github.com/romariotrain/vod-platform/internal/media/repository"
)

type Classifier interface {
	Classify(ctx context.Context, path string) (models.MediaKind, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, m *models.Media) error
}

// SearchIndex is the part of the index the request path writes directly.
type SearchIndex interface {
	UpdateTitle(ctx context.Context, id uuid.UUID, owner, title string) error
	DeleteMedia(ctx context.Context, id uuid.UUID, owner string) error
}

type Deps struct {
	Repo       repository.MediaRepository
	Tree       *artifacts.Tree
	Classifier Classifier
	Dispatcher Dispatcher
	Index      SearchIndex
	Logger     zerolog.Logger
}

type Service struct {
	repo       repository.MediaRepository
	tree       *artifacts.Tree
	classifier Classifier
	dispatcher Dispatcher
	index      SearchIndex
	logger     zerolog.Logger

	clock func() time.Time
	idGen func() uuid.UUID
}

func New(d Deps) *Service {
	return &Service{
		repo:       d.Repo,
		tree:       d.Tree,
		classifier: d.Classifier,
		dispatcher: d.Dispatcher,
		index:      d.Index,
		logger:     d.Logger.With().Str("component", "media_service").Logger(),
		clock:      time.Now,
		idGen:      uuid.New,
	}
}

type IngestRequest struct {
	Owner    string
	Filename string
	Title    string
	File     io.Reader
}

// Ingest stores an upload, records it as created and dispatches its transcode job.
// On ErrDispatch the returned record is still valid: it stays created and its raw
// upload is kept so the startup recovery can dispatch it again.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*models.Media, error) {
	if req.File == nil || req.Filename == "" {
		return nil, ErrMissingFile
	}
	if !AllowedExtension(req.Filename) {
		return nil, ErrUnsupportedType
	}
	title, err := ValidateTitle(req.Title)
	if err != nil {
		return nil, err
	}

	id := s.idGen()
	if _, err := s.tree.MediaDir(req.Owner, id); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}

	log := s.logger.With().Str("media_uuid", id.String()).Str("owner", req.Owner).Logger()

	path := s.tree.UploadPath(id)
	if err := saveUpload(path, req.File); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	kind, err := s.classifier.Classify(ctx, path)
	if err != nil {
		s.discardUpload(id, log)
		log.Info().Err(err).Str("filename", req.Filename).Msg("upload rejected by probe")
		return nil, fmt.Errorf("%w: %v", ErrUnclassifiable, err)
	}

	now := s.clock().UTC()
	m := &models.Media{
		UUID:          id,
		OwnerIdentity: req.Owner,
		Kind:          kind,
		Title:         title,
		Status:        models.CreatedStatus,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		s.discardUpload(id, log)
		return nil, fmt.Errorf("store record: %w", err)
	}
	log.Info().Str("kind", string(kind)).Msg("upload created")

	if err := s.dispatcher.Dispatch(ctx, m); err != nil {
		log.Error().Err(err).Msg("dispatch failed, left for recovery")
		return m, fmt.Errorf("%w: %v", ErrDispatch, err)
	}
	return m, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	if id == uuid.Nil {
		return nil, models.ErrInvalidArgument
	}
	return s.repo.GetByUUID(ctx, id)
}

// EditTitle updates the index first and then the store. The store is authoritative:
// an index failure is logged and the store update still happens.
func (s *Service) EditTitle(ctx context.Context, owner string, id uuid.UUID, title string) error {
	title, err := ValidateTitle(title)
	if err != nil {
		return err
	}

	if err := s.index.UpdateTitle(ctx, id, owner, title); err != nil {
		s.logger.Warn().Err(err).Str("media_uuid", id.String()).Msg("index title update failed")
	}

	return s.repo.UpdateTitle(ctx, id, owner, title)
}

// Delete removes artifacts, the index document and the record. Only the owner may
// delete; anyone else sees models.ErrNotFound.
func (s *Service) Delete(ctx context.Context, owner string, id uuid.UUID) error {
	m, err := s.repo.GetByUUID(ctx, id)
	if err != nil {
		return err
	}
	if !m.OwnedBy(owner) {
		return models.ErrNotFound
	}

	log := s.logger.With().Str("media_uuid", id.String()).Str("owner", owner).Logger()

	if err := s.tree.RemoveMedia(owner, id); err != nil {
		log.Warn().Err(err).Msg("failed to remove artifacts")
	}

	if err := s.index.DeleteMedia(ctx, id, owner); err != nil {
		log.Warn().Err(err).Msg("index delete failed")
	}

	if err := s.repo.Delete(ctx, id, owner); err != nil {
		return err
	}
	// An unfinished record keeps its input until the row is gone so the worker can still run it.
	s.discardUpload(id, log)
	log.Info().Msg("media deleted")
	return nil
}

// Playback resolves the artifact directory of a record.
func (s *Service) Playback(ctx context.Context, id uuid.UUID) (fs.FS, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	fsys, err := s.tree.MediaFS(m.OwnerIdentity, m.UUID)
	if errors.Is(err, artifacts.ErrInvalidOwner) {
		return nil, models.ErrNotFound
	}
	return fsys, err
}

func (s *Service) discardUpload(id uuid.UUID, log zerolog.Logger) {
	if err := s.tree.RemoveUpload(id); err != nil {
		log.Warn().Err(err).Msg("failed to remove raw upload")
	}
}

func saveUpload(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
