package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/virtual-ta/ta-backend/internal/ingest"
	"github.com/virtual-ta/ta-backend/internal/logger"
	"github.com/virtual-ta/ta-backend/internal/store"
)

// ChapterInput carries the editable chapter fields. A nil IsActive means
// "active" on create and "unchanged" on update.
type ChapterInput struct {
	Name        string
	DisplayName string
	Description string
	FolderPath  string
	IsActive    *bool
}

type ChapterService struct {
	store     *store.SQLiteStore
	indexer   FolderIndexer
	indexRoot string
	log       *logger.Logger
}

func NewChapterService(db *store.SQLiteStore, indexer FolderIndexer, indexRoot string, log *logger.Logger) *ChapterService {
	return &ChapterService{store: db, indexer: indexer, indexRoot: indexRoot, log: log}
}

func (s *ChapterService) List(ctx context.Context, includeInactive bool) ([]store.Chapter, error) {
	return s.store.ListChapters(ctx, includeInactive)
}

// ActiveNames returns the names of active chapters in ascending order.
func (s *ChapterService) ActiveNames(ctx context.Context) ([]string, error) {
	chapters, err := s.store.ListChapters(ctx, false)
	if err != nil {
		return nil, err
	}
	return lo.Map(chapters, func(c store.Chapter, _ int) string { return c.Name }), nil
}

func (s *ChapterService) Get(ctx context.Context, id int64) (*store.Chapter, error) {
	c, err := s.store.GetChapterByID(ctx, id)
	return c, mapStoreErr(err, "chapter", id)
}

func (s *ChapterService) Create(ctx context.Context, in ChapterInput) (*store.Chapter, error) {
	c := &store.Chapter{IsActive: true}
	if err := s.apply(c, in); err != nil {
		return nil, err
	}
	if err := s.store.CreateChapter(ctx, c); err != nil {
		return nil, mapStoreErr(err, "chapter", c.Name)
	}
	s.log.Info("Chapter created", "chapter_id", c.ID, "name", c.Name, "folder", c.FolderPath)
	return c, nil
}

func (s *ChapterService) Update(ctx context.Context, id int64, in ChapterInput) (*store.Chapter, error) {
	c, err := s.store.GetChapterByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, "chapter", id)
	}
	if err := s.apply(c, in); err != nil {
		return nil, err
	}
	if err := s.store.UpdateChapter(ctx, c); err != nil {
		return nil, mapStoreErr(err, "chapter", c.Name)
	}
	return c, nil
}

func (s *ChapterService) apply(c *store.Chapter, in ChapterInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return fmt.Errorf("%w: chapter name is required", ErrValidation)
	}
	c.Name = name
	c.DisplayName = strings.TrimSpace(in.DisplayName)
	if c.DisplayName == "" {
		c.DisplayName = name
	}
	c.Description = in.Description
	c.FolderPath = strings.TrimSpace(in.FolderPath)
	if c.FolderPath == "" {
		c.FolderPath = filepath.Join(s.indexRoot, name)
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	return nil
}

func (s *ChapterService) Delete(ctx context.Context, id int64) error {
	return mapStoreErr(s.store.DeleteChapter(ctx, id), "chapter", id)
}

// Toggle flips the chapter's active flag.
func (s *ChapterService) Toggle(ctx context.Context, id int64) (*store.Chapter, error) {
	c, err := s.store.ToggleChapter(ctx, id)
	return c, mapStoreErr(err, "chapter", id)
}

// Reindex rebuilds the chapter's vector index from its folder and returns the
// number of chunks written. The chapter row is untouched when the folder is missing.
func (s *ChapterService) Reindex(ctx context.Context, id int64) (int, error) {
	c, err := s.store.GetChapterByID(ctx, id)
	if err != nil {
		return 0, mapStoreErr(err, "chapter", id)
	}
	info, err := os.Stat(c.FolderPath)
	if err != nil || !info.IsDir() {
		return 0, fmt.Errorf("%w: folder %s for chapter '%s' does not exist", ErrValidation, c.FolderPath, c.Name)
	}
	if s.indexer == nil {
		return 0, ErrUnavailable
	}

	n, err := s.indexer.IndexFolder(ctx, c.FolderPath)
	if errors.Is(err, ingest.ErrNoDocuments) {
		return 0, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: reindex of chapter '%s' failed: %w", ErrUpstream, c.Name, err)
	}
	if err := s.store.TouchChapter(ctx, c.ID); err != nil {
		return 0, mapStoreErr(err, "chapter", id)
	}
	s.log.Info("Chapter reindexed", "chapter_id", c.ID, "name", c.Name, "chunks", n)
	return n, nil
}

// Folders lists the directories under the index root as chapter folder paths.
func (s *ChapterService) Folders(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.indexRoot)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index root %s: %w", s.indexRoot, err)
	}
	folders := []string{}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			folders = append(folders, filepath.Join(s.indexRoot, e.Name()))
		}
	}
	return folders, nil
}

// orphanFoldersMigration names the one-time folder registration in the migrations table.
const orphanFoldersMigration = "register_orphan_folders"

// RegisterOrphanFolders registers every folder under the index root that no
// chapter points at, as an active chapter named after the folder. Folders whose
// name is already taken by another chapter are skipped. It runs once per
// database; later calls return nothing.
func (s *ChapterService) RegisterOrphanFolders(ctx context.Context) ([]store.Chapter, error) {
	applied, err := s.store.MigrationApplied(ctx, orphanFoldersMigration)
	if err != nil {
		return nil, err
	}
	if applied {
		s.log.Debug("Folder registration already applied, skipping")
		return nil, nil
	}

	folders, err := s.Folders(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.ListChapters(ctx, true)
	if err != nil {
		return nil, err
	}
	knownNames := lo.SliceToMap(existing, func(c store.Chapter) (string, bool) { return c.Name, true })
	knownFolders := lo.SliceToMap(existing, func(c store.Chapter) (string, bool) {
		return filepath.Clean(c.FolderPath), true
	})

	var registered []store.Chapter
	for _, folder := range folders {
		name := filepath.Base(folder)
		if knownFolders[filepath.Clean(folder)] {
			continue
		}
		if knownNames[name] {
			s.log.Warn("Skipping unregistered folder, chapter name already in use", "folder", folder, "name", name)
			continue
		}
		c := &store.Chapter{Name: name, DisplayName: name, FolderPath: folder, IsActive: true}
		if err := s.store.CreateChapter(ctx, c); err != nil {
			return registered, fmt.Errorf("failed to register folder %s: %w", folder, err)
		}
		knownNames[name] = true
		registered = append(registered, *c)
		s.log.Info("Registered chapter for existing folder", "name", name, "folder", folder)
	}
	if err := s.store.RecordMigration(ctx, orphanFoldersMigration); err != nil {
		return registered, err
	}
	return registered, nil
}

// ReindexByName indexes a registered chapter given its name.
func (s *ChapterService) ReindexByName(ctx context.Context, name string) (int, error) {
	c, err := s.store.GetChapterByName(ctx, name)
	if err != nil {
		return 0, mapStoreErr(err, "chapter", name)
	}
	return s.Reindex(ctx, c.ID)
}

// mapStoreErr translates store sentinels into service sentinels.
func mapStoreErr(err error, kind string, key any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s %v", ErrNotFound, kind, key)
	case errors.Is(err, store.ErrDuplicate):
		return fmt.Errorf("%w: %s %v", ErrConflict, kind, key)
	default:
		return err
	}
}
