package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/virtual-ta/ta-backend/internal/logger"
	"github.com/virtual-ta/ta-backend/internal/store"
)

type ResourceInput struct {
	URL         string
	Title       string
	Description string
	Tags        []string
}

type ResourceService struct {
	store *store.SQLiteStore
	log   *logger.Logger
}

func NewResourceService(db *store.SQLiteStore, log *logger.Logger) *ResourceService {
	return &ResourceService{store: db, log: log}
}

// List returns all resources, or those whose tags contain tag.
func (s *ResourceService) List(ctx context.Context, tag string) ([]store.ExternalResource, error) {
	return s.store.ListResources(ctx, strings.TrimSpace(tag), 0)
}

func (s *ResourceService) Get(ctx context.Context, id int64) (*store.ExternalResource, error) {
	r, err := s.store.GetResource(ctx, id)
	return r, mapStoreErr(err, "resource", id)
}

func (s *ResourceService) Create(ctx context.Context, in ResourceInput) (*store.ExternalResource, error) {
	r := &store.ExternalResource{}
	if err := applyResource(r, in); err != nil {
		return nil, err
	}
	if err := s.store.CreateResource(ctx, r); err != nil {
		return nil, mapStoreErr(err, "resource", r.URL)
	}
	s.log.Info("Resource created", "resource_id", r.ID, "url", r.URL)
	return r, nil
}

func (s *ResourceService) Update(ctx context.Context, id int64, in ResourceInput) (*store.ExternalResource, error) {
	r := &store.ExternalResource{ID: id}
	if err := applyResource(r, in); err != nil {
		return nil, err
	}
	if err := s.store.UpdateResource(ctx, r); err != nil {
		return nil, mapStoreErr(err, "resource", id)
	}
	return r, nil
}

func (s *ResourceService) Delete(ctx context.Context, id int64) error {
	return mapStoreErr(s.store.DeleteResource(ctx, id), "resource", id)
}

func applyResource(r *store.ExternalResource, in ResourceInput) error {
	r.URL = strings.TrimSpace(in.URL)
	if r.URL == "" {
		return fmt.Errorf("%w: url is required", ErrValidation)
	}
	r.Title = strings.TrimSpace(in.Title)
	r.Description = in.Description
	r.Tags = store.JoinTags(in.Tags)
	return nil
}
