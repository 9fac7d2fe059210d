package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	app_errors "chatline/internal/errors"
	"chatline/internal/llm"
	"chatline/internal/model"
)

// CatalogFetcher loads the remote model catalog.
type CatalogFetcher interface {
	Fetch(ctx context.Context, frontierAccess bool) (*llm.Catalog, error)
}

// ModelService handles the remote model catalog and the selected model.
type ModelService struct {
	fetcher CatalogFetcher
	session *Session
	caps    model.Capabilities

	mu      sync.RWMutex
	catalog *llm.Catalog
}

func NewModelService(fetcher CatalogFetcher, session *Session, caps model.Capabilities) *ModelService {
	return &ModelService{fetcher: fetcher, session: session, caps: caps}
}

// Refresh fetches the catalog and selects its default model unless the
// current selection is still offered.
func (s *ModelService) Refresh(ctx context.Context) (*llm.Catalog, error) {
	cat, err := s.fetcher.Fetch(ctx, s.caps.FrontierAccess)
	if err != nil {
		return nil, fmt.Errorf("could not fetch model catalog: %w", err)
	}
	s.SetCatalog(cat)
	slog.InfoContext(ctx, "Model catalog loaded", "models", len(cat.Models), "default", cat.Default)
	return cat, nil
}

// SetCatalog replaces the catalog and keeps the selection valid.
func (s *ModelService) SetCatalog(cat *llm.Catalog) {
	s.mu.Lock()
	s.catalog = cat
	s.mu.Unlock()

	current := s.session.Selection().ModelID
	if cat != nil && !cat.Contains(current) {
		s.session.SetModel(cat.Default)
	}
}

// Catalog returns the last fetched catalog, or an empty one.
func (s *ModelService) Catalog() *llm.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.catalog == nil {
		return &llm.Catalog{Models: []llm.CatalogModel{}}
	}
	return s.catalog
}

func (s *ModelService) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.Contains(id)
}

// Select makes id the remote model for the next generation.
func (s *ModelService) Select(id string) error {
	if id == "" {
		return fmt.Errorf("%w: model id is required", app_errors.ErrValidation)
	}
	s.mu.RLock()
	known := s.catalog == nil || s.catalog.Contains(id)
	s.mu.RUnlock()
	if !known {
		return fmt.Errorf("%w: model %q is not available", app_errors.ErrNotFound, id)
	}
	s.session.SetModel(id)
	return nil
}
