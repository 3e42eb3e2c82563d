package species

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pogotraders/matchbot/matchbot/database/models"
	"github.com/pogotraders/matchbot/matchbot/database/repositories"
	"github.com/sahilm/fuzzy"
)

const (
	idCacheSize = 2048
	maxResults  = 10
)

// searchItems implements fuzzy.Source over the loaded catalog.
type searchItems []*models.Species

func (items searchItems) Len() int { return len(items) }

func (items searchItems) String(i int) string {
	s := items[i]
	if s.Form != "" {
		return s.Name + " " + s.Form
	}
	return s.Name
}

// Catalog resolves free-text species names for the listing collaborator.
// Matching itself never touches names; it only compares the ids this
// catalog hands out.
type Catalog struct {
	repo repositories.SpeciesRepository

	mu    sync.RWMutex
	items searchItems

	byID *lru.Cache
}

func NewCatalog(repo repositories.SpeciesRepository) *Catalog {
	cache, _ := lru.New(idCacheSize)
	return &Catalog{repo: repo, byID: cache}
}

// Refresh reloads the searchable catalog from the store.
func (c *Catalog) Refresh(ctx context.Context) error {
	all, err := c.repo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh species catalog: %w", err)
	}

	c.mu.Lock()
	c.items = all
	c.mu.Unlock()
	return nil
}

// GetByID returns one species, served from cache when possible.
func (c *Catalog) GetByID(ctx context.Context, id int64) (*models.Species, error) {
	if cached, ok := c.byID.Get(id); ok {
		return cached.(*models.Species), nil
	}

	s, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.byID.Add(id, s)
	return s, nil
}

// Resolve finds species by free-text name: exact (case-insensitive) matches
// win outright, otherwise ranked fuzzy matches are returned.
func (c *Catalog) Resolve(ctx context.Context, query string) ([]*models.Species, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	c.mu.RLock()
	items := c.items
	c.mu.RUnlock()

	if len(items) == 0 {
		if err := c.Refresh(ctx); err != nil {
			return nil, err
		}
		c.mu.RLock()
		items = c.items
		c.mu.RUnlock()
	}

	var exact []*models.Species
	for _, s := range items {
		if strings.EqualFold(s.Name, query) {
			exact = append(exact, s)
		}
	}
	if len(exact) > 0 {
		return exact, nil
	}

	matches := fuzzy.FindFrom(query, items)
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}

	results := make([]*models.Species, 0, len(matches))
	for _, m := range matches {
		results = append(results, items[m.Index])
	}
	return results, nil
}
