package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/kpm34/cfbdraft/go/internal/models"
)

// ScheduleLoader reads a persisted schedule.
type ScheduleLoader interface {
	GetSchedule(ctx context.Context, draftID uuid.UUID) ([]models.PickSlot, error)
}

// Cache keeps recently used schedules in memory. Schedules never change after
// a draft starts so entries are never invalidated, only evicted.
type Cache struct {
	loader ScheduleLoader
	cache  *lru.ARCCache
}

// NewCache wraps loader with an ARC cache of the given size.
func NewCache(loader ScheduleLoader, size int) (*Cache, error) {
	c, err := lru.NewARC(size)
	if err != nil {
		return nil, fmt.Errorf("lru new instance of arc cache: %w", err)
	}
	return &Cache{loader: loader, cache: c}, nil
}

// Schedule returns the draft's schedule, loading it on a miss. Empty
// schedules (draft not started yet) are not cached.
func (c *Cache) Schedule(ctx context.Context, draftID uuid.UUID) ([]models.PickSlot, error) {
	if v, ok := c.cache.Get(draftID); ok {
		return v.([]models.PickSlot), nil
	}
	slots, err := c.loader.GetSchedule(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if len(slots) > 0 {
		c.cache.Add(draftID, slots)
	}
	return slots, nil
}

// Len is the number of cached schedules.
func (c *Cache) Len() int {
	return c.cache.Len()
}
