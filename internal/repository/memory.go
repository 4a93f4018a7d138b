package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"sessionbook/internal/models"
)

// MemoryStateRepository keeps state in process; it is the fallback when Redis is unavailable.
type MemoryStateRepository struct {
	slots      sync.Map // "provider:version:date" -> slotEntry
	versions   sync.Map // provider -> *atomic.Int64
	rateLimits sync.Map
	mu         sync.Mutex
	now        func() time.Time
}

type slotEntry struct {
	slots     []models.Slot
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{now: time.Now}
}

func (r *MemoryStateRepository) version(providerID int64) *atomic.Int64 {
	v, _ := r.versions.LoadOrStore(providerID, new(atomic.Int64))
	return v.(*atomic.Int64)
}

func memoryKey(providerID, version int64, date string) string {
	return fmt.Sprintf("%d:%d:%s", providerID, version, date)
}

func (r *MemoryStateRepository) SlotVersion(_ context.Context, providerID int64) (int64, error) {
	return r.version(providerID).Load(), nil
}

func (r *MemoryStateRepository) GetSlots(_ context.Context, providerID int64, date string) ([]models.Slot, bool, error) {
	key := memoryKey(providerID, r.version(providerID).Load(), date)
	val, ok := r.slots.Load(key)
	if !ok {
		return nil, false, nil
	}
	entry := val.(slotEntry)
	if r.now().After(entry.expiresAt) {
		r.slots.Delete(key)
		return nil, false, nil
	}
	return append([]models.Slot(nil), entry.slots...), true, nil
}

func (r *MemoryStateRepository) SetSlots(_ context.Context, providerID, version int64, date string, slots []models.Slot, ttl time.Duration) error {
	if version != r.version(providerID).Load() {
		return nil
	}
	r.slots.Store(memoryKey(providerID, version, date), slotEntry{
		slots:     append([]models.Slot(nil), slots...),
		expiresAt: r.now().Add(ttl),
	})
	return nil
}

func (r *MemoryStateRepository) Invalidate(_ context.Context, providerID int64) error {
	r.version(providerID).Add(1)
	prefix := fmt.Sprintf("%d:", providerID)
	r.slots.Range(func(k, _ any) bool {
		if key := k.(string); len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			r.slots.Delete(k)
		}
		return true
	})
	return nil
}

func (r *MemoryStateRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	val, ok := r.rateLimits.Load(key)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(key, entry)
	return entry.count <= limit, nil
}
