package services

import (
	"context"
	"errors"
	"fmt"

	"gastos/internal/cache"
	"gastos/internal/core"
)

// History serves closed-month archives. Lookups by month go through an LRU
// since archives never change once written.
type History struct {
	s     *Session
	cache *cache.LRU[core.AccountingMonth, core.MonthlyArchive]
}

func NewHistory(s *Session, c *cache.LRU[core.AccountingMonth, core.MonthlyArchive]) *History {
	if c == nil {
		c = cache.NewLRU[core.AccountingMonth, core.MonthlyArchive](24, 0)
	}
	return &History{s: s, cache: c}
}

// List returns every archive, most recent closure first.
func (h *History) List() []core.MonthlyArchive {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return append([]core.MonthlyArchive(nil), h.s.history...)
}

// Archive returns the archive of month, or an error wrapping ErrNotFound.
func (h *History) Archive(ctx context.Context, month core.AccountingMonth) (core.MonthlyArchive, error) {
	if a, ok := h.cache.Get(month); ok {
		return a, nil
	}

	h.s.mu.Lock()
	for _, a := range h.s.history {
		if a.Month == month {
			h.s.mu.Unlock()
			h.cache.Set(month, a)
			return a, nil
		}
	}
	h.s.mu.Unlock()

	a, err := h.s.repo.GetArchive(ctx, month)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return core.MonthlyArchive{}, fmt.Errorf("archive %s: %w", month, core.ErrNotFound)
	case err != nil:
		return core.MonthlyArchive{}, fmt.Errorf("archive %s: %w: %w", month, core.ErrStorage, err)
	}
	h.cache.Set(month, a)
	return a, nil
}

// Cache exposes the archive cache for registration with a cache.Manager.
func (h *History) Cache() *cache.LRU[core.AccountingMonth, core.MonthlyArchive] {
	return h.cache
}
