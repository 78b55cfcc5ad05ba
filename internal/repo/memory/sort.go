package memory

import (
	"sort"

	"github.com/hamed0406/uptimeadvisor/internal/domain"
)

// newest first, like the SQL adapters
func sortTargets(ts []*domain.Target) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].ID > ts[j].ID
		}
		return ts[i].CreatedAt.After(ts[j].CreatedAt)
	})
}
