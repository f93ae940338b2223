package tasks

import (
	"slices"
	"strings"

	"github.com/chepyr/go-todo-tracker/internal/models"
)

// Filter returns the tasks matching f, in input order.
func (s *Service) Filter(tasks []models.Task, f models.Filter) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Search returns the tasks whose title contains query, ignoring case. The
// query is normalized like a title. A blank query returns every task.
func (s *Service) Search(tasks []models.Task, query string) []models.Task {
	q := NormalizeTitle(query)
	if q == "" {
		return slices.Clone(tasks)
	}
	q = searchKey(q)

	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if strings.Contains(searchKey(t.Title), q) {
			out = append(out, t)
		}
	}
	return out
}

// SortByCreation returns a copy ordered by CreatedAt. Equal timestamps keep
// their input order in both directions.
func (s *Service) SortByCreation(tasks []models.Task, descending bool) []models.Task {
	out := slices.Clone(tasks)
	slices.SortStableFunc(out, func(a, b models.Task) int {
		c := a.CreatedAt.Compare(b.CreatedAt)
		if descending {
			return -c
		}
		return c
	})
	return out
}

// Stats counts tasks by status. CompletionRate is rounded half up.
func (s *Service) Stats(tasks []models.Task) models.TaskStats {
	stats := models.TaskStats{Total: len(tasks)}
	for _, t := range tasks {
		if t.IsCompleted() {
			stats.Completed++
		}
	}
	stats.Pending = stats.Total - stats.Completed
	if stats.Total > 0 {
		stats.CompletionRate = (200*stats.Completed + stats.Total) / (2 * stats.Total)
	}
	return stats
}
