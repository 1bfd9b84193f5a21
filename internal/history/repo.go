package history

import "context"

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Repo persists extraction history.
type Repo interface {
	Append(ctx context.Context, rec Record) error
	ListRecent(ctx context.Context, limit int) ([]Record, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
