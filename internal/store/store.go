// Package store holds the in-memory task, working-hours, and training-file
// state behind the REST API. Instances own their data; nothing here is
// package-global and nothing persists across restarts.
package store

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	tasks []*Task
	hours []*HoursEntry
	files []TrainingFile

	now func() time.Time
}

func New() *Store {
	return &Store{now: time.Now}
}

func shortID(prefix string, n int) string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + hex[:n]
}
