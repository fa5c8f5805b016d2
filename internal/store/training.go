package store

import "time"

// TrainingFile is metadata for an uploaded training document. Contents are
// not retained; the list is a demo affordance and resets with the process.
type TrainingFile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

func (s *Store) AddTrainingFile(name, mimeType string, size int64) TrainingFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := TrainingFile{
		ID:         shortID("TF", 8),
		Name:       name,
		Type:       mimeType,
		Size:       size,
		UploadedAt: s.now(),
	}
	s.files = append(s.files, f)
	return f
}

func (s *Store) ListTrainingFiles() []TrainingFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TrainingFile, len(s.files))
	copy(out, s.files)
	return out
}

func (s *Store) RemoveTrainingFile(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.files {
		if f.ID == id {
			s.files = append(s.files[:i], s.files[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *Store) ClearTrainingFiles() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = nil
}
