// Package storage archives finished conversations to a Supabase storage
// bucket.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/TheShakSpace/Samyak/internal/agent"
)

type Archive struct {
	client *supabase.Client
	bucket string
	now    func() time.Time
}

// NewArchive builds a Supabase-backed conversation archive. All three
// settings are required.
func NewArchive(url, serviceRoleKey, bucket string) (*Archive, error) {
	if url == "" || serviceRoleKey == "" || bucket == "" {
		return nil, fmt.Errorf("supabase archive requires URL, service role key, and bucket")
	}
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Archive{client: client, bucket: bucket, now: time.Now}, nil
}

// SaveConversation uploads the session history as a JSON object keyed by
// day and session ID.
func (a *Archive) SaveConversation(ctx context.Context, sessionID string, history []agent.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	key := objectKey(sessionID, a.now())
	if _, err := a.client.Storage.UploadFile(a.bucket, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("upload conversation %s: %w", key, err)
	}
	return nil
}

func objectKey(sessionID string, at time.Time) string {
	return fmt.Sprintf("conversations/%s/%s.json", at.Format("2006-01-02"), sessionID)
}
