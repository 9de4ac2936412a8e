package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/victor/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

var (
	// ErrNotFound indicates no conversation was archived under the id.
	ErrNotFound = errors.New("conversation not found")

	// ErrEmptySession indicates a save without a session id.
	ErrEmptySession = errors.New("session id is empty")
)

// Archiver persists transcripts. The in-memory session stays authoritative;
// an archive is written when a session ends.
type Archiver interface {
	Save(ctx context.Context, sessionID string, messages []models.Message) error
	Load(ctx context.Context, sessionID string) ([]models.Message, error)
}

// Summary describes an archived conversation.
type Summary struct {
	SessionID    string    `json:"session_id"`
	MessageCount int       `json:"message_count"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
}

// Store is the SurrealDB-backed Archiver. Create it with Open.
type Store struct {
	db    *surrealdb.DB
	close func(context.Context) error
}

type messageRecord struct {
	Conversation surrealmodels.RecordID `json:"conversation"`
	Position     int                    `json:"position"`
	MsgID        string                 `json:"msg_id"`
	Role         string                 `json:"role"`
	Content      string                 `json:"content"`
	Sources      []models.Citation      `json:"sources"`
	ImageURL     *string                `json:"image_url,omitempty"`
}

func conversationID(sessionID string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("conversation", sessionID)
}

func toRecords(sessionID string, messages []models.Message) []messageRecord {
	conv := conversationID(sessionID)
	out := make([]messageRecord, len(messages))
	for i, m := range messages {
		r := messageRecord{
			Conversation: conv,
			Position:     i,
			MsgID:        m.ID,
			Role:         string(m.Role),
			Content:      m.Content,
			Sources:      m.Sources,
		}
		if r.Sources == nil {
			r.Sources = []models.Citation{}
		}
		if m.ImageURL != "" {
			url := m.ImageURL
			r.ImageURL = &url
		}
		out[i] = r
	}
	return out
}

func fromRecords(records []messageRecord) []models.Message {
	out := make([]models.Message, len(records))
	for i, r := range records {
		m := models.Message{
			ID:      r.MsgID,
			Role:    models.Role(r.Role),
			Content: r.Content,
		}
		if len(r.Sources) > 0 {
			m.Sources = r.Sources
		}
		if r.ImageURL != nil {
			m.ImageURL = *r.ImageURL
		}
		out[i] = m
	}
	return out
}

// Save replaces the archived transcript of a session.
func (s *Store) Save(ctx context.Context, sessionID string, messages []models.Message) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrEmptySession
	}

	sql := `
		BEGIN TRANSACTION;
		UPSERT type::record("conversation", $id) SET
			message_count = $count,
			updated = time::now(),
			created = IF created THEN created ELSE time::now() END;
		DELETE message WHERE conversation = type::record("conversation", $id);
		INSERT INTO message $messages;
		COMMIT TRANSACTION;
	`

	_, err := surrealdb.Query[any](ctx, s.db, sql, map[string]any{
		"id":       sessionID,
		"count":    len(messages),
		"messages": toRecords(sessionID, messages),
	})
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// Load returns the archived messages of a session in order.
func (s *Store) Load(ctx context.Context, sessionID string) ([]models.Message, error) {
	exists, err := surrealdb.Query[[]Summary](ctx, s.db, `
		SELECT meta::id(id) AS session_id, message_count, created, updated
		FROM type::record("conversation", $id)
	`, map[string]any{"id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if exists == nil || len(*exists) == 0 || len((*exists)[0].Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	results, err := surrealdb.Query[[]messageRecord](ctx, s.db, `
		SELECT conversation, position, msg_id, role, content, sources, image_url
		FROM message
		WHERE conversation = type::record("conversation", $id)
		ORDER BY position
	`, map[string]any{"id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.Message{}, nil
	}
	return fromRecords((*results)[0].Result), nil
}

// List returns the most recently updated conversations.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	results, err := surrealdb.Query[[]Summary](ctx, s.db, `
		SELECT meta::id(id) AS session_id, message_count, created, updated
		FROM conversation
		ORDER BY updated DESC
		LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []Summary{}, nil
	}
	return (*results)[0].Result, nil
}
