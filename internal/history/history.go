// Package history persists the chat log as an append-only JSON array so a
// session survives restarts.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Message is one chat turn. Metadata carries per-turn extras such as source
// previews and the provider that answered.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// Store keeps the full chat history in memory and rewrites the backing JSON
// file on every append, matching the simple durable-log contract the UI
// expects.
type Store struct {
	mu       sync.Mutex
	path     string
	messages []Message
}

// Open loads existing history from path, tolerating a missing file. An
// unreadable file is an error: silently discarding a user's history would
// be worse than refusing to start.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading chat history: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.messages); err != nil {
		return nil, fmt.Errorf("decoding chat history: %w", err)
	}
	return s, nil
}

// Append adds a message and persists the updated log.
func (s *Store) Append(role, content string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if metadata == nil {
		metadata = map[string]any{}
	}
	s.messages = append(s.messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	})
	return s.saveLocked()
}

// Messages returns a copy of the full history in order.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Clear wipes the history and persists the empty log.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	out := s.messages
	if out == nil {
		out = []Message{}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding chat history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating history directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing chat history: %w", err)
	}
	return nil
}
