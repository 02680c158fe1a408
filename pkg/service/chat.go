package service

import (
	"context"
	"fmt"

	"github.com/mattsolo1/grove-wiki/pkg/stream"
)

// ChatSession returns the assistant session id used by this workspace.
func (s *Service) ChatSession() string {
	return s.chatID
}

// Chat sends text to the assistant and blocks until the reply is complete,
// calling onDelta with each fragment as it arrives.
func (s *Service) Chat(ctx context.Context, text string, onDelta func(string)) (string, error) {
	body, err := s.remote.SendChatMessage(ctx, s.chatID, text)
	if err != nil {
		return "", fmt.Errorf("send chat message: %w", err)
	}
	return s.ingester.Ingest(ctx, body, onDelta)
}

// ChatStream sends text to the assistant and returns the reply as a running
// task.
func (s *Service) ChatStream(ctx context.Context, text string) (*stream.Task, error) {
	body, err := s.remote.SendChatMessage(ctx, s.chatID, text)
	if err != nil {
		return nil, fmt.Errorf("send chat message: %w", err)
	}
	return s.ingester.Start(ctx, body), nil
}
