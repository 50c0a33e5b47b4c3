package images

import (
	"context"
	"fmt"
	"strings"

	"github.com/andrejs2008/evomint/internal/logging"
)

const placeholderPrefix = "placeholder/"

// Service renders artwork for items and persists the artifacts.
type Service struct {
	generator Generator
	storage   Storage
	logger    logging.Logger
}

// NewService wires synthesis and storage. A nil generator switches the
// service to placeholder references, which keeps deployments without an
// API key fully functional.
func NewService(generator Generator, storage Storage, logger logging.Logger) *Service {
	return &Service{generator: generator, storage: storage, logger: logger}
}

// GenerateAndStore renders the prompt and stores the artifact, returning
// its reference. Without a generator it hands back a deterministic
// placeholder reference and never touches storage.
func (s *Service) GenerateAndStore(ctx context.Context, prompt string, seed int64) (string, error) {
	if s.generator == nil {
		return fmt.Sprintf("%s%d.png", placeholderPrefix, seed), nil
	}

	img, err := s.generator.GenerateImage(ctx, prompt, seed)
	if err != nil {
		return "", err
	}

	ref, err := s.storage.Put(ctx, RandomKey(), img)
	if err != nil {
		return "", err
	}

	s.logger.Debug(ctx, "artifact stored", "ref", ref, "bytes", len(img))
	return ref, nil
}

// URL resolves an artifact reference for clients. Placeholder references
// resolve to themselves.
func (s *Service) URL(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, placeholderPrefix) || s.storage == nil {
		return ref, nil
	}
	return s.storage.URL(ctx, ref)
}
