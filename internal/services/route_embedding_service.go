package services

import (
	"context"

	"tripmind_go_backend/internal/providers"

	"github.com/rs/zerolog"
)

// RouteEmbeddingService vectorises "origin -> dest" for similarity search
// over trip history. Failures degrade to an empty vector.
type RouteEmbeddingService struct {
	embedder providers.Embedder
	logger   zerolog.Logger
}

func NewRouteEmbeddingService(embedder providers.Embedder, logger zerolog.Logger) *RouteEmbeddingService {
	return &RouteEmbeddingService{
		embedder: embedder,
		logger:   logger.With().Str("component", "route_embedding").Logger(),
	}
}

func RouteText(origin, dest string) string {
	return origin + " -> " + dest
}

func (s *RouteEmbeddingService) Embed(ctx context.Context, origin, dest string) []float32 {
	if s == nil || s.embedder == nil {
		return []float32{}
	}
	vec, err := s.embedder.Embed(ctx, RouteText(origin, dest))
	if err != nil {
		s.logger.Warn().Err(err).Str("origin", origin).Str("dest", dest).Msg("Route embedding failed")
		return []float32{}
	}
	return vec
}
