package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tripmind_go_backend/internal/models"
	"tripmind_go_backend/internal/providers"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultImagePrompt = "Describe this image. If it shows a place, sign, ticket or map, say what a traveller should know."

type MediaConfig struct {
	// AudioBucket archives uploaded audio when set.
	AudioBucket string
}

// MediaService handles speech and image requests.
type MediaService struct {
	transcriber providers.Transcriber
	synthesizer providers.Synthesizer
	vision      providers.VisionAnalyzer
	store       ConversationServiceDB
	storage     CloudStorageManager
	reporter    ErrorReporter
	cfg         MediaConfig
	logger      zerolog.Logger
}

func NewMediaService(
	transcriber providers.Transcriber,
	synthesizer providers.Synthesizer,
	vision providers.VisionAnalyzer,
	store ConversationServiceDB,
	storage CloudStorageManager,
	reporter ErrorReporter,
	cfg MediaConfig,
	logger zerolog.Logger,
) *MediaService {
	return &MediaService{
		transcriber: transcriber,
		synthesizer: synthesizer,
		vision:      vision,
		store:       store,
		storage:     storage,
		reporter:    reporter,
		cfg:         cfg,
		logger:      logger.With().Str("component", "media").Logger(),
	}
}

// Transcribe converts audio to text and records it. Archiving the audio is
// best effort.
func (s *MediaService) Transcribe(ctx context.Context, userID uuid.UUID, audio []byte, language string) (*models.Transcription, error) {
	if s.transcriber == nil {
		return nil, fmt.Errorf("%w: %w", ErrTranscription, ErrCapabilityUnavailable)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrInvalidIntent)
	}

	text, err := s.transcriber.Transcribe(ctx, audio, language)
	if err != nil {
		s.reporter.Capture(ctx, err, map[string]string{"stage": "transcription", "user": userID.String()})
		return nil, fmt.Errorf("%w: %w", ErrTranscription, err)
	}

	record := &models.Transcription{
		UserID:   userID,
		Language: language,
		Text:     strings.TrimSpace(text),
	}
	if s.storage != nil && s.cfg.AudioBucket != "" {
		object := fmt.Sprintf("%s%d.webm", recordingPrefix(userID), time.Now().UnixNano())
		if err := s.storage.UploadFile(ctx, s.cfg.AudioBucket, object, "audio/webm", bytes.NewReader(audio)); err != nil {
			s.logger.Warn().Err(err).Str("object", object).Msg("Audio archive upload failed")
		} else {
			record.AudioObject = object
		}
	}
	if err := s.store.SaveTranscription(ctx, record); err != nil {
		s.reporter.Capture(ctx, err, map[string]string{"stage": "transcription_save", "user": userID.String()})
		s.logger.Error().Err(err).Msg("Failed to save transcription")
	}
	return record, nil
}

func (s *MediaService) SynthesizeSpeech(ctx context.Context, text, voice string) ([]byte, error) {
	if s.synthesizer == nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesis, ErrCapabilityUnavailable)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrInvalidIntent)
	}
	audio, err := s.synthesizer.Synthesize(ctx, text, voice)
	if err != nil {
		s.reporter.Capture(ctx, err, map[string]string{"stage": "synthesis"})
		return nil, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	return audio, nil
}

func (s *MediaService) AnalyzeImage(ctx context.Context, image []byte, prompt string) (string, error) {
	if s.vision == nil {
		return "", fmt.Errorf("%w: %w", ErrAnalysis, ErrCapabilityUnavailable)
	}
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrInvalidIntent)
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultImagePrompt
	}
	out, err := s.vision.AnalyzeImage(ctx, image, prompt)
	if err != nil {
		s.reporter.Capture(ctx, err, map[string]string{"stage": "vision"})
		return "", fmt.Errorf("%w: %w", ErrAnalysis, err)
	}
	return out, nil
}

// ListRecordings names the archived audio objects for a user.
func (s *MediaService) ListRecordings(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if s.storage == nil || s.cfg.AudioBucket == "" {
		return nil, ErrCapabilityUnavailable
	}
	objects, err := s.storage.ListFiles(ctx, s.cfg.AudioBucket, recordingPrefix(userID))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(objects))
	for _, object := range objects {
		names = append(names, strings.TrimPrefix(object, recordingPrefix(userID)))
	}
	return names, nil
}

// Recording downloads one archived audio file. Names are relative to the
// user's prefix so one user cannot reach another's recordings.
func (s *MediaService) Recording(ctx context.Context, userID uuid.UUID, name string) ([]byte, error) {
	if s.storage == nil || s.cfg.AudioBucket == "" {
		return nil, ErrCapabilityUnavailable
	}
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return nil, ErrRecordingNotFound
	}
	audio, err := s.storage.DownloadFile(ctx, s.cfg.AudioBucket, recordingPrefix(userID)+name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrRecordingNotFound
		}
		return nil, err
	}
	return audio, nil
}

func recordingPrefix(userID uuid.UUID) string {
	return "audio/" + userID.String() + "/"
}
