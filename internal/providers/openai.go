package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const OpenAIName = "openai"

type OpenAIConfig struct {
	APIKey             string
	BaseURL            string
	Timeout            time.Duration
	ChatModel          string
	VisionModel        string
	ModerationModel    string
	TranscriptionModel string
	SpeechModel        string
	EmbeddingModel     string
}

func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:             apiKey,
		Timeout:            45 * time.Second,
		ChatModel:          "gpt-4o-mini",
		VisionModel:        "gpt-4o-mini",
		ModerationModel:    "omni-moderation-latest",
		TranscriptionModel: "whisper-1",
		SpeechModel:        "tts-1",
		EmbeddingModel:     "text-embedding-3-small",
	}
}

type OpenAIProvider struct {
	client openai.Client
	cfg    OpenAIConfig
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Fallback is the gateway's job; the SDK must not retry on its own.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		cfg:    cfg,
	}
}

func (p *OpenAIProvider) Name() string { return OpenAIName }

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}
	model := req.Model
	if model == "" {
		model = p.cfg.ChatModel
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(tool.Parameters.JSONSchema()),
			},
		})
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("openai chat completion returned no choices")
	}

	msg := completion.Choices[0].Message
	resp := &ChatResponse{
		Text:  msg.Content,
		Model: completion.Model,
	}
	if resp.Model == "" {
		resp.Model = model
	}
	if completion.Usage.TotalTokens > 0 {
		resp.Usage = &Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
		}
	}
	for _, tc := range msg.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return resp, nil
}

func (p *OpenAIProvider) Moderate(ctx context.Context, text string) (bool, error) {
	res, err := p.client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.ModerationModel(p.cfg.ModerationModel),
	})
	if err != nil {
		return false, fmt.Errorf("openai moderation failed: %w", err)
	}
	for _, result := range res.Results {
		if result.Flagged {
			return true, nil
		}
	}
	return false, nil
}

func (p *OpenAIProvider) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), "audio"+audioExtension(audio), http.DetectContentType(audio)),
		Model: openai.AudioModel(p.cfg.TranscriptionModel),
	}
	if language != "" {
		params.Language = openai.String(language)
	}
	res, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai transcription failed: %w", err)
	}
	return res.Text, nil
}

func (p *OpenAIProvider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = string(openai.AudioSpeechNewParamsVoiceAlloy)
	}
	res, err := p.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input: text,
		Model: openai.SpeechModel(p.cfg.SpeechModel),
		Voice: openai.AudioSpeechNewParamsVoice(voice),
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech synthesis failed: %w", err)
	}
	defer res.Body.Close()

	audio, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesized audio: %w", err)
	}
	return audio, nil
}

func (p *OpenAIProvider) AnalyzeImage(ctx context.Context, image []byte, prompt string) (string, error) {
	dataURL := "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.cfg.VisionModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai image analysis failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("openai image analysis returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(p.cfg.EmbeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(res.Data) == 0 {
		return nil, errors.New("openai embedding returned no data")
	}
	values := res.Data[0].Embedding
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out, nil
}

func audioExtension(audio []byte) string {
	switch http.DetectContentType(audio) {
	case "audio/mpeg":
		return ".mp3"
	case "audio/wave":
		return ".wav"
	case "application/ogg":
		return ".ogg"
	case "video/webm":
		return ".webm"
	default:
		return ".webm"
	}
}
