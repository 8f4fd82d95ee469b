package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const GeminiName = "gemini"

type GeminiConfig struct {
	APIKey         string
	ChatModel      string
	VisionModel    string
	EmbeddingModel string
}

func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:         apiKey,
		ChatModel:      "gemini-1.5-flash",
		VisionModel:    "gemini-1.5-flash",
		EmbeddingModel: "text-embedding-004",
	}
}

type GeminiProvider struct {
	client *genai.Client
	cfg    GeminiConfig
}

func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiProvider{client: client, cfg: cfg}, nil
}

func (p *GeminiProvider) Name() string { return GeminiName }

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func (p *GeminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}
	modelName := req.Model
	if modelName == "" {
		modelName = p.cfg.ChatModel
	}

	model := p.client.GenerativeModel(modelName)
	if req.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, tool := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters.genaiSchema(),
			})
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	session := model.StartChat()
	last := req.Messages[len(req.Messages)-1]
	for _, m := range req.Messages[:len(req.Messages)-1] {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	resp, err := session.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}
	return chatResponseFromGenai(modelName, resp)
}

func chatResponseFromGenai(modelName string, resp *genai.GenerateContentResponse) (*ChatResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini returned no candidates")
	}

	out := &ChatResponse{Model: modelName}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			text.WriteString(string(v))
		case *genai.Text:
			text.WriteString(string(*v))
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, toolCallFromGenai(v))
		case *genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, toolCallFromGenai(*v))
		}
	}
	out.Text = text.String()

	if resp.UsageMetadata != nil {
		out.Usage = &Usage{
			PromptTokens:     int64(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

func toolCallFromGenai(fc genai.FunctionCall) ToolCall {
	args, err := json.Marshal(fc.Args)
	if err != nil {
		args = []byte("{}")
	}
	return ToolCall{Name: fc.Name, Arguments: args}
}

func (p *GeminiProvider) AnalyzeImage(ctx context.Context, image []byte, prompt string) (string, error) {
	model := p.client.GenerativeModel(p.cfg.VisionModel)
	format := strings.TrimPrefix(http.DetectContentType(image), "image/")
	resp, err := model.GenerateContent(ctx, genai.ImageData(format, image), genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini image analysis failed: %w", err)
	}
	out, err := chatResponseFromGenai(p.cfg.VisionModel, resp)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	em := p.client.EmbeddingModel(p.cfg.EmbeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding failed: %w", err)
	}
	if res.Embedding == nil {
		return nil, errors.New("gemini embedding returned no values")
	}
	return res.Embedding.Values, nil
}
