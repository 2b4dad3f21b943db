package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/sweetpotato0/ai-conclave/provider"
	"github.com/sweetpotato0/ai-conclave/tokenizer"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const name = "gemini"

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gemini-1.5-flash",
		MaxTokens:   2048,
		Temperature: 0.7,
	}
}

var _ provider.Provider = (*Provider)(nil)

// Provider implements provider.Provider for Google Gemini
type Provider struct {
	config  *Config
	counter tokenizer.Counter

	mu     sync.Mutex
	client *genai.Client
}

// New creates a new Gemini provider. The SDK client is dialled lazily on the
// first call so construction never touches the network.
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}
	return &Provider{
		config:  config,
		counter: tokenizer.NewSimpleCounter(),
	}
}

// WithCounter sets the counter used when the API omits usage metadata.
func (p *Provider) WithCounter(counter tokenizer.Counter) *Provider {
	if counter != nil {
		p.counter = counter
	}
	return p
}

// Complete generates content for one system+user turn.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Completion, error) {
	if err := provider.ValidateRequest(req); err != nil {
		return nil, err
	}
	if p.config.APIKey == "" {
		return nil, &provider.Error{Provider: name, Kind: provider.KindAuth, Err: fmt.Errorf("API key not configured")}
	}

	client, err := p.getClient(ctx)
	if err != nil {
		return nil, classify(err)
	}

	model := client.GenerativeModel(p.config.Model)
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	}

	temperature := p.config.Temperature
	if req.Temperature > 0 {
		temperature = float32(req.Temperature)
	}
	model.SetTemperature(temperature)

	maxTokens := p.config.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.UserPrompt))
	if err != nil {
		return nil, classify(err)
	}

	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		return nil, provider.InvalidResponse(name, "no text in candidates")
	}

	completion := &provider.Completion{Text: text}
	if resp.UsageMetadata != nil {
		completion.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		completion.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	provider.EnsureUsage(completion, req, p.counter)
	return completion, nil
}

// Close releases the SDK client.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

// SetTemperature updates the temperature setting
func (p *Provider) SetTemperature(temp float64) {
	p.config.Temperature = float32(temp)
}

// SetMaxTokens updates the max tokens setting
func (p *Provider) SetMaxTokens(max int64) {
	p.config.MaxTokens = int(max)
}

// SetModel updates the model
func (p *Provider) SetModel(model string) {
	p.config.Model = model
}

func (p *Provider) getClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	p.client = client
	return client, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		// first candidate only
		break
	}
	return sb.String()
}

func classify(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return provider.Classify(name, gErr.Code, err)
	}
	switch status.Code(err) {
	case codes.ResourceExhausted:
		return provider.Classify(name, http.StatusTooManyRequests, err)
	case codes.Unavailable, codes.DeadlineExceeded:
		return provider.Classify(name, http.StatusServiceUnavailable, err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return provider.Classify(name, http.StatusUnauthorized, err)
	case codes.InvalidArgument:
		return provider.Classify(name, http.StatusBadRequest, err)
	}
	return provider.Classify(name, 0, err)
}
