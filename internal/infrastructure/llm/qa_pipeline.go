package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"

	"github.com/docqa/docqa-api/internal/core/domain"
	"github.com/docqa/docqa-api/internal/core/ports"
)

const (
	defaultEncoding = "cl100k_base"

	systemPrompt = `You answer questions using only the context extracted from the user's documents.
If the context does not contain the answer, say that you do not know.
Respond with a single JSON object of the form {"answer": "<text>"}. You may add
further keys when the question asks for structured data.`
)

// QAPipeline implements ports.QAPipeline with a langchaingo chat model.
type QAPipeline struct {
	model       llms.Model
	temperature float64
	log         zerolog.Logger

	countOnce sync.Once
	count     func(string) int
}

var _ ports.QAPipeline = (*QAPipeline)(nil)

// PipelineOption configures a QAPipeline.
type PipelineOption func(*QAPipeline)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) PipelineOption {
	return func(p *QAPipeline) { p.temperature = t }
}

// WithTokenCounter replaces the tiktoken-based counter used when the model
// does not report usage.
func WithTokenCounter(count func(string) int) PipelineOption {
	return func(p *QAPipeline) {
		p.count = count
		p.countOnce.Do(func() {})
	}
}

// NewQAPipeline creates a QAPipeline.
func NewQAPipeline(model llms.Model, log zerolog.Logger, opts ...PipelineOption) *QAPipeline {
	p := &QAPipeline{model: model, log: log}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ask sends the context and question to the model and decodes its JSON reply.
func (p *QAPipeline) Ask(ctx context.Context, docContext, question string) (*domain.Answer, error) {
	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", docContext, question)
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := p.model.GenerateContent(ctx, messages, llms.WithTemperature(p.temperature))
	if err != nil {
		return nil, fmt.Errorf("llm: generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, errors.New("llm: empty response")
	}
	choice := resp.Choices[0]

	content, ok := parseContent(choice.Content)
	if !ok {
		p.log.Warn().Int("length", len(choice.Content)).Msg("model reply is not JSON, wrapping as plain answer")
	}

	usage, ok := usageFromInfo(choice.GenerationInfo)
	if !ok {
		usage = p.estimateUsage(systemPrompt+prompt, choice.Content)
	}

	return &domain.Answer{Content: content, Usage: usage}, nil
}

// parseContent decodes the model's reply. Markdown code fences and a leading
// "json" tag are stripped. A reply that is not a JSON object is returned as
// {"answer": raw} and reported with ok=false.
func parseContent(raw string) (map[string]any, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = strings.TrimSpace(s[4:])
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil || out == nil {
		return map[string]any{"answer": strings.TrimSpace(raw)}, false
	}
	return out, true
}

func usageFromInfo(info map[string]any) (domain.TokenUsage, bool) {
	in, okIn := intValue(info["PromptTokens"])
	out, okOut := intValue(info["CompletionTokens"])
	if !okIn || !okOut {
		return domain.TokenUsage{}, false
	}
	total, ok := intValue(info["TotalTokens"])
	if !ok || total == 0 {
		total = in + out
	}
	return domain.TokenUsage{InputTokens: in, OutputTokens: out, TotalTokens: total}, true
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func (p *QAPipeline) estimateUsage(input, output string) domain.TokenUsage {
	p.countOnce.Do(func() {
		tke, err := tiktoken.GetEncoding(defaultEncoding)
		if err != nil {
			p.log.Warn().Err(err).Msg("tiktoken unavailable, estimating tokens from length")
			p.count = func(s string) int { return (len(s) + 3) / 4 }
			return
		}
		p.count = func(s string) int { return len(tke.Encode(s, nil, nil)) }
	})
	in, out := p.count(input), p.count(output)
	return domain.TokenUsage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}
