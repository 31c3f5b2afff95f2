package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smallnest/medrag"
	"github.com/smallnest/medrag/log"
)

// Config configures the OpenAI-backed extractors.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  log.Logger
}

// OpenAIExtractor extracts structured claims and entities via chat
// completion calls with a JSON-object response format.
//
// Both extraction paths are best effort: on any service error, malformed
// response, or missing credentials they return empty structures instead of
// an error, per the recovery policy for external-call failures.
type OpenAIExtractor struct {
	client *openai.Client
	model  string
	logger log.Logger
}

var (
	_ medrag.ClaimExtractor  = (*OpenAIExtractor)(nil)
	_ medrag.EntityExtractor = (*OpenAIExtractor)(nil)
)

// NewOpenAIExtractor creates an extractor from an API key with defaults.
func NewOpenAIExtractor(apiKey string) *OpenAIExtractor {
	return NewOpenAIExtractorWithConfig(Config{APIKey: apiKey})
}

// NewOpenAIExtractorWithConfig creates an extractor with explicit config.
func NewOpenAIExtractorWithConfig(config Config) *OpenAIExtractor {
	if config.Model == "" {
		config.Model = openai.GPT4o
	}
	if config.Logger == nil {
		config.Logger = log.GetDefaultLogger()
	}

	var client *openai.Client
	if config.APIKey != "" {
		cfg := openai.DefaultConfig(config.APIKey)
		if config.BaseURL != "" {
			cfg.BaseURL = config.BaseURL
		}
		client = openai.NewClientWithConfig(cfg)
	}

	return &OpenAIExtractor{
		client: client,
		model:  config.Model,
		logger: config.Logger,
	}
}

// ExtractClaims extracts verifiable factual claims from an answer. Records
// missing required fields are dropped with a logged reason rather than
// passed into verification.
func (e *OpenAIExtractor) ExtractClaims(ctx context.Context, answer, query string) (*medrag.ClaimSet, error) {
	if e.client == nil {
		e.logger.Warn("claim extraction skipped: no API credentials configured")
		return &medrag.ClaimSet{}, nil
	}

	content, err := e.jsonCompletion(ctx,
		"You are a medical claim extraction expert. Extract only factual, verifiable claims in structured JSON format.",
		buildClaimPrompt(answer, query), 1500)
	if err != nil {
		e.logger.Warn("claim extraction failed, returning empty claim set: %v", err)
		return &medrag.ClaimSet{}, nil
	}

	var raw medrag.ClaimSet
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		e.logger.Warn("claim extraction returned malformed JSON: %v", err)
		return &medrag.ClaimSet{}, nil
	}

	return ValidateClaims(&raw, e.logger), nil
}

// ExtractEntities extracts surgical entities from text, keyed by category.
func (e *OpenAIExtractor) ExtractEntities(ctx context.Context, text string) (map[string][]string, error) {
	if e.client == nil {
		return map[string][]string{}, nil
	}

	content, err := e.jsonCompletion(ctx,
		"You are a surgical entity recognition expert. Return ONLY valid JSON.",
		buildEntityPrompt(text), 800)
	if err != nil {
		e.logger.Warn("entity extraction failed, returning empty result: %v", err)
		return map[string][]string{}, nil
	}

	var entities map[string][]string
	if err := json.Unmarshal([]byte(content), &entities); err != nil {
		e.logger.Warn("entity extraction returned malformed JSON: %v", err)
		return map[string][]string{}, nil
	}
	return entities, nil
}

func (e *OpenAIExtractor) jsonCompletion(ctx context.Context, system, user string, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature:    0.1,
		MaxTokens:      maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	// Generation-service calls get at most one retry.
	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		resp, err = e.client.CreateChatCompletion(ctx, req)
	}
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ValidateClaims discards records missing required fields, logging one
// reason per dropped record. Structurally invalid claims from a collaborator
// are the one condition treated as a defect worth logging; they are skipped
// individually, never allowed to abort the batch.
func ValidateClaims(raw *medrag.ClaimSet, logger log.Logger) *medrag.ClaimSet {
	if raw == nil {
		return &medrag.ClaimSet{}
	}
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	valid := &medrag.ClaimSet{}

	for _, c := range raw.Instruments {
		if strings.TrimSpace(c.Step) == "" || strings.TrimSpace(c.Instrument) == "" {
			logger.Error("dropping instrument claim with missing step or instrument: %+v", c)
			continue
		}
		valid.Instruments = append(valid.Instruments, c)
	}

	for _, c := range raw.StepOrders {
		if strings.TrimSpace(c.StepBefore) == "" || strings.TrimSpace(c.StepAfter) == "" {
			logger.Error("dropping step order claim with missing step names: %+v", c)
			continue
		}
		if c.Relation == "" {
			c.Relation = medrag.RelPrecedes
		}
		valid.StepOrders = append(valid.StepOrders, c)
	}

	for _, c := range raw.Anatomy {
		if strings.TrimSpace(c.Structure) == "" {
			logger.Error("dropping anatomy claim with missing structure: %+v", c)
			continue
		}
		if c.Relation == "" {
			c.Relation = medrag.RelInvolves
		}
		valid.Anatomy = append(valid.Anatomy, c)
	}

	for _, c := range raw.Complications {
		if strings.TrimSpace(c.Complication) == "" {
			logger.Error("dropping complication claim with missing complication name: %+v", c)
			continue
		}
		valid.Complications = append(valid.Complications, c)
	}

	return valid
}

func buildClaimPrompt(answer, query string) string {
	var b strings.Builder
	b.WriteString("Extract structured factual claims from this surgical answer. Return ONLY valid JSON.\n\n")
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\n\nAnswer: ")
	b.WriteString(answer)
	b.WriteString("\n\nExtract claims in these categories (return empty arrays if none found):\n\n")
	b.WriteString(`1. instrument_claims: tools used in specific steps
   Format: {"step": "step name", "instrument": "instrument name", "usage": "how it's used"}

2. step_order_claims: sequential relationships between procedure steps
   Format: {"procedure": "procedure name", "step_before": "first step", "step_after": "next step", "relationship": "PRECEDES|FOLLOWS|REQUIRES"}

3. anatomy_claims: anatomical structures involved in procedures
   Format: {"procedure": "procedure name", "anatomical_structure": "structure name", "relationship": "INVOLVES|TARGETS|AVOIDS|IDENTIFIES"}

4. complication_claims: complications and their management
   Format: {"procedure": "procedure name", "complication": "complication name", "management": "management approach"}

CRITICAL: Return ONLY valid JSON with this exact structure:
{
    "instrument_claims": [],
    "step_order_claims": [],
    "anatomy_claims": [],
    "complication_claims": []
}

Extract clear, specific claims. If a claim is vague or uncertain, omit it.
`)
	return b.String()
}

func buildEntityPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Extract surgical entities from this text. Return ONLY valid JSON mapping category to a list of entity names.\n\n")
	b.WriteString("Categories: procedures, anatomy, instruments, complications, techniques, medications\n\n")
	b.WriteString("Text:\n")
	b.WriteString(text)
	b.WriteString("\n\nFormat: {\"procedures\": [], \"anatomy\": [], \"instruments\": [], \"complications\": [], \"techniques\": [], \"medications\": []}\n")
	return b.String()
}
