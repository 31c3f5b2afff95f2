// Package decompose breaks complex surgical queries into focused sub-queries
// for multi-step retrieval.
package decompose

import (
	"context"
	"encoding/json"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smallnest/medrag"
	"github.com/smallnest/medrag/log"
)

// MaxSubqueries bounds decomposition fan-out. More sub-queries than this add
// retrieval cost without improving coverage.
const MaxSubqueries = 4

// complexityThreshold is how many heuristic indicators must fire before a
// query is worth an LLM decomposition call.
const complexityThreshold = 2

// aspectKeywords are topical aspects whose co-occurrence signals a
// multi-part question.
var aspectKeywords = []string{"steps", "instruments", "complications", "anatomy", "management"}

// Config configures a Decomposer.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  log.Logger
}

// Decomposer classifies queries as simple or complex and, when complex,
// delegates decomposition to an LLM under a constrained JSON prompt.
//
// Decomposition failure never blocks retrieval: on any service error,
// malformed response, or missing credentials the plan degrades to a single
// sub-query containing the original question.
type Decomposer struct {
	client *openai.Client
	model  string
	logger log.Logger
}

var _ medrag.Decomposer = (*Decomposer)(nil)

// New creates a Decomposer. With an empty API key the decomposer still
// works, always returning single-subquery plans.
func New(config Config) *Decomposer {
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

	return &Decomposer{
		client: client,
		model:  config.Model,
		logger: config.Logger,
	}
}

// Decompose produces a SubqueryPlan for a query. The returned error is
// always nil; it is part of the signature so Decomposer satisfies
// medrag.Decomposer.
func (d *Decomposer) Decompose(ctx context.Context, query string) (*medrag.SubqueryPlan, error) {
	score := ComplexityScore(query)

	plan := &medrag.SubqueryPlan{
		OriginalQuery:   query,
		Subqueries:      []string{query},
		IsComplex:       false,
		ComplexityScore: score,
	}

	if score < complexityThreshold {
		d.logger.Debug("query is simple (score %.0f), no decomposition", score)
		return plan, nil
	}

	if d.client == nil {
		d.logger.Warn("decomposition skipped: no API credentials configured")
		return plan, nil
	}

	subqueries := d.llmDecompose(ctx, query)
	if len(subqueries) < 2 {
		return plan, nil
	}

	plan.Subqueries = subqueries
	plan.IsComplex = true
	return plan, nil
}

// ComplexityScore counts heuristic complexity indicators: query length,
// multiple comma clauses, conjunctions, multiple question marks, and
// co-occurring topical aspect keywords.
func ComplexityScore(query string) float64 {
	lower := strings.ToLower(query)

	var score float64
	if len(strings.Fields(query)) > 15 {
		score++
	}
	if strings.Count(query, ",") >= 2 {
		score++
	}
	if strings.Contains(lower, " and ") {
		score++
	}
	if strings.Count(strings.TrimSuffix(query, "?"), "?") >= 1 {
		score++
	}

	aspects := 0
	for _, kw := range aspectKeywords {
		if strings.Contains(lower, kw) {
			aspects++
		}
	}
	if aspects >= 2 {
		score++
	}

	return score
}

type decompositionResult struct {
	IsComplex  bool     `json:"is_complex"`
	Subqueries []string `json:"subqueries"`
}

func (d *Decomposer) llmDecompose(ctx context.Context, query string) []string {
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an expert at analyzing surgical questions and breaking them into focused sub-questions. Return ONLY valid JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildDecompositionPrompt(query),
			},
		},
		Temperature:    0.1,
		MaxTokens:      500,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		d.logger.Warn("query decomposition failed: %v", err)
		return nil
	}
	if len(resp.Choices) == 0 {
		return nil
	}

	var result decompositionResult
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
		d.logger.Warn("decomposition returned malformed JSON: %v", err)
		return nil
	}

	subqueries := make([]string, 0, MaxSubqueries)
	for _, sq := range result.Subqueries {
		sq = strings.TrimSpace(sq)
		if sq == "" {
			continue
		}
		subqueries = append(subqueries, sq)
		if len(subqueries) == MaxSubqueries {
			break
		}
	}

	d.logger.Info("decomposed query into %d sub-queries", len(subqueries))
	return subqueries
}

func buildDecompositionPrompt(query string) string {
	var b strings.Builder
	b.WriteString("Analyze this surgical question and decompose it into 2-4 focused sub-questions if it contains multiple distinct aspects.\n\n")
	b.WriteString("Original Question:\n")
	b.WriteString(query)
	b.WriteString("\n\nGuidelines:\n")
	b.WriteString("- If the question asks about multiple topics (e.g., steps + instruments + complications), split them\n")
	b.WriteString("- Each sub-question should be self-contained and specific\n")
	b.WriteString("- Preserve the procedure name in each sub-question for context\n")
	b.WriteString("- Keep technical terminology intact\n")
	b.WriteString("- If the question is already focused on ONE topic, return it as a single sub-question\n")
	b.WriteString("- Maximum 4 sub-questions\n\n")
	b.WriteString(`Return ONLY valid JSON in this exact format:
{
    "is_complex": true/false,
    "subqueries": ["sub-question 1", "sub-question 2"]
}
`)
	return b.String()
}
