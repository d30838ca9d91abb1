package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/briefcall/marketplace/internal/circuitbreak"
	"github.com/briefcall/marketplace/internal/config"
	"github.com/briefcall/marketplace/internal/logging"
	"github.com/goccy/go-json"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var ErrEmptyCompletion = errors.New("analysis model returned an empty completion")

// StructuredProblem is the collaborator's view of a raw problem text.
type StructuredProblem struct {
	Title           string          `json:"title"`
	Category        string          `json:"category"`
	Context         json.RawMessage `json:"context"`
	ExpertQuestions []string        `json:"expert_questions"`
	Complexity      string          `json:"complexity"`
}

// SessionSummary is the post-session notes document.
type SessionSummary struct {
	Summary     string   `json:"summary"`
	ActionItems []string `json:"action_items"`
}

// FallbackStructure is used whenever the analysis service fails or times
// out; session creation must never block on it.
func FallbackStructure() *StructuredProblem {
	return &StructuredProblem{
		Title:           "Business Decision",
		Category:        "other",
		Context:         json.RawMessage("{}"),
		ExpertQuestions: []string{},
		Complexity:      "moderate",
	}
}

const structurePrompt = `You are analyzing a business problem for a marketplace that matches founders/operators with experts.

User's problem:
%q

Extract and structure this information:
1. A clear, concise title (max 10 words)
2. Main category (one of: pricing, growth, product, hiring, operations, marketing, sales, fundraising, technical, legal, other)
3. Key context extracted (company_size, current_metrics, tools_mentioned, industry)
4. Suggested questions the expert should ask
5. Estimated complexity (simple, moderate, complex)

Respond with a single JSON object with keys: title, category, context, expert_questions, complexity.`

const summaryPrompt = `You are writing post-call notes for a short expert consulting session.

Problem title: %q
Problem description:
%q

Write a concise summary of the likely advice discussed and 3-5 concrete action items.
Respond with a single JSON object with keys: summary, action_items.`

type Client struct {
	Client         *openai.Client
	CircuitBreaker *gobreaker.CircuitBreaker[[]byte]
}

func NewClient() *Client {
	opts := []option.RequestOption{
		option.WithBaseURL(config.Conf.AnalysisBaseUrl),
		option.WithAPIKey(config.Conf.AnalysisAPIKey),
		option.WithRequestTimeout(time.Duration(config.Conf.AnalysisTimeout) * time.Second),
	}

	client := openai.NewClient(opts...)

	return &Client{
		Client:         &client,
		CircuitBreaker: newAnalysisCircuitBreaker(),
	}
}

func newAnalysisCircuitBreaker() *gobreaker.CircuitBreaker[[]byte] {
	settings := gobreaker.Settings{
		Name:     "AnalysisClient",
		Interval: time.Duration(config.Conf.AnalysisIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.AnalysisConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Info("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.AnalysisService)
			}
		},
	}

	return gobreaker.NewCircuitBreaker[[]byte](settings)
}

// Structure turns raw problem text into the structured form used for
// matching. Callers fall back to FallbackStructure on any error.
func (analysisClient *Client) Structure(ctx context.Context, rawProblemText string) (*StructuredProblem, error) {
	content, err := analysisClient.complete(ctx, fmt.Sprintf(structurePrompt, rawProblemText))
	if err != nil {
		return nil, err
	}

	var structured StructuredProblem

	err = json.Unmarshal(content, &structured)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal structured problem: %w", err)
	}

	if structured.Context == nil {
		structured.Context = json.RawMessage("{}")
	}

	return &structured, nil
}

// Summarize produces the post-session notes document.
func (analysisClient *Client) Summarize(ctx context.Context, problemTitle, problemDescription string) (*SessionSummary, error) {
	content, err := analysisClient.complete(ctx, fmt.Sprintf(summaryPrompt, problemTitle, problemDescription))
	if err != nil {
		return nil, err
	}

	var summary SessionSummary

	err = json.Unmarshal(content, &summary)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal session summary: %w", err)
	}

	return &summary, nil
}

// Ping verifies the analysis service is reachable. Used by the health
// checker after a circuit break.
func (analysisClient *Client) Ping(ctx context.Context) error {
	_, err := analysisClient.Client.Models.List(ctx)
	return err
}

func (analysisClient *Client) complete(ctx context.Context, prompt string) ([]byte, error) {
	result, err := analysisClient.CircuitBreaker.Execute(func() ([]byte, error) {
		return analysisClient.doCompletionRequest(ctx, prompt)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (analysisClient *Client) doCompletionRequest(ctx context.Context, prompt string) ([]byte, error) {
	var resultBytes []byte

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	err := retry.Do(
		func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			completion, err := analysisClient.Client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
				Model: openai.ChatModel(config.Conf.AnalysisModel),
				Messages: []openai.ChatCompletionMessageParamUnion{
					openai.UserMessage(prompt),
				},
			})
			if err != nil {
				logging.Logger.Error("Analysis completion request failed",
					zap.String("error", err.Error()),
				)

				return err
			}

			if len(completion.Choices) == 0 {
				return ErrEmptyCompletion
			}

			resultBytes = []byte(stripCodeFences(completion.Choices[0].Message.Content))

			return nil
		},
		retry.Attempts(config.Conf.AnalysisRetryMaxAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(time.Duration(config.Conf.AnalysisRetryMinBackoff)*time.Second),
		retry.MaxDelay(time.Duration(config.Conf.AnalysisRetryMaxBackoff)*time.Second),
	)
	if err != nil {
		return nil, err
	}

	return resultBytes, nil
}

// Models wrap JSON answers in markdown fences often enough to handle here.
func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	return strings.TrimSpace(content)
}
