package analysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/briefcall/marketplace/internal/config"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		in, out string
	}{
		{`{"title":"x"}`, `{"title":"x"}`},
		{"```json\n{\"title\":\"x\"}\n```", `{"title":"x"}`},
		{"```\n{\"title\":\"x\"}\n```", `{"title":"x"}`},
		{"  {\"title\":\"x\"}  ", `{"title":"x"}`},
	}

	for _, c := range cases {
		require.Equal(t, c.out, stripCodeFences(c.in))
	}
}

func TestFallbackStructure(t *testing.T) {
	fallback := FallbackStructure()

	require.Equal(t, "Business Decision", fallback.Title)
	require.Equal(t, "other", fallback.Category)
	require.Equal(t, "moderate", fallback.Complexity)
	require.Empty(t, fallback.ExpertQuestions)

	var context map[string]any

	require.NoError(t, json.Unmarshal(fallback.Context, &context))
	require.Empty(t, context)
}

func TestStructureAgainstStubbedCompletionServer(t *testing.T) {
	completions := make(chan string, 2)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := json.Marshal(map[string]any{
			"id":     "cmpl-test",
			"object": "chat.completion",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]any{
						"role":    "assistant",
						"content": <-completions,
					},
				},
			},
		})
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer server.Close()

	config.Conf.AnalysisBaseUrl = server.URL
	config.Conf.AnalysisAPIKey = "test-key"
	config.Conf.AnalysisModel = "gpt-4o-mini"
	config.Conf.AnalysisTimeout = 5
	config.Conf.AnalysisRetryMaxAttempts = 1
	config.Conf.AnalysisConsecutiveFailuresCB = 10

	client := NewClient()

	completions <- "```json\n" +
		`{"title":"CAC Deep Dive","category":"growth","complexity":"moderate"}` +
		"\n```"

	structured, err := client.Structure(context.Background(), "our CAC doubled last quarter")
	require.NoError(t, err)
	require.Equal(t, "CAC Deep Dive", structured.Title)
	require.Equal(t, "growth", structured.Category)
	require.JSONEq(t, "{}", string(structured.Context))

	completions <- "I cannot answer that."

	_, err = client.Structure(context.Background(), "our CAC doubled last quarter")
	require.Error(t, err)
}

func TestStructureErrorsWhenServerIsDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	config.Conf.AnalysisBaseUrl = server.URL
	config.Conf.AnalysisAPIKey = "test-key"
	config.Conf.AnalysisModel = "gpt-4o-mini"
	config.Conf.AnalysisTimeout = 1
	config.Conf.AnalysisRetryMaxAttempts = 1
	config.Conf.AnalysisConsecutiveFailuresCB = 10

	client := NewClient()

	_, err := client.Structure(context.Background(), "anything")
	require.Error(t, err)
}

func TestStructuredProblemRoundTripsFencedCompletion(t *testing.T) {
	completion := "```json\n" +
		`{"title":"Agency Review","category":"marketing","context":{"spend":"£4k/mo"},` +
		`"expert_questions":["What is the contract term?"],"complexity":"simple"}` +
		"\n```"

	var structured StructuredProblem

	require.NoError(t, json.Unmarshal([]byte(stripCodeFences(completion)), &structured))
	require.Equal(t, "Agency Review", structured.Title)
	require.Equal(t, "marketing", structured.Category)
	require.Len(t, structured.ExpertQuestions, 1)
}
