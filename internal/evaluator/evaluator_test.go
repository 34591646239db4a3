package evaluator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrishi0102/patchpay/internal/database/models"
)

func TestParseResult(t *testing.T) {
	valid := `Here is my evaluation:
{
  "testResults": [{"testCaseIndex": 0, "passed": true, "explanation": "matches"}],
  "overallScore": 85,
  "summary": "mostly correct"
}
Hope this helps!`

	result, err := ParseResult(valid)
	require.NoError(t, err)
	assert.Equal(t, 85, result.OverallScore)
	assert.Equal(t, "mostly correct", result.Summary)
	require.Len(t, result.TestResults, 1)
	assert.True(t, result.TestResults[0].Passed)
}

func TestParseResultRejectsBadReplies(t *testing.T) {
	cases := map[string]string{
		"no json at all":       "I could not evaluate this code.",
		"unbalanced braces":    "score: } {",
		"invalid json":         `{"overallScore": 85, "testResults": [,]}`,
		"missing score":        `{"testResults": [], "summary": "ok"}`,
		"missing test results": `{"overallScore": 85, "summary": "ok"}`,
		"results not an array": `{"overallScore": 85, "testResults": "all passed"}`,
		"score above range":    `{"overallScore": 150, "testResults": []}`,
		"score below range":    `{"overallScore": -5, "testResults": []}`,
	}

	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseResult(reply)
			assert.ErrorIs(t, err, ErrBadResponse)
		})
	}
}

func geminiReply(text string) map[string]interface{} {
	return map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{
				"parts": []map[string]string{{"text": text}},
			}},
		},
	}
}

func TestGeminiEvaluate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		json.NewEncoder(w).Encode(geminiReply(
			`{"testResults": [{"testCaseIndex": 0, "passed": true, "explanation": "ok"}], "overallScore": 95, "summary": "solid"}`))
	}))
	defer srv.Close()

	g := NewGeminiWithBaseURL("test-key", "gemini-2.0-flash", srv.URL)
	result, err := g.Evaluate(context.Background(), "code", []models.TestCase{{Input: "x", ExpectedOutput: "y"}}, "Go")
	require.NoError(t, err)
	assert.Equal(t, 95, result.OverallScore)
}

func TestGeminiEvaluateErrors(t *testing.T) {
	t.Run("provider error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		g := NewGeminiWithBaseURL("test-key", "gemini-2.0-flash", srv.URL)
		_, err := g.Evaluate(context.Background(), "code", nil, "")
		assert.Error(t, err)
	})

	t.Run("reply without candidates", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"promptFeedback": {"blockReason": "SAFETY"}}`))
		}))
		defer srv.Close()

		g := NewGeminiWithBaseURL("test-key", "gemini-2.0-flash", srv.URL)
		_, err := g.Evaluate(context.Background(), "code", nil, "")
		assert.ErrorIs(t, err, ErrBadResponse)
	})
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("func add(a, b int) int { return a + b }", []models.TestCase{
		{Input: "2, 3", ExpectedOutput: "5", Description: "small numbers"},
		{Input: "-1, 1", ExpectedOutput: "0"},
	}, "Go")

	assert.Contains(t, prompt, "Code (Go):")
	assert.Contains(t, prompt, "Test Case 1:")
	assert.Contains(t, prompt, "small numbers")
	assert.Contains(t, prompt, "Test Case 2:")
	assert.Contains(t, prompt, "Description: N/A")
	assert.True(t, strings.Contains(prompt, `"overallScore"`))

	unknown := BuildPrompt("code", nil, "")
	assert.Contains(t, unknown, "Code (Unknown):")
}
