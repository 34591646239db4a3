// Package evaluator scores a submitted fix against a bug's test cases with
// an LLM. The model reply is free-form text; only a reply carrying a JSON
// object with the full expected shape is accepted, anything else is an
// evaluation failure the caller degrades to "no evaluation".
package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hrishi0102/patchpay/internal/database/models"
)

var ErrBadResponse = errors.New("failed to parse evaluation results")

// TestResult is the model's verdict on one test case.
type TestResult struct {
	TestCaseIndex int    `json:"testCaseIndex"`
	Passed        bool   `json:"passed"`
	Explanation   string `json:"explanation"`
}

// Result is the validated evaluator output.
type Result struct {
	TestResults  []TestResult `json:"testResults"`
	OverallScore int          `json:"overallScore"`
	Summary      string       `json:"summary"`
}

// Evaluator scores code against test cases.
type Evaluator interface {
	Evaluate(ctx context.Context, code string, testCases []models.TestCase, language string) (*Result, error)
}

// Gemini calls the Google generative language API.
type Gemini struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
}

func NewGemini(apiKey, model string, timeout time.Duration) *Gemini {
	return &Gemini{
		client:  &http.Client{Timeout: timeout},
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://generativelanguage.googleapis.com",
	}
}

// NewGeminiWithBaseURL is used by tests to point at a stub server.
func NewGeminiWithBaseURL(apiKey, model, baseURL string) *Gemini {
	g := NewGemini(apiKey, model, 30*time.Second)
	g.baseURL = strings.TrimSuffix(baseURL, "/")
	return g
}

func (g *Gemini) Evaluate(ctx context.Context, code string, testCases []models.TestCase, language string) (*Result, error) {
	prompt := BuildPrompt(code, testCases, language)

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate code against test cases: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to evaluate code against test cases: status %d", resp.StatusCode)
	}

	text := gjson.GetBytes(raw, "candidates.0.content.parts.0.text")
	if !text.Exists() {
		return nil, ErrBadResponse
	}

	return ParseResult(text.String())
}

// ParseResult locates the JSON object in the model's reply and decodes it
// into the closed Result shape. Missing required fields or an out-of-range
// score reject the whole reply.
func ParseResult(text string) (*Result, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, ErrBadResponse
	}
	doc := text[start : end+1]

	if !gjson.Valid(doc) {
		return nil, ErrBadResponse
	}
	// Required fields must be present, not defaulted.
	if !gjson.Get(doc, "overallScore").Exists() || !gjson.Get(doc, "testResults").IsArray() {
		return nil, ErrBadResponse
	}

	var result Result
	if err := json.Unmarshal([]byte(doc), &result); err != nil {
		return nil, ErrBadResponse
	}
	if result.OverallScore < 0 || result.OverallScore > 100 {
		return nil, ErrBadResponse
	}

	return &result, nil
}

// BuildPrompt formats the evaluation request the way the scoring contract
// expects: numbered test cases and a JSON-only response instruction.
func BuildPrompt(code string, testCases []models.TestCase, language string) string {
	var cases strings.Builder
	for i, tc := range testCases {
		desc := tc.Description
		if desc == "" {
			desc = "N/A"
		}
		fmt.Fprintf(&cases, "Test Case %d:\nDescription: %s\nInput: %s\nExpected Output: %s\n\n",
			i+1, desc, tc.Input, tc.ExpectedOutput)
	}

	if language == "" {
		language = "Unknown"
	}

	return fmt.Sprintf(`Please evaluate the following code against the provided test cases.

Code (%s):
`+"```"+`
%s
`+"```"+`

Test Cases:
%s
For each test case, determine if the code would produce the expected output.
Provide an overall score from 0-100 indicating what percentage of test cases the code satisfies.
Explain your reasoning for each test case evaluation.

Output your response in the following JSON format:
{
  "testResults": [
    {
      "testCaseIndex": 0,
      "passed": true,
      "explanation": "explanation here"
    }
  ],
  "overallScore": 85,
  "summary": "overall explanation"
}

Ensure your response is valid JSON. Only provide the JSON with no additional text.`,
		language, code, cases.String())
}
