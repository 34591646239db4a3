package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// ErrNoSource means the text contained no recognizable GitHub file link.
// Callers treat this differently from a fetch failure.
var ErrNoSource = errors.New("no usable code reference found")

// Matches https://github.com/<owner>/<repo>/blob/<ref>/<path>, ignoring any
// query string or fragment.
var blobPattern = regexp2.MustCompile(`github\.com/([^/\s]+)/([^/\s]+)/blob/[^/\s]+/([^\s?#]+)`, regexp2.None)

// Source is a fetched piece of code a submission points at.
type Source struct {
	Owner    string `json:"owner"`
	Repo     string `json:"repo"`
	Path     string `json:"path"`
	Language string `json:"language,omitempty"`
	Code     string `json:"-"`
}

type Fetcher struct {
	client  *http.Client
	token   string
	baseURL string
}

func NewFetcher(timeout time.Duration, token string) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		token:   token,
		baseURL: "https://api.github.com",
	}
}

// NewFetcherWithBaseURL is used by tests to point at a stub server.
func NewFetcherWithBaseURL(timeout time.Duration, token, baseURL string) *Fetcher {
	f := NewFetcher(timeout, token)
	f.baseURL = strings.TrimSuffix(baseURL, "/")
	return f
}

// ExtractBlobURL pulls the first GitHub blob reference out of free text.
func ExtractBlobURL(text string) (owner, repo, path string, ok bool) {
	m, err := blobPattern.FindStringMatch(text)
	if err != nil || m == nil {
		return "", "", "", false
	}
	groups := m.Groups()
	return groups[1].String(), groups[2].String(), groups[3].String(), true
}

// Resolve extracts a code reference from the proof-of-fix text and fetches
// its raw content. Returns ErrNoSource when the text holds no reference.
func (f *Fetcher) Resolve(ctx context.Context, text string) (*Source, error) {
	owner, repo, path, ok := ExtractBlobURL(text)
	if !ok {
		return nil, ErrNoSource
	}

	code, err := f.FetchRaw(ctx, owner, repo, path)
	if err != nil {
		return nil, err
	}

	return &Source{
		Owner:    owner,
		Repo:     repo,
		Path:     path,
		Language: LanguageFromPath(path),
		Code:     code,
	}, nil
}

// FetchRaw downloads the file content through the GitHub contents API.
func (f *Fetcher) FetchRaw(ctx context.Context, owner, repo, path string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s", f.baseURL, owner, repo, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github.v3.raw")
	if f.token != "" {
		req.Header.Set("Authorization", "token "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch code from GitHub: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch code from GitHub: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

var languageMap = map[string]string{
	"js":   "JavaScript",
	"jsx":  "React JSX",
	"ts":   "TypeScript",
	"tsx":  "React TypeScript",
	"py":   "Python",
	"java": "Java",
	"rb":   "Ruby",
	"php":  "PHP",
	"go":   "Go",
	"rs":   "Rust",
	"c":    "C",
	"cpp":  "C++",
	"cs":   "C#",
	"html": "HTML",
	"css":  "CSS",
	"json": "JSON",
	"md":   "Markdown",
}

// LanguageFromPath guesses the language hint from the file extension.
// Empty string when unknown.
func LanguageFromPath(path string) string {
	parts := strings.Split(path, ".")
	if len(parts) < 2 {
		return ""
	}
	return languageMap[strings.ToLower(parts[len(parts)-1])]
}
