package nl2sql

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sqlask/sqlask/internal/query"
)

func TestStripMarkdownSQL(t *testing.T) {
	got := stripMarkdownSQL("```sql\nSELECT 1;\n```")
	if got != "SELECT 1;" {
		t.Fatalf("stripMarkdownSQL() = %q", got)
	}
}

func TestTranslateSendsSchemaAndParsesSteps(t *testing.T) {
	var captured struct {
		Model       string              `json:"model"`
		Temperature float64             `json:"temperature"`
		Messages    []map[string]string `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writeCompletion(w, "```sql\nSELECT COUNT(*) FROM users;\n```")
	}))
	defer server.Close()

	translator := newTestTranslator(t, server.URL)
	result, err := translator.Translate(context.Background(), Request{
		Question: "How many users?",
		Dialect:  "SQLite",
		TopK:     5,
		Tables: []query.Table{{
			Name:       "users",
			DDL:        "CREATE TABLE users (id INTEGER, name TEXT)",
			SampleRows: [][]any{{1, "ada"}},
		}},
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "SELECT COUNT(*) FROM users" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if len(result.Steps) != 1 || result.Provider != provider || result.Model != "test-model" {
		t.Fatalf("result = %#v", result)
	}

	if captured.Model != "test-model" || captured.Temperature != 0 {
		t.Fatalf("payload model=%q temperature=%f", captured.Model, captured.Temperature)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("messages = %d", len(captured.Messages))
	}
	if !strings.Contains(captured.Messages[0]["content"], "SQLite expert") {
		t.Fatalf("system prompt = %q", captured.Messages[0]["content"])
	}
	user := captured.Messages[1]["content"]
	for _, want := range []string{"CREATE TABLE users", `[[1,"ada"]]`, "How many users?", "at most 5 rows"} {
		if !strings.Contains(user, want) {
			t.Fatalf("user prompt missing %q:\n%s", want, user)
		}
	}
}

func TestTranslateReturnsAllStatementsAsSteps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, "SELECT 1; DELETE FROM users;")
	}))
	defer server.Close()

	result, err := newTestTranslator(t, server.URL).Translate(context.Background(), Request{Question: "q"})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "SELECT 1" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if len(result.Steps) != 2 || result.Steps[1] != "DELETE FROM users" {
		t.Fatalf("Steps = %#v", result.Steps)
	}
}

func TestTranslateErrorsOnUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestTranslator(t, server.URL).Translate(context.Background(), Request{Question: "q"})
	if err == nil || !strings.Contains(err.Error(), "status=429") {
		t.Fatalf("Translate() error = %v", err)
	}
}

func TestTranslateErrorsOnEmptySQL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, "```sql\n```")
	}))
	defer server.Close()

	if _, err := newTestTranslator(t, server.URL).Translate(context.Background(), Request{Question: "q"}); err == nil {
		t.Fatal("expected empty SQL error")
	}
}

func TestAnswerReturnsTrimmedContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "count(*)") {
			t.Errorf("answer request missing sql: %s", body)
		}
		writeCompletion(w, "  There are 3 users.\n")
	}))
	defer server.Close()

	answer, err := newTestTranslator(t, server.URL).Answer(context.Background(), AnswerRequest{
		Question: "How many users?",
		SQL:      "SELECT count(*) FROM users",
		Result:   "count(*)\n3",
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer != "There are 3 users." {
		t.Fatalf("Answer() = %q", answer)
	}
}

func TestNewOpenAITranslatorValidatesConfig(t *testing.T) {
	if _, err := NewOpenAITranslator(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected base URL error")
	}
	if _, err := NewOpenAITranslator(OpenAIConfig{BaseURL: "http://x"}); err == nil {
		t.Fatal("expected api key error")
	}
}

func newTestTranslator(t *testing.T, baseURL string) *OpenAITranslator {
	t.Helper()
	translator, err := NewOpenAITranslator(OpenAIConfig{BaseURL: baseURL + "/", APIKey: "test-key", Model: "test-model"})
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}
	return translator
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
	})
}
