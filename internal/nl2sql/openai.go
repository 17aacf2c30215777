package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const provider = "openai-compatible"

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type OpenAITranslator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewOpenAITranslator(cfg OpenAIConfig) (*OpenAITranslator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAITranslator{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (t *OpenAITranslator) Translate(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Question) == "" {
		return Result{}, fmt.Errorf("question is required")
	}
	systemPrompt, userPrompt, err := buildTranslatePrompt(req)
	if err != nil {
		return Result{}, err
	}
	content, err := t.complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return Result{}, err
	}

	steps := SplitStatements(stripMarkdownSQL(content))
	if len(steps) == 0 {
		return Result{}, fmt.Errorf("model returned empty SQL")
	}
	return Result{
		SQL:      steps[0],
		Steps:    steps,
		Provider: provider,
		Model:    t.model,
	}, nil
}

func (t *OpenAITranslator) Answer(ctx context.Context, req AnswerRequest) (string, error) {
	systemPrompt := "You answer questions about a database using the SQL query that was run and its result. " +
		"Answer in one or two plain sentences. Do not invent data that is not in the result."
	userPrompt := fmt.Sprintf(
		"Question:\n%s\n\nSQL query:\n%s\n\nSQL result:\n%s",
		strings.TrimSpace(req.Question),
		strings.TrimSpace(req.SQL),
		req.Result,
	)
	content, err := t.complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(content)
	if answer == "" {
		return "", fmt.Errorf("model returned empty answer")
	}
	return answer, nil
}

func (t *OpenAITranslator) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": t.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": t.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty chat completion choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func buildTranslatePrompt(req Request) (string, string, error) {
	dialect := strings.TrimSpace(req.Dialect)
	if dialect == "" {
		dialect = "SQLite"
	}
	schema, err := renderSchema(req)
	if err != nil {
		return "", "", err
	}

	systemPrompt := fmt.Sprintf(
		"You are a %s expert. Given an input question, write a syntactically correct %s query that answers it. "+
			"Return ONLY SQL. No markdown, no explanation.",
		dialect, dialect,
	)

	rules := []string{
		"Use only the tables and columns listed above.",
		"Query only the columns needed to answer the question.",
		"Wrap each column name in double quotes.",
	}
	if req.TopK > 0 {
		rules = append(rules, fmt.Sprintf("Unless the question asks for a specific number of rows, return at most %d rows using LIMIT.", req.TopK))
	}
	rules = append(rules, "Output a single SQL statement.")

	userPrompt := fmt.Sprintf(
		"Only use the following tables:\n%s\n\nQuestion:\n%s\n\nRules:\n- %s",
		schema,
		strings.TrimSpace(req.Question),
		strings.Join(rules, "\n- "),
	)
	return systemPrompt, userPrompt, nil
}

// renderSchema lists each table's CREATE statement followed by its sample rows.
func renderSchema(req Request) (string, error) {
	if len(req.Tables) == 0 {
		return "(no tables)", nil
	}
	var b strings.Builder
	for i, table := range req.Tables {
		if i > 0 {
			b.WriteString("\n\n")
		}
		ddl := strings.TrimSpace(table.DDL)
		if ddl == "" {
			columns := make([]string, 0, len(table.Columns))
			for _, column := range table.Columns {
				columns = append(columns, strings.TrimSpace(column.Name+" "+column.Type))
			}
			ddl = fmt.Sprintf("CREATE TABLE %s (%s)", table.Name, strings.Join(columns, ", "))
		}
		b.WriteString(ddl)
		if len(table.SampleRows) == 0 {
			continue
		}
		rows, err := json.Marshal(table.SampleRows)
		if err != nil {
			return "", fmt.Errorf("marshal sample rows for %q: %w", table.Name, err)
		}
		fmt.Fprintf(&b, "\n/* %d rows from %s (JSON): %s */", len(table.SampleRows), table.Name, rows)
	}
	return b.String(), nil
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
