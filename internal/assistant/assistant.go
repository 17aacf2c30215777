// Package assistant ties uploads, text-to-SQL translation, the safety gate and
// query execution together for one session at a time.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sqlask/sqlask/internal/nl2sql"
	"github.com/sqlask/sqlask/internal/observability"
	"github.com/sqlask/sqlask/internal/query"
	"github.com/sqlask/sqlask/internal/safety"
	"github.com/sqlask/sqlask/internal/session"
	"github.com/sqlask/sqlask/internal/storage"
)

var ErrNoDatabase = errors.New("no database uploaded")

type Outcome string

const (
	OutcomeAnswered   Outcome = "answered"
	OutcomeBlocked    Outcome = "blocked"
	OutcomeNoDatabase Outcome = "no_database"
	OutcomeFailed     Outcome = "failed"
)

type Config struct {
	// RowLimit caps returned rows and is passed to the model as top-k.
	RowLimit         int
	SchemaSampleRows int
	Order            safety.Order
}

type Dependencies struct {
	Store      storage.ObjectStore
	Engine     query.Engine
	Translator nl2sql.Translator
	// Answerer is optional; without it answers carry only SQL and result.
	Answerer nl2sql.Answerer
	Gate     safety.Gate
	Logger   *slog.Logger
}

type Service struct {
	cfg        Config
	store      storage.ObjectStore
	engine     query.Engine
	translator nl2sql.Translator
	answerer   nl2sql.Answerer
	gate       safety.Gate
	logger     *slog.Logger
}

func New(cfg Config, deps Dependencies) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("upload store is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("query engine is required")
	}
	if deps.Translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if cfg.Order == "" {
		cfg.Order = safety.OrderBefore
	}
	if cfg.Order != safety.OrderBefore && cfg.Order != safety.OrderAfter {
		return nil, fmt.Errorf("invalid safety order %q", cfg.Order)
	}
	if deps.Gate.Mode == "" {
		deps.Gate.Mode = safety.ModeKeyword
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		cfg:        cfg,
		store:      deps.Store,
		engine:     deps.Engine,
		translator: deps.Translator,
		answerer:   deps.Answerer,
		gate:       deps.Gate,
		logger:     logger,
	}, nil
}

// Upload stores body as the session's database and makes it the target of
// later questions. The previous upload of the session is deleted best-effort.
// The bytes are not validated; a bad file surfaces when it is queried.
func (s *Service) Upload(ctx context.Context, sess *session.Session, fileName string, body io.Reader, size int64) (string, error) {
	if sess == nil {
		return "", fmt.Errorf("session is required")
	}
	name := storage.SanitizeFileName(fileName)
	if name == "" {
		return "", fmt.Errorf("file name is required")
	}
	key, err := storage.BuildUploadPath(sess.ID, name)
	if err != nil {
		return "", err
	}
	info, err := s.store.Put(ctx, key, body, size, storage.PutOptions{FileName: name})
	if err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}

	previous, replaced := sess.SetDatabase(query.Source{ObjectKey: key, FileName: name})
	if replaced && previous.ObjectKey != key {
		if err := s.store.Delete(ctx, previous.ObjectKey); err != nil {
			s.logger.WarnContext(ctx, "delete previous upload failed",
				slog.String("session_id", sess.ID),
				slog.String("object_key", previous.ObjectKey),
				slog.Any("error", err),
			)
		}
	}
	observability.ObserveUpload(info.Size)
	s.logger.InfoContext(ctx, "database_uploaded",
		slog.String("session_id", sess.ID),
		slog.String("file_name", name),
		slog.Int64("bytes", info.Size),
	)
	return fmt.Sprintf("Database '%s' uploaded successfully.", name), nil
}

// Ask answers question against the session's database. Every failure is
// folded into the returned Answer.
func (s *Service) Ask(ctx context.Context, sess *session.Session, question string) Answer {
	answer := s.ask(ctx, sess, question)
	observability.ObserveQuestion(string(answer.Outcome))

	attrs := []any{
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("outcome", string(answer.Outcome)),
	}
	if sess != nil {
		attrs = append(attrs, slog.String("session_id", sess.ID))
	}
	switch answer.Outcome {
	case OutcomeFailed:
		s.logger.WarnContext(ctx, "question_failed", append(attrs, slog.Any("error", answer.Err))...)
	case OutcomeBlocked:
		s.logger.WarnContext(ctx, "question_blocked", append(attrs, slog.String("keyword", answer.Keyword), slog.String("sql", answer.SQL))...)
	default:
		s.logger.InfoContext(ctx, "question_answered", attrs...)
	}
	return answer
}

func (s *Service) ask(ctx context.Context, sess *session.Session, question string) Answer {
	if sess == nil {
		return failed("", fmt.Errorf("session is required"))
	}
	source, ok := sess.Database()
	if !ok {
		return Answer{Outcome: OutcomeNoDatabase, Err: ErrNoDatabase}
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return failed("", fmt.Errorf("question is required"))
	}

	tables, err := s.engine.Describe(ctx, source, s.cfg.SchemaSampleRows)
	if err != nil {
		return failed("", fmt.Errorf("load schema: %w", err))
	}

	start := time.Now()
	translated, err := s.translator.Translate(ctx, nl2sql.Request{
		Question: question,
		Dialect:  query.DialectFor(s.engine, source),
		Tables:   tables,
		TopK:     s.cfg.RowLimit,
	})
	observability.ObserveTranslateLatency(time.Since(start))
	if err != nil {
		return failed("", fmt.Errorf("translate question: %w", err))
	}
	sql := translated.SQL
	steps := translated.Steps
	if len(steps) == 0 {
		steps = []string{sql}
	}

	var result query.Result
	switch s.cfg.Order {
	case safety.OrderAfter:
		result, err = s.execute(ctx, source, sql, false)
		if err != nil {
			return failed(sql, err)
		}
		if verdict := s.checkSteps(steps); !verdict.Safe {
			return blocked(strings.Join(steps, ";\n"), verdict)
		}
	default:
		if verdict := s.checkSteps(steps); !verdict.Safe {
			return blocked(strings.Join(steps, ";\n"), verdict)
		}
		result, err = s.execute(ctx, source, sql, true)
		if err != nil {
			return failed(sql, err)
		}
	}

	answer := Answer{
		Outcome:    OutcomeAnswered,
		SQL:        sql,
		Result:     result,
		ResultText: query.FormatResult(result),
	}
	if s.answerer != nil {
		summary, err := s.answerer.Answer(ctx, nl2sql.AnswerRequest{Question: question, SQL: sql, Result: answer.ResultText})
		if err != nil {
			return failed(sql, fmt.Errorf("answer question: %w", err))
		}
		answer.Summary = summary
	}
	return answer
}

func (s *Service) execute(ctx context.Context, source query.Source, sql string, readOnly bool) (query.Result, error) {
	result, err := s.engine.Execute(ctx, query.Request{
		SQL:      sql,
		RowLimit: s.cfg.RowLimit,
		Source:   source,
		ReadOnly: readOnly,
	})
	if err != nil {
		return query.Result{}, err
	}
	observability.ObserveQueryLatency(result.Duration)
	return result, nil
}

// Schema returns the tables of the session's current database.
func (s *Service) Schema(ctx context.Context, sess *session.Session) (query.Source, []query.Table, error) {
	if sess == nil {
		return query.Source{}, nil, fmt.Errorf("session is required")
	}
	source, ok := sess.Database()
	if !ok {
		return query.Source{}, nil, ErrNoDatabase
	}
	tables, err := s.engine.Describe(ctx, source, s.cfg.SchemaSampleRows)
	if err != nil {
		return query.Source{}, nil, fmt.Errorf("load schema: %w", err)
	}
	return source, tables, nil
}

// Release deletes the uploads held by sessions that are no longer in use and
// returns how many objects were removed. Stores that support prefix deletes
// also lose any earlier upload of the session whose replacement delete failed.
func (s *Service) Release(ctx context.Context, sessions []*session.Session) int {
	deleter, byPrefix := s.store.(storage.PrefixDeleter)
	released := 0
	for _, sess := range sessions {
		if byPrefix {
			if removed, ok := s.releasePrefix(ctx, deleter, sess); ok {
				released += removed
				continue
			}
		}
		source, ok := sess.Database()
		if !ok {
			continue
		}
		if err := s.store.Delete(ctx, source.ObjectKey); err != nil {
			s.logger.WarnContext(ctx, "release upload failed",
				slog.String("session_id", sess.ID),
				slog.String("object_key", source.ObjectKey),
				slog.Any("error", err),
			)
			continue
		}
		released++
	}
	return released
}

func (s *Service) releasePrefix(ctx context.Context, deleter storage.PrefixDeleter, sess *session.Session) (int, bool) {
	prefix, err := storage.SessionUploadPrefix(sess.ID)
	if err != nil {
		return 0, false
	}
	removed, err := deleter.DeletePrefix(ctx, prefix)
	if err != nil {
		s.logger.WarnContext(ctx, "release session uploads failed",
			slog.String("session_id", sess.ID),
			slog.String("prefix", prefix),
			slog.Any("error", err),
		)
		return 0, false
	}
	s.logger.DebugContext(ctx, "session uploads released",
		slog.String("session_id", sess.ID),
		slog.Int("objects", removed),
	)
	return removed, true
}

// checkSteps vets every statement the model generated, not only the one that
// runs, so a trailing destructive statement still blocks the answer.
func (s *Service) checkSteps(steps []string) safety.Verdict {
	for _, step := range steps {
		if verdict := s.gate.Check(step); !verdict.Safe {
			return verdict
		}
	}
	return safety.Verdict{Safe: true}
}

func failed(sql string, err error) Answer {
	return Answer{Outcome: OutcomeFailed, SQL: sql, Err: err}
}

func blocked(sql string, verdict safety.Verdict) Answer {
	observability.IncrementSafetyBlock(verdict.Keyword)
	return Answer{Outcome: OutcomeBlocked, SQL: sql, Keyword: verdict.Keyword, Reason: verdict.Reason}
}
