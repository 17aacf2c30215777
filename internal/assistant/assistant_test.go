package assistant

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/sqlask/sqlask/internal/nl2sql"
	"github.com/sqlask/sqlask/internal/query"
	"github.com/sqlask/sqlask/internal/query/sqlite"
	"github.com/sqlask/sqlask/internal/safety"
	"github.com/sqlask/sqlask/internal/session"
	"github.com/sqlask/sqlask/internal/storage"
	"github.com/sqlask/sqlask/internal/storage/local"
)

func TestAskWithoutUploadAsksForDatabase(t *testing.T) {
	translator := &fakeTranslator{sql: "SELECT 1"}
	svc := newFakeService(t, translator, &fakeEngine{}, Config{})
	sess := session.NewManager().Create()

	answer := svc.Ask(context.Background(), sess, "How many users?")
	if answer.Outcome != OutcomeNoDatabase {
		t.Fatalf("Outcome = %q", answer.Outcome)
	}
	if got := answer.Message(); got != "❌ Please upload an SQLite database first." {
		t.Fatalf("Message() = %q", got)
	}
	if translator.calls != 0 {
		t.Fatal("translator should not be called without a database")
	}
}

func TestAskChecksDatabaseBeforeQuestionText(t *testing.T) {
	translator := &fakeTranslator{sql: "SELECT 1"}
	svc := newFakeService(t, translator, &fakeEngine{}, Config{})
	sess := session.NewManager().Create()

	for _, question := range []string{"", "   "} {
		if answer := svc.Ask(context.Background(), sess, question); answer.Outcome != OutcomeNoDatabase {
			t.Fatalf("Ask(%q) Outcome = %q, want %q", question, answer.Outcome, OutcomeNoDatabase)
		}
	}

	if _, err := svc.Upload(context.Background(), sess, "a.db", strings.NewReader("db"), 2); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	answer := svc.Ask(context.Background(), sess, "   ")
	if answer.Outcome != OutcomeFailed || answer.Message() != "❌ Error: question is required" {
		t.Fatalf("answer = %+v, message %q", answer, answer.Message())
	}
	if translator.calls != 0 {
		t.Fatal("translator should not be called for a blank question")
	}
}

func TestUploadThenAskAgainstRealSQLite(t *testing.T) {
	store, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New() error = %v", err)
	}
	translator := &fakeTranslator{sql: "SELECT COUNT(*) FROM users"}
	svc, err := New(Config{RowLimit: 50, SchemaSampleRows: 2}, Dependencies{
		Store:      store,
		Engine:     sqlite.NewEngine(store),
		Translator: translator,
		Gate:       safety.NewGate(safety.ModeKeyword),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	sess := session.NewManager().Create()

	data := usersDatabaseBytes(t)
	message, err := svc.Upload(context.Background(), sess, "shop.sqlite", bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if message != "Database 'shop.sqlite' uploaded successfully." {
		t.Fatalf("Upload() = %q", message)
	}

	answer := svc.Ask(context.Background(), sess, "How many users?")
	if answer.Outcome != OutcomeAnswered {
		t.Fatalf("Outcome = %q err = %v", answer.Outcome, answer.Err)
	}
	want := "✅ Generated SQL:\nSELECT COUNT(*) FROM users\n\n📊 Query Result:\nCOUNT(*)\n3"
	if got := answer.Message(); got != want {
		t.Fatalf("Message() = %q, want %q", got, want)
	}

	req := translator.last
	if req.Dialect != "SQLite" || req.TopK != 50 || req.Question != "How many users?" {
		t.Fatalf("translate request = %#v", req)
	}
	if len(req.Tables) != 1 || req.Tables[0].Name != "users" || len(req.Tables[0].SampleRows) != 2 {
		t.Fatalf("schema context = %#v", req.Tables)
	}
}

func TestAskBlocksUnsafeSQLBeforeExecuting(t *testing.T) {
	engine := &fakeEngine{}
	svc := newFakeService(t, &fakeTranslator{sql: "DELETE FROM users"}, engine, Config{})
	sess := sessionWithDatabase()

	answer := svc.Ask(context.Background(), sess, "remove everyone")
	if answer.Outcome != OutcomeBlocked || answer.Keyword != "delete" {
		t.Fatalf("answer = %#v", answer)
	}
	if got := answer.Message(); got != "❌ Unsafe SQL detected and blocked:\n\nDELETE FROM users" {
		t.Fatalf("Message() = %q", got)
	}
	if len(engine.executed) != 0 {
		t.Fatalf("blocked statement executed: %#v", engine.executed)
	}
}

func TestAskBlocksTrailingUnsafeStatement(t *testing.T) {
	engine := &fakeEngine{}
	translator := &fakeTranslator{steps: []string{"SELECT count(*) FROM users", "DROP TABLE users"}}
	svc := newFakeService(t, translator, engine, Config{})

	answer := svc.Ask(context.Background(), sessionWithDatabase(), "how many users")
	if answer.Outcome != OutcomeBlocked || answer.Keyword != "drop" {
		t.Fatalf("answer = %#v", answer)
	}
	want := "❌ Unsafe SQL detected and blocked:\n\nSELECT count(*) FROM users;\nDROP TABLE users"
	if got := answer.Message(); got != want {
		t.Fatalf("Message() = %q, want %q", got, want)
	}
	if len(engine.executed) != 0 {
		t.Fatalf("statement executed: %#v", engine.executed)
	}
}

func TestAskStrictGateChecksEveryStatement(t *testing.T) {
	engine := &fakeEngine{}
	translator := &fakeTranslator{steps: []string{"SELECT 1", "PRAGMA journal_mode = WAL"}}
	svc, err := New(Config{}, Dependencies{
		Store:      newMemStore(),
		Engine:     engine,
		Translator: translator,
		Gate:       safety.NewGate(safety.ModeStrict),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if answer := svc.Ask(context.Background(), sessionWithDatabase(), "q"); answer.Outcome != OutcomeBlocked {
		t.Fatalf("Outcome = %q, want blocked", answer.Outcome)
	}
	if len(engine.executed) != 0 {
		t.Fatalf("statement executed: %#v", engine.executed)
	}
}

func TestAskRunsOnlyFirstOfSafeStatements(t *testing.T) {
	engine := &fakeEngine{result: query.Result{Columns: []string{"n"}, Rows: [][]any{{int64(1)}}}}
	translator := &fakeTranslator{steps: []string{"SELECT 1 AS n", "SELECT 2 AS n"}}
	svc := newFakeService(t, translator, engine, Config{})

	answer := svc.Ask(context.Background(), sessionWithDatabase(), "q")
	if answer.Outcome != OutcomeAnswered || answer.SQL != "SELECT 1 AS n" {
		t.Fatalf("answer = %#v", answer)
	}
	if len(engine.executed) != 1 || engine.executed[0].SQL != "SELECT 1 AS n" {
		t.Fatalf("executed = %#v", engine.executed)
	}
}

func TestAskAfterOrderExecutesThenWithholds(t *testing.T) {
	engine := &fakeEngine{}
	svc := newFakeService(t, &fakeTranslator{sql: "DROP TABLE users"}, engine, Config{Order: safety.OrderAfter})

	answer := svc.Ask(context.Background(), sessionWithDatabase(), "drop it")
	if answer.Outcome != OutcomeBlocked {
		t.Fatalf("Outcome = %q", answer.Outcome)
	}
	if len(engine.executed) != 1 || engine.executed[0].ReadOnly {
		t.Fatalf("executed = %#v, want one read-write execution", engine.executed)
	}
	if strings.Contains(answer.Message(), "Query Result") {
		t.Fatalf("blocked answer leaked result: %q", answer.Message())
	}
}

func TestAskExecutesSafeSQLReadOnly(t *testing.T) {
	engine := &fakeEngine{result: query.Result{Columns: []string{"n"}, Rows: [][]any{{int64(7)}}}}
	svc := newFakeService(t, &fakeTranslator{sql: "SELECT count(*) AS n FROM users"}, engine, Config{RowLimit: 10})

	answer := svc.Ask(context.Background(), sessionWithDatabase(), "count")
	if answer.Outcome != OutcomeAnswered {
		t.Fatalf("answer = %#v", answer)
	}
	if len(engine.executed) != 1 || !engine.executed[0].ReadOnly || engine.executed[0].RowLimit != 10 {
		t.Fatalf("executed = %#v", engine.executed)
	}
	if answer.ResultText != "n\n7" {
		t.Fatalf("ResultText = %q", answer.ResultText)
	}
}

func TestAskStrictGateRejectsNonSelect(t *testing.T) {
	engine := &fakeEngine{}
	svc, err := New(Config{}, Dependencies{
		Store:      newMemStore(),
		Engine:     engine,
		Translator: &fakeTranslator{sql: "PRAGMA table_info(users)"},
		Gate:       safety.NewGate(safety.ModeStrict),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	answer := svc.Ask(context.Background(), sessionWithDatabase(), "describe users")
	if answer.Outcome != OutcomeBlocked || answer.Keyword != "" {
		t.Fatalf("answer = %#v", answer)
	}
}

func TestAskReportsTranslatorError(t *testing.T) {
	svc := newFakeService(t, &fakeTranslator{err: errors.New("model unavailable")}, &fakeEngine{}, Config{})

	answer := svc.Ask(context.Background(), sessionWithDatabase(), "count")
	if answer.Outcome != OutcomeFailed {
		t.Fatalf("Outcome = %q", answer.Outcome)
	}
	if got := answer.Message(); got != "❌ Error: translate question: model unavailable" {
		t.Fatalf("Message() = %q", got)
	}
}

func TestAskReportsExecutionError(t *testing.T) {
	svc := newFakeService(t, &fakeTranslator{sql: "SELECT nope"}, &fakeEngine{execErr: errors.New("no such column: nope")}, Config{})

	answer := svc.Ask(context.Background(), sessionWithDatabase(), "count")
	if answer.Outcome != OutcomeFailed || !strings.HasPrefix(answer.Message(), "❌ Error: ") {
		t.Fatalf("answer = %#v", answer)
	}
	if !strings.Contains(answer.Message(), "no such column") {
		t.Fatalf("Message() = %q", answer.Message())
	}
}

func TestAskAppendsSummaryWhenAnswererConfigured(t *testing.T) {
	answerer := &fakeAnswerer{answer: "There are 7 users."}
	svc, err := New(Config{}, Dependencies{
		Store:      newMemStore(),
		Engine:     &fakeEngine{result: query.Result{Columns: []string{"n"}, Rows: [][]any{{int64(7)}}}},
		Translator: &fakeTranslator{sql: "SELECT count(*) AS n FROM users"},
		Answerer:   answerer,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	answer := svc.Ask(context.Background(), sessionWithDatabase(), "How many users?")
	if !strings.HasSuffix(answer.Message(), "\n\n💬 Answer:\nThere are 7 users.") {
		t.Fatalf("Message() = %q", answer.Message())
	}
	if answerer.last.Result != "n\n7" || answerer.last.Question != "How many users?" {
		t.Fatalf("answer request = %#v", answerer.last)
	}
}

func TestAskFailsWhenAnswererFails(t *testing.T) {
	svc, err := New(Config{}, Dependencies{
		Store:      newMemStore(),
		Engine:     &fakeEngine{},
		Translator: &fakeTranslator{sql: "SELECT 1"},
		Answerer:   &fakeAnswerer{err: errors.New("timeout")},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	answer := svc.Ask(context.Background(), sessionWithDatabase(), "q")
	if answer.Outcome != OutcomeFailed {
		t.Fatalf("Outcome = %q", answer.Outcome)
	}
}

func TestAskIsRepeatable(t *testing.T) {
	svc := newFakeService(t, &fakeTranslator{sql: "SELECT 1 AS one"}, &fakeEngine{result: query.Result{Columns: []string{"one"}, Rows: [][]any{{int64(1)}}}}, Config{})
	sess := sessionWithDatabase()

	first := svc.Ask(context.Background(), sess, "one")
	second := svc.Ask(context.Background(), sess, "one")
	if first.Message() != second.Message() {
		t.Fatalf("messages differ:\n%q\n%q", first.Message(), second.Message())
	}
}

func TestUploadReplacesAndDeletesPreviousObject(t *testing.T) {
	store := newMemStore()
	svc := newFakeServiceWithStore(t, store)
	sess := session.NewManager().Create()

	if _, err := svc.Upload(context.Background(), sess, "a.db", strings.NewReader("one"), 3); err != nil {
		t.Fatalf("Upload(a) error = %v", err)
	}
	first, _ := sess.Database()
	if _, err := svc.Upload(context.Background(), sess, `C:\tmp\b.db`, strings.NewReader("two"), 3); err != nil {
		t.Fatalf("Upload(b) error = %v", err)
	}
	second, _ := sess.Database()

	if second.FileName != "b.db" {
		t.Fatalf("FileName = %q", second.FileName)
	}
	if store.has(first.ObjectKey) {
		t.Fatal("previous upload should be deleted")
	}
	if !store.has(second.ObjectKey) {
		t.Fatal("current upload missing")
	}
}

func TestUploadRejectsEmptyFileName(t *testing.T) {
	svc := newFakeServiceWithStore(t, newMemStore())
	if _, err := svc.Upload(context.Background(), session.NewManager().Create(), "..", strings.NewReader("x"), 1); err == nil {
		t.Fatal("expected file name error")
	}
}

func TestSchemaRequiresDatabase(t *testing.T) {
	svc := newFakeServiceWithStore(t, newMemStore())
	if _, _, err := svc.Schema(context.Background(), session.NewManager().Create()); !errors.Is(err, ErrNoDatabase) {
		t.Fatalf("Schema() error = %v, want ErrNoDatabase", err)
	}
}

func TestReleaseDeletesSessionUploads(t *testing.T) {
	store := newMemStore()
	svc := newFakeServiceWithStore(t, store)
	sess := session.NewManager().Create()
	if _, err := svc.Upload(context.Background(), sess, "a.db", strings.NewReader("one"), 3); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	source, _ := sess.Database()

	if got := svc.Release(context.Background(), []*session.Session{sess, session.NewManager().Create()}); got != 1 {
		t.Fatalf("Release() = %d, want 1", got)
	}
	if store.has(source.ObjectKey) {
		t.Fatal("released upload still stored")
	}
}

func TestReleaseDoesNotCountFailedDeletes(t *testing.T) {
	store := &failingDeleteStore{memStore: newMemStore()}
	svc := newFakeServiceWithStore(t, store)
	sess := session.NewManager().Create()
	if _, err := svc.Upload(context.Background(), sess, "a.db", strings.NewReader("one"), 3); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if got := svc.Release(context.Background(), []*session.Session{sess}); got != 0 {
		t.Fatalf("Release() = %d, want 0", got)
	}
}

func TestReleaseClearsSessionPrefix(t *testing.T) {
	root := t.TempDir()
	store, err := local.New(root)
	if err != nil {
		t.Fatalf("local.New() error = %v", err)
	}
	svc := newFakeServiceWithStore(t, store)
	sess := session.NewManager().Create()
	if _, err := svc.Upload(context.Background(), sess, "a.db", strings.NewReader("one"), 3); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	// An object left behind by a failed replacement delete.
	stray, err := storage.BuildUploadPath(sess.ID, "old.db")
	if err != nil {
		t.Fatalf("BuildUploadPath() error = %v", err)
	}
	if _, err := store.Put(context.Background(), stray, strings.NewReader("old"), 3, storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if got := svc.Release(context.Background(), []*session.Session{sess}); got != 2 {
		t.Fatalf("Release() = %d, want 2", got)
	}
	if _, err := os.Stat(filepath.Join(root, "uploads", sess.ID)); !os.IsNotExist(err) {
		t.Fatalf("session upload dir still present: %v", err)
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	if _, err := New(Config{}, Dependencies{}); err == nil {
		t.Fatal("expected missing dependency error")
	}
	_, err := New(Config{Order: "sideways"}, Dependencies{Store: newMemStore(), Engine: &fakeEngine{}, Translator: &fakeTranslator{}})
	if err == nil {
		t.Fatal("expected invalid order error")
	}
}

func newFakeService(t *testing.T, translator nl2sql.Translator, engine query.Engine, cfg Config) *Service {
	t.Helper()
	svc, err := New(cfg, Dependencies{
		Store:      newMemStore(),
		Engine:     engine,
		Translator: translator,
		Gate:       safety.NewGate(safety.ModeKeyword),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc
}

func newFakeServiceWithStore(t *testing.T, store storage.ObjectStore) *Service {
	t.Helper()
	svc, err := New(Config{}, Dependencies{Store: store, Engine: &fakeEngine{}, Translator: &fakeTranslator{sql: "SELECT 1"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc
}

func sessionWithDatabase() *session.Session {
	sess := session.NewManager().Create()
	sess.SetDatabase(query.Source{ObjectKey: "uploads/x/db.sqlite", FileName: "db.sqlite"})
	return sess
}

func usersDatabaseBytes(t *testing.T) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.sqlite")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	for _, stmt := range []string{
		"CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)",
		"INSERT INTO users (id, name) VALUES (1, 'ada'), (2, 'grace'), (3, 'linus')",
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read database: %v", err)
	}
	return data
}

type fakeTranslator struct {
	sql   string
	steps []string
	err   error
	calls int
	last  nl2sql.Request
}

func (f *fakeTranslator) Translate(_ context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nl2sql.Result{}, f.err
	}
	if len(f.steps) > 0 {
		return nl2sql.Result{SQL: f.steps[0], Steps: f.steps, Provider: "fake", Model: "fake"}, nil
	}
	return nl2sql.Result{SQL: f.sql, Steps: []string{f.sql}, Provider: "fake", Model: "fake"}, nil
}

type fakeAnswerer struct {
	answer string
	err    error
	last   nl2sql.AnswerRequest
}

func (f *fakeAnswerer) Answer(_ context.Context, req nl2sql.AnswerRequest) (string, error) {
	f.last = req
	return f.answer, f.err
}

type fakeEngine struct {
	result   query.Result
	execErr  error
	executed []query.Request
}

func (f *fakeEngine) Dialect() string { return "SQLite" }

func (f *fakeEngine) Execute(_ context.Context, req query.Request) (query.Result, error) {
	f.executed = append(f.executed, req)
	if f.execErr != nil {
		return query.Result{}, f.execErr
	}
	return f.result, nil
}

func (f *fakeEngine) Describe(context.Context, query.Source, int) ([]query.Table, error) {
	return []query.Table{{Name: "users", Columns: []query.Column{{Name: "id", Type: "INTEGER"}}}}, nil
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Put(_ context.Context, key string, body io.Reader, _ int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return storage.ObjectInfo{Key: key, Size: int64(len(data)), FileName: opts.FileName}, nil
}

func (m *memStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

type failingDeleteStore struct {
	*memStore
}

func (f *failingDeleteStore) Delete(context.Context, string) error {
	return errors.New("bucket unavailable")
}
