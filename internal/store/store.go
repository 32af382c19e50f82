package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mathlabs/evaluator/internal/model"

	_ "modernc.org/sqlite"
)

// CollectionQuestions names the question collection in run records.
const CollectionQuestions = "questions"

// Store keeps questions and run records as JSON documents in SQLite.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection per process; also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS questions (
		problem_id TEXT PRIMARY KEY,
		difficulty TEXT NOT NULL DEFAULT '',
		doc TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS evaluations (
		run_id TEXT PRIMARY KEY,
		evaluated_at TEXT NOT NULL,
		doc TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertQuestion inserts a question or replaces the stored copy with the
// same problem id.
func (s *Store) UpsertQuestion(q model.Question) error {
	q.Validation = nil
	doc, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode question %s: %w", q.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO questions (problem_id, difficulty, doc) VALUES (?, ?, ?)
		 ON CONFLICT(problem_id) DO UPDATE SET difficulty = excluded.difficulty, doc = excluded.doc`,
		q.ID, string(q.Difficulty), string(doc),
	)
	return err
}

// GetQuestion returns the question with the given id, or nil if absent.
func (s *Store) GetQuestion(id string) (*model.Question, error) {
	var doc string
	err := s.db.QueryRow(`SELECT doc FROM questions WHERE problem_id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var q model.Question
	if err := json.Unmarshal([]byte(doc), &q); err != nil {
		return nil, fmt.Errorf("decode question %s: %w", id, err)
	}
	return &q, nil
}

// SampleQuestions returns up to n questions drawn uniformly at random.
func (s *Store) SampleQuestions(n int) ([]model.Question, error) {
	return s.queryQuestions(`SELECT doc FROM questions ORDER BY RANDOM() LIMIT ?`, n)
}

// FirstQuestions returns up to n questions in ascending id order.
func (s *Store) FirstQuestions(n int) ([]model.Question, error) {
	return s.queryQuestions(`SELECT doc FROM questions ORDER BY problem_id LIMIT ?`, n)
}

// ListQuestionsFiltered returns questions matching optional difficulty and
// topic filters, ordered by id. A question matches a topic when any of its
// topic tags equals it, ignoring case.
func (s *Store) ListQuestionsFiltered(difficulty, topic string) ([]model.Question, error) {
	query := `SELECT doc FROM questions WHERE 1=1`
	var args []any
	if difficulty != "" {
		query += ` AND difficulty = ?`
		args = append(args, string(model.ParseDifficulty(difficulty)))
	}
	if topic != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(questions.doc, '$.topic') t WHERE lower(t.value) = lower(?))`
		args = append(args, topic)
	}
	query += ` ORDER BY problem_id`
	return s.queryQuestions(query, args...)
}

func (s *Store) queryQuestions(query string, args ...any) ([]model.Question, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var q model.Question
		if err := json.Unmarshal([]byte(doc), &q); err != nil {
			return nil, fmt.Errorf("decode question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// QuestionCount returns the number of stored questions.
func (s *Store) QuestionCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&n)
	return n, err
}
