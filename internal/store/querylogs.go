package store

import (
	"context"
	"fmt"
	"time"
)

// CreateQueryLog appends to the audit trail. Logs are never updated or deleted.
func (s *SQLiteStore) CreateQueryLog(ctx context.Context, l *RAGQueryLog) error {
	l.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO rag_query_logs (user_id, chapter, question, answer, created_at) VALUES (?, ?, ?, ?, ?)",
		l.UserID, l.Chapter, l.Question, l.Answer, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert query log: %w", err)
	}
	l.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListRecentQueryLogs(ctx context.Context, limit int) ([]RAGQueryLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.id, l.user_id, u.email, l.chapter, l.question, l.answer, l.created_at
         FROM rag_query_logs l JOIN users u ON u.id = l.user_id
         ORDER BY l.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query query logs: %w", err)
	}
	defer rows.Close()

	logs := []RAGQueryLog{}
	for rows.Next() {
		var l RAGQueryLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.UserEmail, &l.Chapter, &l.Question, &l.Answer, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan query log row: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// MostQueriedQuestions groups logged questions by exact text.
func (s *SQLiteStore) MostQueriedQuestions(ctx context.Context, limit int) ([]QuestionCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question, COUNT(*) AS n FROM rag_query_logs
         GROUP BY question ORDER BY n DESC, question ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate query logs: %w", err)
	}
	defer rows.Close()

	counts := []QuestionCount{}
	for rows.Next() {
		var c QuestionCount
		if err := rows.Scan(&c.Question, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan question count row: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
