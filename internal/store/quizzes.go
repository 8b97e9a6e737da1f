package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateQuizAttempt persists the attempt with all of its questions and choices
// in one transaction and fills in the generated IDs.
func (s *SQLiteStore) CreateQuizAttempt(ctx context.Context, a *QuizAttempt) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx,
			"INSERT INTO quiz_attempts (user_id, chapter, topic, score, created_at) VALUES (?, ?, ?, ?, ?)",
			a.UserID, a.Chapter, a.Topic, a.Score, now)
		if err != nil {
			return fmt.Errorf("failed to insert quiz attempt: %w", err)
		}
		attemptID, _ := res.LastInsertId()

		for qi := range a.Questions {
			q := &a.Questions[qi]
			q.AttemptID = attemptID
			q.Position = qi
			res, err := tx.ExecContext(ctx,
				"INSERT INTO questions (attempt_id, position, question_text, correct_answer_index, user_answer_index, is_correct) VALUES (?, ?, ?, ?, ?, ?)",
				attemptID, q.Position, q.QuestionText, q.CorrectAnswerIndex, nullableInt(q.UserAnswerIndex), nullableString(q.IsCorrect))
			if err != nil {
				return fmt.Errorf("failed to insert question %d: %w", qi, err)
			}
			q.ID, _ = res.LastInsertId()

			for ci := range q.Choices {
				c := &q.Choices[ci]
				c.QuestionID = q.ID
				c.Position = ci
				res, err := tx.ExecContext(ctx,
					"INSERT INTO choices (question_id, position, choice_text) VALUES (?, ?, ?)",
					q.ID, c.Position, c.ChoiceText)
				if err != nil {
					return fmt.Errorf("failed to insert choice %d of question %d: %w", ci, qi, err)
				}
				c.ID, _ = res.LastInsertId()
			}
		}

		a.ID = attemptID
		a.CreatedAt = now
		return nil
	})
}

// GetQuizAttempt loads an attempt with its questions and choices in order.
func (s *SQLiteStore) GetQuizAttempt(ctx context.Context, id int64) (*QuizAttempt, error) {
	var a QuizAttempt
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, chapter, topic, score, created_at FROM quiz_attempts WHERE id = ?", id).
		Scan(&a.ID, &a.UserID, &a.Chapter, &a.Topic, &a.Score, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get quiz attempt: %w", err)
	}

	questions, err := s.questionsForAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	choices, err := s.choicesForAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range questions {
		questions[i].Choices = choices[questions[i].ID]
		if questions[i].Choices == nil {
			questions[i].Choices = []Choice{}
		}
	}
	a.Questions = questions
	return &a, nil
}

func (s *SQLiteStore) questionsForAttempt(ctx context.Context, attemptID int64) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, attempt_id, position, question_text, correct_answer_index, user_answer_index, is_correct
         FROM questions WHERE attempt_id = ? ORDER BY position ASC, id ASC`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	questions := []Question{}
	for rows.Next() {
		var q Question
		var userAnswer sql.NullInt64
		var isCorrect sql.NullString
		if err := rows.Scan(&q.ID, &q.AttemptID, &q.Position, &q.QuestionText, &q.CorrectAnswerIndex, &userAnswer, &isCorrect); err != nil {
			return nil, fmt.Errorf("failed to scan question row: %w", err)
		}
		if userAnswer.Valid {
			v := int(userAnswer.Int64)
			q.UserAnswerIndex = &v
		}
		if isCorrect.Valid {
			v := isCorrect.String
			q.IsCorrect = &v
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// choicesForAttempt returns choices grouped by question id. Rows are fully read
// before returning so callers can issue the next query on the single connection.
func (s *SQLiteStore) choicesForAttempt(ctx context.Context, attemptID int64) (map[int64][]Choice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.question_id, c.position, c.choice_text
         FROM choices c JOIN questions q ON q.id = c.question_id
         WHERE q.attempt_id = ? ORDER BY c.question_id ASC, c.position ASC`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query choices: %w", err)
	}
	defer rows.Close()

	out := map[int64][]Choice{}
	for rows.Next() {
		var c Choice
		if err := rows.Scan(&c.ID, &c.QuestionID, &c.Position, &c.ChoiceText); err != nil {
			return nil, fmt.Errorf("failed to scan choice row: %w", err)
		}
		out[c.QuestionID] = append(out[c.QuestionID], c)
	}
	return out, rows.Err()
}

// SaveQuizGrading writes the graded questions and the attempt score in one
// transaction.
func (s *SQLiteStore) SaveQuizGrading(ctx context.Context, a *QuizAttempt) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range a.Questions {
			if _, err := tx.ExecContext(ctx,
				"UPDATE questions SET user_answer_index = ?, is_correct = ? WHERE id = ? AND attempt_id = ?",
				nullableInt(q.UserAnswerIndex), nullableString(q.IsCorrect), q.ID, a.ID); err != nil {
				return fmt.Errorf("failed to update question %d: %w", q.ID, err)
			}
		}
		res, err := tx.ExecContext(ctx, "UPDATE quiz_attempts SET score = ? WHERE id = ?", a.Score, a.ID)
		if err != nil {
			return fmt.Errorf("failed to update quiz attempt score: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListQuizAttemptsByUser returns the user's attempts newest first, without questions.
func (s *SQLiteStore) ListQuizAttemptsByUser(ctx context.Context, userID int64) ([]QuizAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, chapter, topic, score, created_at
         FROM quiz_attempts WHERE user_id = ? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query quiz attempts: %w", err)
	}
	defer rows.Close()

	attempts := []QuizAttempt{}
	for rows.Next() {
		var a QuizAttempt
		if err := rows.Scan(&a.ID, &a.UserID, &a.Chapter, &a.Topic, &a.Score, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quiz attempt row: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListRecentQuizAttempts returns the newest attempts across all users with the
// owner's email filled in.
func (s *SQLiteStore) ListRecentQuizAttempts(ctx context.Context, limit int) ([]QuizAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.user_id, u.email, a.chapter, a.topic, a.score, a.created_at
         FROM quiz_attempts a JOIN users u ON u.id = a.user_id
         ORDER BY a.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent quiz attempts: %w", err)
	}
	defer rows.Close()

	attempts := []QuizAttempt{}
	for rows.Next() {
		var a QuizAttempt
		if err := rows.Scan(&a.ID, &a.UserID, &a.UserEmail, &a.Chapter, &a.Topic, &a.Score, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quiz attempt row: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
