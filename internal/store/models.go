package store

import (
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	AnswerCorrect   = "correct"
	AnswerIncorrect = "incorrect"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Picture   string    `json:"picture"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

type Chapter struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description"`
	FolderPath  string    `json:"folder_path"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ExternalResource struct {
	ID          int64  `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Tags        string `json:"tags"` // comma-joined
}

// TagList splits the comma-joined tags, dropping blanks.
func (r ExternalResource) TagList() []string {
	var out []string
	for _, t := range strings.Split(r.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// JoinTags is the inverse of TagList.
func JoinTags(tags []string) string {
	clean := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	return strings.Join(clean, ",")
}

type QuizAttempt struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	UserEmail string     `json:"user_email,omitempty"` // populated by admin listings only
	Chapter   string     `json:"chapter"`
	Topic     string     `json:"topic"`
	Score     float64    `json:"score"`
	CreatedAt time.Time  `json:"created_at"`
	Questions []Question `json:"questions,omitempty"`
}

type Question struct {
	ID                 int64    `json:"id"`
	AttemptID          int64    `json:"attempt_id"`
	Position           int      `json:"position"`
	QuestionText       string   `json:"question_text"`
	CorrectAnswerIndex int      `json:"correct_answer_index"`
	UserAnswerIndex    *int     `json:"user_answer_index"`
	IsCorrect          *string  `json:"is_correct"` // "correct", "incorrect" or nil while unanswered
	Choices            []Choice `json:"choices"`
}

type Choice struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Position   int    `json:"position"`
	ChoiceText string `json:"choice_text"`
}

type RAGQueryLog struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	UserEmail string    `json:"user_email,omitempty"`
	Chapter   string    `json:"chapter"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// QuestionCount is one row of the most-queried aggregation.
type QuestionCount struct {
	Question string `json:"question"`
	Count    int    `json:"count"`
}
