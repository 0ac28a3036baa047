package models

import (
	"time"
)

// User model
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Question model. Tags are stored as a JSON text column so the same row shape
// works on both backends.
type Question struct {
	ID               int       `json:"id"`
	Text             string    `json:"text"`
	Answer           string    `json:"answer"`
	Explanation      *string   `json:"explanation"`
	Subject          string    `json:"subject"`
	Module           *string   `json:"module"`
	Topic            string    `json:"topic"`
	SubTopic         *string   `json:"subTopic"`
	Difficulty       string    `json:"difficulty"`
	QuestionType     string    `json:"questionType"`
	NatureOfQuestion *string   `json:"natureOfQuestion"`
	Tags             []string  `json:"tags"`
	CreatedAt        time.Time `json:"createdAt"`
}

// CartMetadata is the metadata blob persisted on a cart row.
type CartMetadata struct {
	TestName string `json:"testName"`
	Batch    string `json:"batch"`
	Date     string `json:"date"`
}

// Cart groups selected questions under a test identifier and user.
// (test_id, user_id) is unique: one cart per test per user.
type Cart struct {
	ID        int          `json:"id"`
	TestID    string       `json:"testId"`
	UserID    int          `json:"userId"`
	Metadata  CartMetadata `json:"metadata"`
	CreatedAt time.Time    `json:"createdAt"`
}

// CartItem is one question's membership in a cart.
type CartItem struct {
	ID         int       `json:"id"`
	CartID     int       `json:"cartId"`
	QuestionID int       `json:"questionId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DraftCart is the summary returned when listing a user's saved drafts.
type DraftCart struct {
	ID            int          `json:"id"`
	TestID        string       `json:"testId"`
	Metadata      CartMetadata `json:"metadata"`
	QuestionCount int          `json:"questionCount"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// DuplicateUsage names one place a question was already used.
type DuplicateUsage struct {
	TestID   string `json:"testId"`
	TestName string `json:"testName"`
	Source   string `json:"source"`
}

// DuplicateQuestion is one flagged question with its usage provenance.
type DuplicateQuestion struct {
	QuestionID   int              `json:"questionId"`
	QuestionText string           `json:"questionText"`
	Subject      string           `json:"subject"`
	Topic        string           `json:"topic"`
	UsedIn       []DuplicateUsage `json:"usedIn"`
}

// DuplicateReport is the advisory result of a cross-batch reuse check.
type DuplicateReport struct {
	HasDuplicates bool                `json:"hasDuplicates"`
	Duplicates    []DuplicateQuestion `json:"duplicates"`
	Message       string              `json:"message"`
}
