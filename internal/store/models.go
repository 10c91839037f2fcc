package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Nested documents (questions, graded
// answers, recommendations, pdf id sets) are stored as JSONB columns.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Name         string `gorm:"not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type PDFModel struct {
	ID              string `gorm:"primaryKey"`
	Filename        string `gorm:"not null"`
	StorageKey      string
	StorageURL      string
	OwnerID         string `gorm:"not null;index"`
	Status          string `gorm:"not null;index"`
	VectorStorePath string
	PageCount       int
	Recommendations datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt       time.Time      `gorm:"not null"`
	UpdatedAt       time.Time      `gorm:"not null"`
}

type ChatModel struct {
	ID        string         `gorm:"primaryKey"`
	OwnerID   string         `gorm:"not null;index"`
	Title     string         `gorm:"not null"`
	PDFIDs    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null;index"`
}

type MessageModel struct {
	ID        string    `gorm:"primaryKey"`
	ChatID    string    `gorm:"not null;index"`
	Sender    string    `gorm:"not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

type QuizModel struct {
	ID        string         `gorm:"primaryKey"`
	ChatID    string         `gorm:"not null;index"`
	OwnerID   string         `gorm:"not null;index"`
	Questions datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null"`
}

type QuizAttemptModel struct {
	ID              string         `gorm:"primaryKey"`
	QuizID          string         `gorm:"not null;index"`
	ChatID          string         `gorm:"not null;index"`
	OwnerID         string         `gorm:"not null;index"`
	TotalScore      float64        `gorm:"not null"`
	GradedQuestions datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt       time.Time      `gorm:"not null;index"`
}
