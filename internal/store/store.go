package store

import (
	"time"

	"studydesk/pkg/domain"
)

// Store defines persistence operations for users, pdfs, chats, messages,
// quizzes and attempts. Every write is a single-record operation; callers
// rely on per-record atomicity only.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// pdfs
	SavePDF(domain.PDF) error
	GetPDF(id string) (domain.PDF, bool, error)
	ListPDFsByStatus(status domain.PDFStatus) ([]domain.PDF, error)
	ListPDFsByIDs(ids []string) ([]domain.PDF, error)
	SetPDFStatus(id string, status domain.PDFStatus, vectorStorePath string) error
	SetPDFRecommendations(id string, recs []domain.VideoRecommendation) error

	// chats
	SaveChat(domain.Chat) error
	GetChat(id string) (domain.Chat, bool, error)
	ListChatsByOwner(ownerID string) ([]domain.Chat, error)
	TouchChat(id, title string, updatedAt time.Time) error

	// messages
	AppendMessage(domain.Message) error
	ListMessages(chatID string) ([]domain.Message, error)

	// quizzes
	SaveQuiz(domain.Quiz) error
	GetQuiz(id string) (domain.Quiz, bool, error)

	// attempts
	SaveAttempt(domain.QuizAttempt) error
	GetAttempt(id string) (domain.QuizAttempt, bool, error)
	ListAttemptsByChat(chatID, ownerID string) ([]domain.QuizAttempt, error)
	ListAttemptsByOwner(ownerID string) ([]domain.QuizAttempt, error)
}

// SessionStore issues and validates bearer credentials.
type SessionStore interface {
	Issue(userID string) (string, error)
	Verify(token string) (string, error)
}
