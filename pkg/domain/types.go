package domain

import "time"

type PDFStatus string

const (
	StatusPending    PDFStatus = "pending"
	StatusProcessing PDFStatus = "processing"
	StatusReady      PDFStatus = "ready"
	StatusFailed     PDFStatus = "failed"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

type QuestionType string

const (
	QuestionMCQ QuestionType = "mcq"
	QuestionSAQ QuestionType = "saq"
	QuestionLAQ QuestionType = "laq"
)

// DefaultChatTitle is assigned at chat creation and replaced by the first
// user message.
const DefaultChatTitle = "New Chat Session"

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type PDF struct {
	ID              string                `json:"id"`
	Filename        string                `json:"filename"`
	StorageKey      string                `json:"-"`
	StorageURL      string                `json:"url"`
	OwnerID         string                `json:"ownerId"`
	Status          PDFStatus             `json:"processingStatus"`
	VectorStorePath string                `json:"vectorStorePath,omitempty"`
	PageCount       int                   `json:"pageCount,omitempty"`
	Recommendations []VideoRecommendation `json:"youtubeRecommendations"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

type VideoRecommendation struct {
	Title   string `json:"title"`
	VideoID string `json:"videoId"`
	URL     string `json:"url"`
}

type Chat struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	PDFIDs    []string  `json:"pdfIds"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Question carries the ideal answer used for grading. It must never reach
// an HTTP client; handlers return ClientQuestion instead.
type Question struct {
	ID          string       `json:"id"`
	Type        QuestionType `json:"question_type"`
	Text        string       `json:"question"`
	Options     []string     `json:"options,omitempty"`
	IdealAnswer string       `json:"ideal_answer"`
}

type Quiz struct {
	ID        string     `json:"id"`
	ChatID    string     `json:"chatId"`
	OwnerID   string     `json:"ownerId"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"createdAt"`
}

// ClientQuestion is the redacted view of a Question.
type ClientQuestion struct {
	ID      string       `json:"id"`
	Type    QuestionType `json:"question_type"`
	Text    string       `json:"question"`
	Options []string     `json:"options,omitempty"`
}

// ClientQuiz is the redacted view of a Quiz returned to HTTP callers.
type ClientQuiz struct {
	ID        string           `json:"id"`
	ChatID    string           `json:"chatId"`
	Questions []ClientQuestion `json:"questions"`
}

// Redacted strips ideal answers from a quiz.
func (q Quiz) Redacted() ClientQuiz {
	out := ClientQuiz{ID: q.ID, ChatID: q.ChatID, Questions: make([]ClientQuestion, 0, len(q.Questions))}
	for _, question := range q.Questions {
		out.Questions = append(out.Questions, ClientQuestion{
			ID:      question.ID,
			Type:    question.Type,
			Text:    question.Text,
			Options: question.Options,
		})
	}
	return out
}

type GradedQuestion struct {
	QuestionID  string  `json:"questionId"`
	Question    string  `json:"question"`
	UserAnswer  string  `json:"user_answer"`
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

type QuizAttempt struct {
	ID              string           `json:"id"`
	QuizID          string           `json:"quizId"`
	ChatID          string           `json:"chatId"`
	OwnerID         string           `json:"ownerId"`
	TotalScore      float64          `json:"total_score"`
	GradedQuestions []GradedQuestion `json:"graded_questions"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// AttemptSummary is the list view of an attempt.
type AttemptSummary struct {
	AttemptID      string    `json:"attemptId"`
	Score          float64   `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	Date           time.Time `json:"date"`
}

// Answer is one submitted quiz answer.
type Answer struct {
	QuestionID string `json:"questionId"`
	UserAnswer string `json:"userAnswer"`
}

// Profile is the user profile view with aggregate quiz statistics.
type Profile struct {
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	MemberSince time.Time `json:"memberSince"`
	Stats       UserStats `json:"stats"`
}

type UserStats struct {
	TotalQuizzesAttempted int     `json:"totalQuizzesAttempted"`
	AverageScore          float64 `json:"averageScore"`
}

// ChatDetails bundles a chat's PDFs with its quiz history.
type ChatDetails struct {
	PDFs        []PDF            `json:"pdfs"`
	QuizHistory []AttemptSummary `json:"quizHistory"`
}
