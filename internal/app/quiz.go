package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"studydesk/internal/aiclient"
	"studydesk/pkg/domain"
)

// questionCounts scales the quiz size with the number of PDFs in the chat.
// Policy constants, not content-derived:
//
//	MCQ = 3 + 2·(n−1), SAQ = 1 + (n−1), LAQ = 1 + (n−1)/2
func questionCounts(n int) (mcq, saq, laq int) {
	extra := n - 1
	if extra < 0 {
		extra = 0
	}
	return 3 + 2*extra, 1 + extra, 1 + extra/2
}

// GenerateQuiz requests a quiz over the chat's PDFs and persists it with
// the grading references. Callers that expose the quiz over HTTP must use
// the Redacted view; ideal answers never leave the server.
func (a *App) GenerateQuiz(ctx context.Context, userID, chatID string) (domain.Quiz, error) {
	chat, err := a.ownedChat(userID, chatID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if len(chat.PDFIDs) == 0 {
		return domain.Quiz{}, validationErrorf("chat has no associated PDFs to generate a quiz from")
	}
	numMCQs, numSAQs, numLAQs := questionCounts(len(chat.PDFIDs))

	generated, err := a.ai.GenerateQuiz(ctx, chat.PDFIDs, numMCQs, numSAQs, numLAQs)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("generate quiz: %w", err)
	}

	questions := make([]domain.Question, 0, len(generated.MCQs)+len(generated.SAQs)+len(generated.LAQs))
	for _, item := range generated.MCQs {
		questions = append(questions, domain.Question{
			ID:          uuid.NewString(),
			Type:        domain.QuestionMCQ,
			Text:        item.Question,
			Options:     item.Options,
			IdealAnswer: item.CorrectAnswer,
		})
	}
	for _, item := range generated.SAQs {
		questions = append(questions, domain.Question{
			ID:          uuid.NewString(),
			Type:        domain.QuestionSAQ,
			Text:        item.Question,
			IdealAnswer: item.IdealAnswer,
		})
	}
	for _, item := range generated.LAQs {
		questions = append(questions, domain.Question{
			ID:          uuid.NewString(),
			Type:        domain.QuestionLAQ,
			Text:        item.Question,
			IdealAnswer: item.IdealAnswer,
		})
	}

	quiz := domain.Quiz{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		OwnerID:   userID,
		Questions: questions,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.SaveQuiz(quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("save quiz: %w", err)
	}
	return quiz, nil
}

// SubmitQuiz grades the submitted answers through the AI service and
// persists the attempt. Every answer must reference a question in the
// quiz; the check runs before anything is sent or persisted.
func (a *App) SubmitQuiz(ctx context.Context, userID, quizID string, answers []domain.Answer) (domain.QuizAttempt, error) {
	quiz, ok, err := a.store.GetQuiz(quizID)
	if err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("fetch quiz: %w", err)
	}
	if !ok || quiz.OwnerID != userID {
		return domain.QuizAttempt{}, ErrQuizNotFound
	}
	if len(answers) == 0 {
		return domain.QuizAttempt{}, validationErrorf("a valid array of answers is required")
	}

	byID := make(map[string]domain.Question, len(quiz.Questions))
	for _, question := range quiz.Questions {
		byID[question.ID] = question
	}
	toGrade := make([]aiclient.QuestionToGrade, 0, len(answers))
	answerByQuestion := make(map[string]string, len(answers))
	for _, answer := range answers {
		question, ok := byID[answer.QuestionID]
		if !ok {
			return domain.QuizAttempt{}, validationErrorf("question with id %s not found in this quiz", answer.QuestionID)
		}
		answerByQuestion[question.ID] = answer.UserAnswer
		toGrade = append(toGrade, aiclient.QuestionToGrade{
			QuestionID:   question.ID,
			Question:     question.Text,
			UserAnswer:   answer.UserAnswer,
			IdealAnswer:  question.IdealAnswer,
			QuestionType: string(question.Type),
		})
	}

	grading, err := a.ai.GradeQuiz(ctx, toGrade)
	if err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("grade quiz: %w", err)
	}

	graded := make([]domain.GradedQuestion, 0, len(grading.GradedQuestions))
	for _, result := range grading.GradedQuestions {
		question, ok := a.matchGradedQuestion(quiz, result)
		if !ok {
			return domain.QuizAttempt{}, fmt.Errorf("grading result references unknown question %q", result.Question)
		}
		graded = append(graded, domain.GradedQuestion{
			QuestionID:  question.ID,
			Question:    question.Text,
			UserAnswer:  answerByQuestion[question.ID],
			Score:       result.Score,
			Explanation: result.Explanation,
		})
	}

	attempt := domain.QuizAttempt{
		ID:              uuid.NewString(),
		QuizID:          quizID,
		ChatID:          quiz.ChatID,
		OwnerID:         userID,
		TotalScore:      grading.TotalScore,
		GradedQuestions: graded,
		CreatedAt:       time.Now().UTC(),
	}
	if err := a.store.SaveAttempt(attempt); err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("save attempt: %w", err)
	}
	return attempt, nil
}

// matchGradedQuestion links a grading result back to its question. The
// grading request carries question ids and the service echoes them; exact
// question text remains as a fallback for collaborators that drop the id.
func (a *App) matchGradedQuestion(quiz domain.Quiz, result aiclient.GradedResult) (domain.Question, bool) {
	if result.QuestionID != "" {
		for _, question := range quiz.Questions {
			if question.ID == result.QuestionID {
				return question, true
			}
		}
	}
	for _, question := range quiz.Questions {
		if question.Text == result.Question {
			return question, true
		}
	}
	return domain.Question{}, false
}

// Attempts lists the caller's attempts for a chat, newest first.
func (a *App) Attempts(userID, chatID string) ([]domain.AttemptSummary, error) {
	attempts, err := a.store.ListAttemptsByChat(chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attemptSummaries(attempts), nil
}

// AttemptDetails returns the full graded breakdown of one attempt.
func (a *App) AttemptDetails(userID, attemptID string) (domain.QuizAttempt, error) {
	attempt, ok, err := a.store.GetAttempt(attemptID)
	if err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("fetch attempt: %w", err)
	}
	if !ok || attempt.OwnerID != userID {
		return domain.QuizAttempt{}, ErrAttemptNotFound
	}
	return attempt, nil
}
