package app

import (
	"fmt"
	"math"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"studydesk/pkg/auth"
	"studydesk/pkg/domain"
)

// SignUp registers a new user.
func (a *App) SignUp(name, email, password string) (domain.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" {
		return domain.User{}, validationErrorf("name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, validationErrorf("a valid email is required")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, &ValidationError{Msg: err.Error()}
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, ErrEmailExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// Login validates credentials and issues a session token. Unknown emails
// and wrong passwords produce the same error.
func (a *App) Login(email, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}
	token, err := a.sessions.Issue(user.ID)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// Authenticate resolves a bearer token to its user.
func (a *App) Authenticate(token string) (domain.User, error) {
	userID, err := a.sessions.Verify(token)
	if err != nil {
		return domain.User{}, ErrUnauthorized
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUnauthorized
	}
	return user, nil
}

// Profile returns the user's profile with aggregate quiz statistics. The
// average is the percentage of points across every answered question,
// rounded to two decimals.
func (a *App) Profile(userID string) (domain.Profile, error) {
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.Profile{}, ErrUnauthorized
	}
	attempts, err := a.store.ListAttemptsByOwner(userID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("list attempts: %w", err)
	}
	stats := domain.UserStats{TotalQuizzesAttempted: len(attempts)}
	var scoreSum float64
	var questionSum int
	for _, attempt := range attempts {
		scoreSum += attempt.TotalScore
		questionSum += len(attempt.GradedQuestions)
	}
	if questionSum > 0 {
		avg := scoreSum / float64(questionSum) * 100
		stats.AverageScore = math.Round(avg*100) / 100
	}
	return domain.Profile{
		Name:        user.Name,
		Email:       user.Email,
		MemberSince: user.CreatedAt,
		Stats:       stats,
	}, nil
}
