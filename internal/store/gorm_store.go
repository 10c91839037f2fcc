package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"studydesk/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&PDFModel{},
		&ChatModel{},
		&MessageModel{},
		&QuizModel{},
		&QuizAttemptModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// users

func (g *GormStore) SaveUser(u domain.User) error {
	model := UserModel{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if err := g.db.Save(&model).Error; err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (g *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := g.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count users by email: %w", err)
	}
	return count > 0, nil
}

func (g *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	err := g.db.Where("email = ?", email).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("get user by email: %w", err)
	}
	return userFromModel(model), true, nil
}

func (g *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	err := g.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("get user: %w", err)
	}
	return userFromModel(model), true, nil
}

// pdfs

func (g *GormStore) SavePDF(p domain.PDF) error {
	model, err := pdfToModel(p)
	if err != nil {
		return err
	}
	if err := g.db.Save(&model).Error; err != nil {
		return fmt.Errorf("save pdf: %w", err)
	}
	return nil
}

func (g *GormStore) GetPDF(id string) (domain.PDF, bool, error) {
	var model PDFModel
	err := g.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.PDF{}, false, nil
	}
	if err != nil {
		return domain.PDF{}, false, fmt.Errorf("get pdf: %w", err)
	}
	pdf, err := pdfFromModel(model)
	if err != nil {
		return domain.PDF{}, false, err
	}
	return pdf, true, nil
}

func (g *GormStore) ListPDFsByStatus(status domain.PDFStatus) ([]domain.PDF, error) {
	var models []PDFModel
	if err := g.db.Where("status = ?", string(status)).Order("updated_at DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list pdfs by status: %w", err)
	}
	return pdfsFromModels(models)
}

func (g *GormStore) ListPDFsByIDs(ids []string) ([]domain.PDF, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []PDFModel
	if err := g.db.Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list pdfs by ids: %w", err)
	}
	return pdfsFromModels(models)
}

func (g *GormStore) SetPDFStatus(id string, status domain.PDFStatus, vectorStorePath string) error {
	updates := map[string]any{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	}
	if vectorStorePath != "" {
		updates["vector_store_path"] = vectorStorePath
	}
	res := g.db.Model(&PDFModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("set pdf status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (g *GormStore) SetPDFRecommendations(id string, recs []domain.VideoRecommendation) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}
	res := g.db.Model(&PDFModel{}).Where("id = ?", id).Updates(map[string]any{
		"recommendations": data,
		"updated_at":      time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("set pdf recommendations: %w", res.Error)
	}
	return nil
}

// chats

func (g *GormStore) SaveChat(c domain.Chat) error {
	ids, err := json.Marshal(c.PDFIDs)
	if err != nil {
		return fmt.Errorf("marshal chat pdf ids: %w", err)
	}
	model := ChatModel{
		ID:        c.ID,
		OwnerID:   c.OwnerID,
		Title:     c.Title,
		PDFIDs:    ids,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if err := g.db.Save(&model).Error; err != nil {
		return fmt.Errorf("save chat: %w", err)
	}
	return nil
}

func (g *GormStore) GetChat(id string) (domain.Chat, bool, error) {
	var model ChatModel
	err := g.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Chat{}, false, nil
	}
	if err != nil {
		return domain.Chat{}, false, fmt.Errorf("get chat: %w", err)
	}
	chat, err := chatFromModel(model)
	if err != nil {
		return domain.Chat{}, false, err
	}
	return chat, true, nil
}

func (g *GormStore) ListChatsByOwner(ownerID string) ([]domain.Chat, error) {
	var models []ChatModel
	if err := g.db.Where("owner_id = ?", ownerID).Order("updated_at DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	chats := make([]domain.Chat, 0, len(models))
	for _, model := range models {
		chat, err := chatFromModel(model)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

func (g *GormStore) TouchChat(id, title string, updatedAt time.Time) error {
	updates := map[string]any{"updated_at": updatedAt}
	if title != "" {
		updates["title"] = title
	}
	res := g.db.Model(&ChatModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("touch chat: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// messages

func (g *GormStore) AppendMessage(m domain.Message) error {
	model := MessageModel{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Sender:    string(m.Sender),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
	if err := g.db.Create(&model).Error; err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (g *GormStore) ListMessages(chatID string) ([]domain.Message, error) {
	var models []MessageModel
	if err := g.db.Where("chat_id = ?", chatID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	messages := make([]domain.Message, 0, len(models))
	for _, model := range models {
		messages = append(messages, domain.Message{
			ID:        model.ID,
			ChatID:    model.ChatID,
			Sender:    domain.Sender(model.Sender),
			Content:   model.Content,
			CreatedAt: model.CreatedAt,
		})
	}
	return messages, nil
}

// quizzes

func (g *GormStore) SaveQuiz(q domain.Quiz) error {
	questions, err := json.Marshal(q.Questions)
	if err != nil {
		return fmt.Errorf("marshal quiz questions: %w", err)
	}
	model := QuizModel{
		ID:        q.ID,
		ChatID:    q.ChatID,
		OwnerID:   q.OwnerID,
		Questions: questions,
		CreatedAt: q.CreatedAt,
	}
	if err := g.db.Save(&model).Error; err != nil {
		return fmt.Errorf("save quiz: %w", err)
	}
	return nil
}

func (g *GormStore) GetQuiz(id string) (domain.Quiz, bool, error) {
	var model QuizModel
	err := g.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Quiz{}, false, nil
	}
	if err != nil {
		return domain.Quiz{}, false, fmt.Errorf("get quiz: %w", err)
	}
	quiz := domain.Quiz{
		ID:        model.ID,
		ChatID:    model.ChatID,
		OwnerID:   model.OwnerID,
		CreatedAt: model.CreatedAt,
	}
	if len(model.Questions) > 0 {
		if err := json.Unmarshal(model.Questions, &quiz.Questions); err != nil {
			return domain.Quiz{}, false, fmt.Errorf("unmarshal quiz questions: %w", err)
		}
	}
	return quiz, true, nil
}

// attempts

func (g *GormStore) SaveAttempt(a domain.QuizAttempt) error {
	graded, err := json.Marshal(a.GradedQuestions)
	if err != nil {
		return fmt.Errorf("marshal graded questions: %w", err)
	}
	model := QuizAttemptModel{
		ID:              a.ID,
		QuizID:          a.QuizID,
		ChatID:          a.ChatID,
		OwnerID:         a.OwnerID,
		TotalScore:      a.TotalScore,
		GradedQuestions: graded,
		CreatedAt:       a.CreatedAt,
	}
	if err := g.db.Create(&model).Error; err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

func (g *GormStore) GetAttempt(id string) (domain.QuizAttempt, bool, error) {
	var model QuizAttemptModel
	err := g.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.QuizAttempt{}, false, nil
	}
	if err != nil {
		return domain.QuizAttempt{}, false, fmt.Errorf("get attempt: %w", err)
	}
	attempt, err := attemptFromModel(model)
	if err != nil {
		return domain.QuizAttempt{}, false, err
	}
	return attempt, true, nil
}

func (g *GormStore) ListAttemptsByChat(chatID, ownerID string) ([]domain.QuizAttempt, error) {
	var models []QuizAttemptModel
	if err := g.db.Where("chat_id = ? AND owner_id = ?", chatID, ownerID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list attempts by chat: %w", err)
	}
	return attemptsFromModels(models)
}

func (g *GormStore) ListAttemptsByOwner(ownerID string) ([]domain.QuizAttempt, error) {
	var models []QuizAttemptModel
	if err := g.db.Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list attempts by owner: %w", err)
	}
	return attemptsFromModels(models)
}

// model conversions

func userFromModel(model UserModel) domain.User {
	return domain.User{
		ID:           model.ID,
		Name:         model.Name,
		Email:        model.Email,
		PasswordHash: model.PasswordHash,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
}

func pdfToModel(p domain.PDF) (PDFModel, error) {
	recs, err := json.Marshal(p.Recommendations)
	if err != nil {
		return PDFModel{}, fmt.Errorf("marshal recommendations: %w", err)
	}
	return PDFModel{
		ID:              p.ID,
		Filename:        p.Filename,
		StorageKey:      p.StorageKey,
		StorageURL:      p.StorageURL,
		OwnerID:         p.OwnerID,
		Status:          string(p.Status),
		VectorStorePath: p.VectorStorePath,
		PageCount:       p.PageCount,
		Recommendations: recs,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}, nil
}

func pdfFromModel(model PDFModel) (domain.PDF, error) {
	pdf := domain.PDF{
		ID:              model.ID,
		Filename:        model.Filename,
		StorageKey:      model.StorageKey,
		StorageURL:      model.StorageURL,
		OwnerID:         model.OwnerID,
		Status:          domain.PDFStatus(model.Status),
		VectorStorePath: model.VectorStorePath,
		PageCount:       model.PageCount,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
	if len(model.Recommendations) > 0 {
		if err := json.Unmarshal(model.Recommendations, &pdf.Recommendations); err != nil {
			return domain.PDF{}, fmt.Errorf("unmarshal recommendations: %w", err)
		}
	}
	return pdf, nil
}

func pdfsFromModels(models []PDFModel) ([]domain.PDF, error) {
	pdfs := make([]domain.PDF, 0, len(models))
	for _, model := range models {
		pdf, err := pdfFromModel(model)
		if err != nil {
			return nil, err
		}
		pdfs = append(pdfs, pdf)
	}
	return pdfs, nil
}

func chatFromModel(model ChatModel) (domain.Chat, error) {
	chat := domain.Chat{
		ID:        model.ID,
		OwnerID:   model.OwnerID,
		Title:     model.Title,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
	if len(model.PDFIDs) > 0 {
		if err := json.Unmarshal(model.PDFIDs, &chat.PDFIDs); err != nil {
			return domain.Chat{}, fmt.Errorf("unmarshal chat pdf ids: %w", err)
		}
	}
	return chat, nil
}

func attemptFromModel(model QuizAttemptModel) (domain.QuizAttempt, error) {
	attempt := domain.QuizAttempt{
		ID:         model.ID,
		QuizID:     model.QuizID,
		ChatID:     model.ChatID,
		OwnerID:    model.OwnerID,
		TotalScore: model.TotalScore,
		CreatedAt:  model.CreatedAt,
	}
	if len(model.GradedQuestions) > 0 {
		if err := json.Unmarshal(model.GradedQuestions, &attempt.GradedQuestions); err != nil {
			return domain.QuizAttempt{}, fmt.Errorf("unmarshal graded questions: %w", err)
		}
	}
	return attempt, nil
}

func attemptsFromModels(models []QuizAttemptModel) ([]domain.QuizAttempt, error) {
	attempts := make([]domain.QuizAttempt, 0, len(models))
	for _, model := range models {
		attempt, err := attemptFromModel(model)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, nil
}
