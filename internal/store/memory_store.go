package store

import (
	"sort"
	"sync"
	"time"

	"studydesk/pkg/domain"
)

// MemoryStore keeps all records in-process. Used in tests and local runs
// without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	email    map[string]string // email -> user ID
	pdfs     map[string]domain.PDF
	chats    map[string]domain.Chat
	messages map[string][]domain.Message // chat ID -> ordered messages
	quizzes  map[string]domain.Quiz
	attempts map[string]domain.QuizAttempt
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		email:    make(map[string]string),
		pdfs:     make(map[string]domain.PDF),
		chats:    make(map[string]domain.Chat),
		messages: make(map[string][]domain.Message),
		quizzes:  make(map[string]domain.Quiz),
		attempts: make(map[string]domain.QuizAttempt),
	}
}

// users

func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	user, ok := m.users[id]
	return user, ok, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	return user, ok, nil
}

// pdfs

func (m *MemoryStore) SavePDF(p domain.PDF) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pdfs[p.ID] = p
	return nil
}

func (m *MemoryStore) GetPDF(id string) (domain.PDF, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pdf, ok := m.pdfs[id]
	return pdf, ok, nil
}

func (m *MemoryStore) ListPDFsByStatus(status domain.PDFStatus) ([]domain.PDF, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.PDF, 0)
	for _, pdf := range m.pdfs {
		if pdf.Status == status {
			res = append(res, pdf)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UpdatedAt.After(res[j].UpdatedAt) })
	return res, nil
}

func (m *MemoryStore) ListPDFsByIDs(ids []string) ([]domain.PDF, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.PDF, 0, len(ids))
	for _, id := range ids {
		if pdf, ok := m.pdfs[id]; ok {
			res = append(res, pdf)
		}
	}
	return res, nil
}

func (m *MemoryStore) SetPDFStatus(id string, status domain.PDFStatus, vectorStorePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pdf, ok := m.pdfs[id]
	if !ok {
		return nil
	}
	pdf.Status = status
	if vectorStorePath != "" {
		pdf.VectorStorePath = vectorStorePath
	}
	pdf.UpdatedAt = time.Now().UTC()
	m.pdfs[id] = pdf
	return nil
}

func (m *MemoryStore) SetPDFRecommendations(id string, recs []domain.VideoRecommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pdf, ok := m.pdfs[id]
	if !ok {
		return nil
	}
	pdf.Recommendations = recs
	pdf.UpdatedAt = time.Now().UTC()
	m.pdfs[id] = pdf
	return nil
}

// chats

func (m *MemoryStore) SaveChat(c domain.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[c.ID] = c
	return nil
}

func (m *MemoryStore) GetChat(id string) (domain.Chat, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chat, ok := m.chats[id]
	return chat, ok, nil
}

func (m *MemoryStore) ListChatsByOwner(ownerID string) ([]domain.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Chat, 0)
	for _, chat := range m.chats {
		if chat.OwnerID == ownerID {
			res = append(res, chat)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UpdatedAt.After(res[j].UpdatedAt) })
	return res, nil
}

func (m *MemoryStore) TouchChat(id, title string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[id]
	if !ok {
		return nil
	}
	if title != "" {
		chat.Title = title
	}
	chat.UpdatedAt = updatedAt
	m.chats[id] = chat
	return nil
}

// messages

func (m *MemoryStore) AppendMessage(msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ChatID] = append(m.messages[msg.ChatID], msg)
	return nil
}

func (m *MemoryStore) ListMessages(chatID string) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[chatID]
	res := make([]domain.Message, len(msgs))
	copy(res, msgs)
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

// quizzes

func (m *MemoryStore) SaveQuiz(q domain.Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = q
	return nil
}

func (m *MemoryStore) GetQuiz(id string) (domain.Quiz, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	quiz, ok := m.quizzes[id]
	return quiz, ok, nil
}

// attempts

func (m *MemoryStore) SaveAttempt(a domain.QuizAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.ID] = a
	return nil
}

func (m *MemoryStore) GetAttempt(id string) (domain.QuizAttempt, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	attempt, ok := m.attempts[id]
	return attempt, ok, nil
}

func (m *MemoryStore) ListAttemptsByChat(chatID, ownerID string) ([]domain.QuizAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.QuizAttempt, 0)
	for _, attempt := range m.attempts {
		if attempt.ChatID == chatID && attempt.OwnerID == ownerID {
			res = append(res, attempt)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) ListAttemptsByOwner(ownerID string) ([]domain.QuizAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.QuizAttempt, 0)
	for _, attempt := range m.attempts {
		if attempt.OwnerID == ownerID {
			res = append(res, attempt)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}
