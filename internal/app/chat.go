package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"studydesk/pkg/domain"
)

// CreateChat opens a chat session over a fixed set of PDFs. Every PDF must
// exist and be visible to the caller: either owned by them or part of the
// shared ready library.
func (a *App) CreateChat(userID string, pdfIDs []string, title string) (domain.Chat, error) {
	if len(pdfIDs) == 0 {
		return domain.Chat{}, validationErrorf("an array of pdfIds is required")
	}
	for _, pdfID := range pdfIDs {
		pdf, ok, err := a.store.GetPDF(pdfID)
		if err != nil {
			return domain.Chat{}, fmt.Errorf("fetch pdf: %w", err)
		}
		if !ok || (pdf.OwnerID != userID && pdf.Status != domain.StatusReady) {
			return domain.Chat{}, ErrPDFNotFound
		}
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = domain.DefaultChatTitle
	}
	now := time.Now().UTC()
	chat := domain.Chat{
		ID:        uuid.NewString(),
		OwnerID:   userID,
		Title:     title,
		PDFIDs:    pdfIDs,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveChat(chat); err != nil {
		return domain.Chat{}, fmt.Errorf("save chat: %w", err)
	}
	return chat, nil
}

// ListChats returns the caller's chats, most recently updated first.
func (a *App) ListChats(userID string) ([]domain.Chat, error) {
	return a.store.ListChatsByOwner(userID)
}

// Messages returns a chat's messages oldest first.
func (a *App) Messages(userID, chatID string) ([]domain.Message, error) {
	if _, err := a.ownedChat(userID, chatID); err != nil {
		return nil, err
	}
	return a.store.ListMessages(chatID)
}

// StreamAnswer records the user message, relays the AI service's streamed
// reply into sink as it arrives, and persists the accumulated assistant
// message only after a clean upstream end.
//
// An error returned before the first byte reaches sink means the caller
// can still send a proper error response. After streaming has begun the
// only failure handling is ending the stream: the partial accumulation is
// discarded and no assistant message is persisted, so a retrying client
// never sees a truncated reply.
func (a *App) StreamAnswer(ctx context.Context, userID, chatID, content string, sink io.Writer) error {
	chat, err := a.ownedChat(userID, chatID)
	if err != nil {
		return err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return validationErrorf("message content is required")
	}

	now := time.Now().UTC()
	userMsg := domain.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Sender:    domain.SenderUser,
		Content:   content,
		CreatedAt: now,
	}
	if err := a.store.AppendMessage(userMsg); err != nil {
		return fmt.Errorf("save user message: %w", err)
	}
	title := ""
	if chat.Title == domain.DefaultChatTitle || chat.Title == "New Chat" {
		title = truncateTitle(content)
	}
	if err := a.store.TouchChat(chatID, title, now); err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}

	upstream, err := a.ai.Chat(ctx, content, chat.PDFIDs)
	if err != nil {
		return fmt.Errorf("ai chat: %w", err)
	}
	defer upstream.Close()

	// Dual consumption of one stream: forward each chunk to the client
	// and accumulate a copy for persistence. A client write failure
	// stops forwarding but keeps draining, so a clean upstream end
	// still persists the full reply.
	var full strings.Builder
	sinkBroken := false
	buf := make([]byte, 32*1024)
	for {
		n, readErr := upstream.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			full.Write(chunk)
			if !sinkBroken {
				if _, werr := sink.Write(chunk); werr != nil {
					slog.Warn("client stream write failed", "chat_id", chatID, "err", werr)
					sinkBroken = true
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			slog.Error("ai stream aborted", "chat_id", chatID, "err", readErr)
			return fmt.Errorf("ai stream: %w", readErr)
		}
	}

	answer := strings.TrimSpace(full.String())
	if answer == "" {
		return nil
	}
	assistantMsg := domain.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Sender:    domain.SenderAssistant,
		Content:   answer,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AppendMessage(assistantMsg); err != nil {
		return fmt.Errorf("save assistant message: %w", err)
	}
	return nil
}

// ChatDetails returns the chat's PDFs and its quiz history for the caller,
// newest attempt first.
func (a *App) ChatDetails(userID, chatID string) (domain.ChatDetails, error) {
	chat, err := a.ownedChat(userID, chatID)
	if err != nil {
		return domain.ChatDetails{}, err
	}
	pdfs, err := a.store.ListPDFsByIDs(chat.PDFIDs)
	if err != nil {
		return domain.ChatDetails{}, fmt.Errorf("list chat pdfs: %w", err)
	}
	// Preserve the chat's PDF ordering.
	byID := make(map[string]domain.PDF, len(pdfs))
	for _, pdf := range pdfs {
		byID[pdf.ID] = pdf
	}
	ordered := make([]domain.PDF, 0, len(chat.PDFIDs))
	for _, id := range chat.PDFIDs {
		if pdf, ok := byID[id]; ok {
			ordered = append(ordered, pdf)
		}
	}
	attempts, err := a.store.ListAttemptsByChat(chatID, userID)
	if err != nil {
		return domain.ChatDetails{}, fmt.Errorf("list attempts: %w", err)
	}
	return domain.ChatDetails{
		PDFs:        ordered,
		QuizHistory: attemptSummaries(attempts),
	}, nil
}

func (a *App) ownedChat(userID, chatID string) (domain.Chat, error) {
	chat, ok, err := a.store.GetChat(chatID)
	if err != nil {
		return domain.Chat{}, fmt.Errorf("fetch chat: %w", err)
	}
	if !ok || chat.OwnerID != userID {
		return domain.Chat{}, ErrChatNotFound
	}
	return chat, nil
}

// truncateTitle derives a chat title from the first user message.
func truncateTitle(content string) string {
	const maxTitle = 50
	runes := []rune(content)
	if len(runes) <= maxTitle {
		return content
	}
	return string(runes[:maxTitle])
}

func attemptSummaries(attempts []domain.QuizAttempt) []domain.AttemptSummary {
	out := make([]domain.AttemptSummary, 0, len(attempts))
	for _, attempt := range attempts {
		out = append(out, domain.AttemptSummary{
			AttemptID:      attempt.ID,
			Score:          attempt.TotalScore,
			TotalQuestions: len(attempt.GradedQuestions),
			Date:           attempt.CreatedAt,
		})
	}
	return out
}
