package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"studydesk/internal/aiclient"
	"studydesk/internal/store"
	"studydesk/pkg/domain"
)

// fakeObjects is an in-memory object store.
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "http://objects.test/" + key, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

// fakeAI scripts the AI service collaborator.
type fakeAI struct {
	mu        sync.Mutex
	processed chan string

	processErr error
	chatErr    error
	chatBody   func() io.ReadCloser
	quiz       aiclient.GeneratedQuiz
	quizErr    error
	gradeFn    func([]aiclient.QuestionToGrade) (aiclient.GradingResponse, error)

	gradeCalls int
}

func newFakeAI() *fakeAI {
	return &fakeAI{processed: make(chan string, 16)}
}

func (f *fakeAI) ProcessPDF(_ context.Context, pdfID, _ string) error {
	f.processed <- pdfID
	return f.processErr
}

func (f *fakeAI) Chat(_ context.Context, _ string, _ []string) (io.ReadCloser, error) {
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	if f.chatBody != nil {
		return f.chatBody(), nil
	}
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeAI) GenerateQuiz(_ context.Context, _ []string, _, _, _ int) (aiclient.GeneratedQuiz, error) {
	if f.quizErr != nil {
		return aiclient.GeneratedQuiz{}, f.quizErr
	}
	return f.quiz, nil
}

func (f *fakeAI) GradeQuiz(_ context.Context, questions []aiclient.QuestionToGrade) (aiclient.GradingResponse, error) {
	f.mu.Lock()
	f.gradeCalls++
	f.mu.Unlock()
	if f.gradeFn != nil {
		return f.gradeFn(questions)
	}
	resp := aiclient.GradingResponse{}
	for _, q := range questions {
		resp.GradedQuestions = append(resp.GradedQuestions, aiclient.GradedResult{
			QuestionID:  q.QuestionID,
			Question:    q.Question,
			Score:       1,
			Explanation: "ok",
		})
		resp.TotalScore++
	}
	return resp, nil
}

func (f *fakeAI) awaitProcessed(t *testing.T) string {
	t.Helper()
	select {
	case id := <-f.processed:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ProcessPDF trigger")
		return ""
	}
}

// fakeSearcher resolves each topic to one scripted video.
type fakeSearcher struct {
	videos    map[string]domain.VideoRecommendation
	errTopics map[string]bool
}

func (f *fakeSearcher) TopVideo(_ context.Context, topic string) (domain.VideoRecommendation, bool, error) {
	if f.errTopics[topic] {
		return domain.VideoRecommendation{}, false, errors.New("quota exceeded")
	}
	rec, ok := f.videos[topic]
	return rec, ok, nil
}

func newTestApp(t *testing.T, ai AIService, searcher *fakeSearcher) (*App, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	cfg := Config{
		Store:    mem,
		Sessions: sessions,
		Objects:  newFakeObjects(),
		AI:       ai,
	}
	if searcher != nil {
		cfg.Videos = searcher
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, mem
}

func signUpUser(t *testing.T, a *App, email string) domain.User {
	t.Helper()
	user, err := a.SignUp("Test User", email, "secret123")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	return user
}

func seedReadyPDF(t *testing.T, mem *store.MemoryStore, id, ownerID string) domain.PDF {
	t.Helper()
	pdf := domain.PDF{
		ID:         id,
		Filename:   id + ".pdf",
		StorageKey: "pdfs/" + id,
		StorageURL: "http://objects.test/pdfs/" + id,
		OwnerID:    ownerID,
		Status:     domain.StatusReady,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := mem.SavePDF(pdf); err != nil {
		t.Fatalf("seed pdf: %v", err)
	}
	return pdf
}

// minimalPDF builds a one-page PDF with a correct xref table.
func minimalPDF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	objs := []string{
		"1 0 obj\n<</Type/Catalog/Pages 2 0 R>>\nendobj\n",
		"2 0 obj\n<</Type/Pages/Kids[3 0 R]/Count 1>>\nendobj\n",
		"3 0 obj\n<</Type/Page/Parent 2 0 R/MediaBox[0 0 612 792]/Resources<<>>>>\nendobj\n",
	}
	offsets := make([]int, 0, len(objs))
	for _, obj := range objs {
		offsets = append(offsets, buf.Len())
		buf.WriteString(obj)
	}
	xrefPos := buf.Len()
	buf.WriteString("xref\n0 4\n0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<</Size 4/Root 1 0 R>>\nstartxref\n%d\n%%%%EOF\n", xrefPos)
	return buf.Bytes()
}
