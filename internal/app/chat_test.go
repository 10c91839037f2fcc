package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"studydesk/pkg/domain"
)

func TestCreateChatValidation(t *testing.T) {
	a, mem := newTestApp(t, newFakeAI(), nil)
	user := signUpUser(t, a, "alice@example.com")
	seedReadyPDF(t, mem, "pdf-1", user.ID)

	if _, err := a.CreateChat(user.ID, nil, ""); !IsValidation(err) {
		t.Fatalf("empty pdfIds err = %v, want validation error", err)
	}
	if _, err := a.CreateChat(user.ID, []string{"pdf-1", "missing"}, ""); !errors.Is(err, ErrPDFNotFound) {
		t.Fatalf("unknown pdf err = %v, want ErrPDFNotFound", err)
	}
	chats, err := a.ListChats(user.ID)
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if len(chats) != 0 {
		t.Fatalf("chats persisted after failed creation: %d", len(chats))
	}
}

func TestCreateChatSharedLibrary(t *testing.T) {
	a, mem := newTestApp(t, newFakeAI(), nil)
	alice := signUpUser(t, a, "alice@example.com")
	bob := signUpUser(t, a, "bob@example.com")

	// Ready documents are shared; unprocessed ones stay private.
	seedReadyPDF(t, mem, "pdf-shared", bob.ID)
	private := seedReadyPDF(t, mem, "pdf-private", bob.ID)
	private.Status = domain.StatusPending
	if err := mem.SavePDF(private); err != nil {
		t.Fatalf("seed pdf: %v", err)
	}

	if _, err := a.CreateChat(alice.ID, []string{"pdf-shared"}, ""); err != nil {
		t.Fatalf("chat over shared ready pdf: %v", err)
	}
	if _, err := a.CreateChat(alice.ID, []string{"pdf-private"}, ""); !errors.Is(err, ErrPDFNotFound) {
		t.Fatalf("chat over foreign pending pdf err = %v, want ErrPDFNotFound", err)
	}
	if _, err := a.CreateChat(bob.ID, []string{"pdf-private"}, ""); err != nil {
		t.Fatalf("owner chat over own pending pdf: %v", err)
	}
}

func TestCreateChatDefaultTitle(t *testing.T) {
	a, mem := newTestApp(t, newFakeAI(), nil)
	user := signUpUser(t, a, "alice@example.com")
	seedReadyPDF(t, mem, "pdf-1", user.ID)

	chat, err := a.CreateChat(user.ID, []string{"pdf-1"}, "  ")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if chat.Title != domain.DefaultChatTitle {
		t.Fatalf("title = %q, want %q", chat.Title, domain.DefaultChatTitle)
	}
}

func TestStreamAnswerPersistsBothMessages(t *testing.T) {
	ai := newFakeAI()
	ai.chatBody = func() io.ReadCloser {
		return io.NopCloser(strings.NewReader("The mitochondria is the powerhouse of the cell."))
	}
	a, mem := newTestApp(t, ai, nil)
	user := signUpUser(t, a, "alice@example.com")
	seedReadyPDF(t, mem, "pdf-1", user.ID)
	chat, err := a.CreateChat(user.ID, []string{"pdf-1"}, "")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	var sink bytes.Buffer
	if err := a.StreamAnswer(context.Background(), user.ID, chat.ID, "what is a mitochondria?", &sink); err != nil {
		t.Fatalf("stream answer: %v", err)
	}
	if got := sink.String(); got != "The mitochondria is the powerhouse of the cell." {
		t.Fatalf("streamed = %q", got)
	}

	messages, err := a.Messages(user.ID, chat.ID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("message count = %d, want 2", len(messages))
	}
	if messages[0].Sender != domain.SenderUser || messages[1].Sender != domain.SenderAssistant {
		t.Fatalf("unexpected senders: %s, %s", messages[0].Sender, messages[1].Sender)
	}
}

func TestStreamAnswerSetsTitleOnce(t *testing.T) {
	ai := newFakeAI()
	ai.chatBody = func() io.ReadCloser { return io.NopCloser(strings.NewReader("ok")) }
	a, mem := newTestApp(t, ai, nil)
	user := signUpUser(t, a, "alice@example.com")
	seedReadyPDF(t, mem, "pdf-1", user.ID)
	chat, err := a.CreateChat(user.ID, []string{"pdf-1"}, "")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	first := strings.Repeat("x", 60)
	if err := a.StreamAnswer(context.Background(), user.ID, chat.ID, first, io.Discard); err != nil {
		t.Fatalf("first message: %v", err)
	}
	got, _, _ := mem.GetChat(chat.ID)
	want := strings.Repeat("x", 50)
	if got.Title != want {
		t.Fatalf("title = %q, want first 50 characters", got.Title)
	}

	if err := a.StreamAnswer(context.Background(), user.ID, chat.ID, "a second message", io.Discard); err != nil {
		t.Fatalf("second message: %v", err)
	}
	got, _, _ = mem.GetChat(chat.ID)
	if got.Title != want {
		t.Fatalf("title changed on second message: %q", got.Title)
	}
}

func TestStreamAnswerKeepsCustomTitle(t *testing.T) {
	ai := newFakeAI()
	ai.chatBody = func() io.ReadCloser { return io.NopCloser(strings.NewReader("ok")) }
	a, mem := newTestApp(t, ai, nil)
	user := signUpUser(t, a, "alice@example.com")
	seedReadyPDF(t, mem, "pdf-1", user.ID)
	chat, err := a.CreateChat(user.ID, []string{"pdf-1"}, "Biology revision")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	if err := a.StreamAnswer(context.Background(), user.ID, chat.ID, "hello", io.Discard); err != nil {
		t.Fatalf("stream answer: %v", err)
	}
	got, _, _ := mem.GetChat(chat.ID)
	if got.Title != "Biology revision" {
		t.Fatalf("title = %q, want custom title untouched", got.Title)
	}
}

func TestStreamAnswerUpstreamFailureBeforeStream(t *testing.T) {
	ai := newFakeAI()
	ai.chatErr = errors.New("service unavailable")
	a, mem := newTestApp(t, ai, nil)
	user := signUpUser(t, a, "alice@example.com")
	seedReadyPDF(t, mem, "pdf-1", user.ID)
	chat, err := a.CreateChat(user.ID, []string{"pdf-1"}, "")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	var sink bytes.Buffer
	if err := a.StreamAnswer(context.Background(), user.ID, chat.ID, "hello", &sink); err == nil {
		t.Fatal("expected error from failed upstream call")
	}
	if sink.Len() != 0 {
		t.Fatalf("sink received %d bytes before failure", sink.Len())
	}
	messages, _ := a.Messages(user.ID, chat.ID)
	if len(messages) != 1 || messages[0].Sender != domain.SenderUser {
		t.Fatalf("messages = %+v, want only the user message", messages)
	}
}

// errAfterReader yields its payload, then fails instead of a clean EOF.
type errAfterReader struct {
	data []byte
	err  error
	pos  int
}

func (r *errAfterReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, r.err
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func (r *errAfterReader) Close() error { return nil }

func TestStreamAnswerMidStreamFailureDiscardsReply(t *testing.T) {
	ai := newFakeAI()
	ai.chatBody = func() io.ReadCloser {
		return &errAfterReader{data: []byte("partial ans"), err: errors.New("connection reset")}
	}
	a, mem := newTestApp(t, ai, nil)
	user := signUpUser(t, a, "alice@example.com")
	seedReadyPDF(t, mem, "pdf-1", user.ID)
	chat, err := a.CreateChat(user.ID, []string{"pdf-1"}, "")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	var sink bytes.Buffer
	if err := a.StreamAnswer(context.Background(), user.ID, chat.ID, "hello", &sink); err == nil {
		t.Fatal("expected mid-stream error")
	}
	if sink.String() != "partial ans" {
		t.Fatalf("sink = %q, want the partial bytes forwarded", sink.String())
	}
	messages, _ := a.Messages(user.ID, chat.ID)
	for _, msg := range messages {
		if msg.Sender == domain.SenderAssistant {
			t.Fatal("truncated assistant reply was persisted")
		}
	}
}

// brokenSink fails every write, simulating a disconnected client.
type brokenSink struct{}

func (brokenSink) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func TestStreamAnswerClientDisconnectStillPersists(t *testing.T) {
	ai := newFakeAI()
	ai.chatBody = func() io.ReadCloser { return io.NopCloser(strings.NewReader("full reply")) }
	a, mem := newTestApp(t, ai, nil)
	user := signUpUser(t, a, "alice@example.com")
	seedReadyPDF(t, mem, "pdf-1", user.ID)
	chat, err := a.CreateChat(user.ID, []string{"pdf-1"}, "")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	if err := a.StreamAnswer(context.Background(), user.ID, chat.ID, "hello", brokenSink{}); err != nil {
		t.Fatalf("stream answer: %v", err)
	}
	messages, _ := a.Messages(user.ID, chat.ID)
	if len(messages) != 2 || messages[1].Content != "full reply" {
		t.Fatalf("messages = %+v, want persisted full reply", messages)
	}
}

func TestStreamAnswerOwnership(t *testing.T) {
	a, mem := newTestApp(t, newFakeAI(), nil)
	alice := signUpUser(t, a, "alice@example.com")
	bob := signUpUser(t, a, "bob@example.com")
	seedReadyPDF(t, mem, "pdf-1", alice.ID)
	chat, err := a.CreateChat(alice.ID, []string{"pdf-1"}, "")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	err = a.StreamAnswer(context.Background(), bob.ID, chat.ID, "hello", io.Discard)
	if !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("err = %v, want ErrChatNotFound", err)
	}
}

func TestChatDetails(t *testing.T) {
	a, mem := newTestApp(t, newFakeAI(), nil)
	user := signUpUser(t, a, "alice@example.com")
	seedReadyPDF(t, mem, "pdf-1", user.ID)
	seedReadyPDF(t, mem, "pdf-2", user.ID)
	chat, err := a.CreateChat(user.ID, []string{"pdf-2", "pdf-1"}, "")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	details, err := a.ChatDetails(user.ID, chat.ID)
	if err != nil {
		t.Fatalf("chat details: %v", err)
	}
	if len(details.PDFs) != 2 || details.PDFs[0].ID != "pdf-2" || details.PDFs[1].ID != "pdf-1" {
		t.Fatalf("pdfs = %+v, want chat order preserved", details.PDFs)
	}
	if len(details.QuizHistory) != 0 {
		t.Fatalf("quizHistory = %+v, want empty", details.QuizHistory)
	}
}

func TestTruncateTitle(t *testing.T) {
	if got := truncateTitle("short question"); got != "short question" {
		t.Fatalf("truncateTitle(short) = %q", got)
	}
	long := strings.Repeat("é", 55)
	if got := truncateTitle(long); got != strings.Repeat("é", 50) {
		t.Fatalf("truncateTitle counts runes, got %d bytes", len(got))
	}
}
