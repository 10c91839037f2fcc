package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"studydesk/internal/store"
	"studydesk/pkg/domain"
)

func awaitStatus(t *testing.T, mem *store.MemoryStore, pdfID string, want domain.PDFStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		pdf, ok, err := mem.GetPDF(pdfID)
		if err != nil {
			t.Fatalf("get pdf: %v", err)
		}
		if ok && pdf.Status == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("pdf %s status = %s, want %s", pdfID, pdf.Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUploadPDFsTriggersProcessing(t *testing.T) {
	ai := newFakeAI()
	a, mem := newTestApp(t, ai, nil)
	user := signUpUser(t, a, "alice@example.com")

	files := []UploadFile{{Filename: "notes.pdf", Data: minimalPDF(t)}}
	pdfs, err := a.UploadPDFs(context.Background(), user.ID, files)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(pdfs) != 1 {
		t.Fatalf("uploaded = %d, want 1", len(pdfs))
	}
	pdf := pdfs[0]
	if pdf.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", pdf.Status)
	}
	if pdf.PageCount != 1 {
		t.Fatalf("pageCount = %d, want 1", pdf.PageCount)
	}
	if pdf.StorageURL == "" {
		t.Fatal("storage url not set")
	}

	if got := ai.awaitProcessed(t); got != pdf.ID {
		t.Fatalf("processed id = %s, want %s", got, pdf.ID)
	}
	awaitStatus(t, mem, pdf.ID, domain.StatusProcessing)
}

func TestUploadPDFsMarksFailedWhenTriggerFails(t *testing.T) {
	ai := newFakeAI()
	ai.processErr = errors.New("ai service down")
	a, mem := newTestApp(t, ai, nil)
	user := signUpUser(t, a, "alice@example.com")

	pdfs, err := a.UploadPDFs(context.Background(), user.ID, []UploadFile{{Filename: "notes.pdf", Data: minimalPDF(t)}})
	if err != nil {
		t.Fatalf("upload must not fail on trigger errors: %v", err)
	}
	ai.awaitProcessed(t)
	awaitStatus(t, mem, pdfs[0].ID, domain.StatusFailed)
}

func TestUploadPDFsRejectsInvalidFile(t *testing.T) {
	a, _ := newTestApp(t, newFakeAI(), nil)
	user := signUpUser(t, a, "alice@example.com")

	_, err := a.UploadPDFs(context.Background(), user.ID, []UploadFile{{Filename: "notes.pdf", Data: []byte("plain text")}})
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	_, err = a.UploadPDFs(context.Background(), user.ID, nil)
	if !IsValidation(err) {
		t.Fatalf("empty upload err = %v, want validation error", err)
	}
}

func TestUpdatePDFStatusLifecycle(t *testing.T) {
	a, mem := newTestApp(t, newFakeAI(), nil)
	user := signUpUser(t, a, "alice@example.com")
	pdf := seedReadyPDF(t, mem, "pdf-1", user.ID)
	pdf.Status = domain.StatusPending
	if err := mem.SavePDF(pdf); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ctx := context.Background()
	if err := a.UpdatePDFStatus(ctx, "pdf-1", domain.StatusProcessing, "", nil); err != nil {
		t.Fatalf("pending -> processing: %v", err)
	}
	if err := a.UpdatePDFStatus(ctx, "pdf-1", domain.StatusReady, "/vectors/pdf-1", nil); err != nil {
		t.Fatalf("processing -> ready: %v", err)
	}
	got, _, _ := mem.GetPDF("pdf-1")
	if got.VectorStorePath != "/vectors/pdf-1" {
		t.Fatalf("vectorStorePath = %q", got.VectorStorePath)
	}
	if len(got.Recommendations) != 0 {
		t.Fatalf("recommendations = %+v, want empty without topics", got.Recommendations)
	}

	// Status never regresses.
	err := a.UpdatePDFStatus(ctx, "pdf-1", domain.StatusProcessing, "", nil)
	if !IsValidation(err) {
		t.Fatalf("regression err = %v, want validation error", err)
	}
	if err := a.UpdatePDFStatus(ctx, "pdf-1", "bogus", "", nil); !IsValidation(err) {
		t.Fatalf("invalid status err = %v, want validation error", err)
	}
	if err := a.UpdatePDFStatus(ctx, "missing", domain.StatusReady, "", nil); !errors.Is(err, ErrPDFNotFound) {
		t.Fatalf("unknown pdf err = %v, want ErrPDFNotFound", err)
	}
}

func TestUpdatePDFStatusVideoRecommendations(t *testing.T) {
	searcher := &fakeSearcher{
		videos: map[string]domain.VideoRecommendation{
			"photosynthesis": {Title: "Photosynthesis explained", VideoID: "vid1", URL: "https://www.youtube.com/watch?v=vid1"},
			"krebs cycle":    {Title: "The Krebs cycle", VideoID: "vid2", URL: "https://www.youtube.com/watch?v=vid2"},
		},
		errTopics: map[string]bool{"osmosis": true},
	}
	a, mem := newTestApp(t, newFakeAI(), searcher)
	user := signUpUser(t, a, "alice@example.com")
	pdf := seedReadyPDF(t, mem, "pdf-1", user.ID)
	pdf.Status = domain.StatusProcessing
	if err := mem.SavePDF(pdf); err != nil {
		t.Fatalf("seed: %v", err)
	}

	topics := []string{"photosynthesis", "osmosis", "krebs cycle", "unknown topic"}
	if err := a.UpdatePDFStatus(context.Background(), "pdf-1", domain.StatusReady, "/v/1", topics); err != nil {
		t.Fatalf("update status: %v", err)
	}

	got, _, _ := mem.GetPDF("pdf-1")
	// One video per resolvable topic; failures and misses are skipped.
	if len(got.Recommendations) != 2 {
		t.Fatalf("recommendations = %+v, want 2", got.Recommendations)
	}
	if got.Recommendations[0].VideoID != "vid1" || got.Recommendations[1].VideoID != "vid2" {
		t.Fatalf("recommendations order = %+v", got.Recommendations)
	}
}

func TestListReadyPDFsSharedAcrossUsers(t *testing.T) {
	a, mem := newTestApp(t, newFakeAI(), nil)
	alice := signUpUser(t, a, "alice@example.com")
	bob := signUpUser(t, a, "bob@example.com")
	seedReadyPDF(t, mem, "pdf-a", alice.ID)
	seedReadyPDF(t, mem, "pdf-b", bob.ID)
	pending := seedReadyPDF(t, mem, "pdf-c", bob.ID)
	pending.Status = domain.StatusPending
	if err := mem.SavePDF(pending); err != nil {
		t.Fatalf("seed: %v", err)
	}

	pdfs, err := a.ListReadyPDFs()
	if err != nil {
		t.Fatalf("list ready: %v", err)
	}
	if len(pdfs) != 2 {
		t.Fatalf("ready pdfs = %d, want 2", len(pdfs))
	}
	for _, pdf := range pdfs {
		if pdf.Status != domain.StatusReady {
			t.Fatalf("non-ready pdf in library: %+v", pdf)
		}
	}
}
