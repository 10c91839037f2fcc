package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	ledongthuc "github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"studydesk/pkg/domain"
)

// UploadFile is one file from a multipart upload, buffered in memory so it
// can be sniffed and stored.
type UploadFile struct {
	Filename string
	Data     []byte
}

var statusRank = map[domain.PDFStatus]int{
	domain.StatusPending:    0,
	domain.StatusProcessing: 1,
	domain.StatusReady:      2,
	domain.StatusFailed:     2,
}

// UploadPDFs stores the files, creates pending records and triggers AI
// processing for each one. The trigger is fire-and-forget: its failure is
// observed only through logs and the record's failed status.
func (a *App) UploadPDFs(ctx context.Context, ownerID string, files []UploadFile) ([]domain.PDF, error) {
	if len(files) == 0 {
		return nil, validationErrorf("no files uploaded")
	}

	type staged struct {
		pdf domain.PDF
	}
	records := make([]staged, len(files))
	now := time.Now().UTC()
	for i, file := range files {
		pageCount, err := pdfPageCount(file.Data)
		if err != nil {
			return nil, validationErrorf("%s is not a valid PDF", file.Filename)
		}
		id := uuid.NewString()
		records[i] = staged{pdf: domain.PDF{
			ID:         id,
			Filename:   file.Filename,
			StorageKey: fmt.Sprintf("pdfs/%s/%s", id, file.Filename),
			OwnerID:    ownerID,
			Status:     domain.StatusPending,
			PageCount:  pageCount,
			CreatedAt:  now,
			UpdatedAt:  now,
		}}
	}

	// All files go to object storage in parallel before any record is
	// created, so a storage failure fails the whole upload cleanly.
	g, gctx := errgroup.WithContext(ctx)
	for i := range records {
		rec := records[i]
		data := files[i].Data
		g.Go(func() error {
			return a.objects.Put(gctx, rec.pdf.StorageKey, bytes.NewReader(data), int64(len(data)), "application/pdf")
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("store files: %w", err)
	}

	pdfs := make([]domain.PDF, 0, len(records))
	for _, rec := range records {
		url, err := a.objects.PresignGet(ctx, rec.pdf.StorageKey, a.presignExpiry)
		if err != nil {
			return nil, fmt.Errorf("presign pdf url: %w", err)
		}
		rec.pdf.StorageURL = url
		if err := a.store.SavePDF(rec.pdf); err != nil {
			_ = a.objects.Delete(ctx, rec.pdf.StorageKey)
			return nil, fmt.Errorf("save pdf: %w", err)
		}
		pdfs = append(pdfs, rec.pdf)
		go a.triggerProcessing(rec.pdf)
	}
	return pdfs, nil
}

// triggerProcessing notifies the AI service about a new upload. Runs
// detached from the upload request.
func (a *App) triggerProcessing(pdf domain.PDF) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.ai.ProcessPDF(ctx, pdf.ID, pdf.StorageURL); err != nil {
		slog.Error("trigger pdf processing", "pdf_id", pdf.ID, "err", err)
		if serr := a.store.SetPDFStatus(pdf.ID, domain.StatusFailed, ""); serr != nil {
			slog.Error("mark pdf failed", "pdf_id", pdf.ID, "err", serr)
		}
		return
	}
	if err := a.store.SetPDFStatus(pdf.ID, domain.StatusProcessing, ""); err != nil {
		slog.Error("mark pdf processing", "pdf_id", pdf.ID, "err", err)
	}
}

// UpdatePDFStatus applies the AI service's processing callback. Status
// never regresses. On ready with topics, one video lookup runs per topic;
// a failed lookup skips that topic only.
func (a *App) UpdatePDFStatus(ctx context.Context, pdfID string, status domain.PDFStatus, vectorStorePath string, topics []string) error {
	if _, ok := statusRank[status]; !ok {
		return validationErrorf("invalid status %q", status)
	}
	pdf, ok, err := a.store.GetPDF(pdfID)
	if err != nil {
		return fmt.Errorf("fetch pdf: %w", err)
	}
	if !ok {
		return ErrPDFNotFound
	}
	if statusRank[status] < statusRank[pdf.Status] {
		return validationErrorf("status cannot move from %s back to %s", pdf.Status, status)
	}
	path := ""
	if status == domain.StatusReady {
		path = vectorStorePath
	}
	if err := a.store.SetPDFStatus(pdfID, status, path); err != nil {
		return fmt.Errorf("set pdf status: %w", err)
	}

	if status == domain.StatusReady && len(topics) > 0 && a.videos != nil {
		recs := make([]domain.VideoRecommendation, 0, len(topics))
		for _, topic := range topics {
			rec, found, err := a.videos.TopVideo(ctx, topic)
			if err != nil {
				slog.Warn("video search failed", "pdf_id", pdfID, "topic", topic, "err", err)
				continue
			}
			if found {
				recs = append(recs, rec)
			}
		}
		if err := a.store.SetPDFRecommendations(pdfID, recs); err != nil {
			return fmt.Errorf("save recommendations: %w", err)
		}
		slog.Info("saved video recommendations", "pdf_id", pdfID, "count", len(recs))
	}
	return nil
}

// ListReadyPDFs returns every processed PDF. The library is shared across
// users.
func (a *App) ListReadyPDFs() ([]domain.PDF, error) {
	return a.store.ListPDFsByStatus(domain.StatusReady)
}

func pdfPageCount(data []byte) (int, error) {
	reader, err := ledongthuc.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}
