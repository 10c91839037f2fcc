package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client calls the AI microservice over HTTP. The service performs PDF
// ingestion, question answering, quiz generation and grading; this process
// treats it as an opaque collaborator.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// chat responses stream for as long as the model generates, so the
	// streaming client carries no overall timeout. Cancellation comes
	// from the request context.
	streamClient *http.Client
}

// APIError represents an AI service error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ai service: %s (status %d)", e.Message, e.Status)
}

// NewClient constructs an AI service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		streamClient: &http.Client{},
	}
}

type processPDFRequest struct {
	PDFID  string `json:"pdfId"`
	PDFURL string `json:"pdfUrl"`
}

// ProcessPDF asks the AI service to ingest an uploaded document. The
// service reports progress later through the update-status callback.
func (c *Client) ProcessPDF(ctx context.Context, pdfID, pdfURL string) error {
	return c.postJSON(ctx, "/api/v1/process-pdf", processPDFRequest{PDFID: pdfID, PDFURL: pdfURL}, nil)
}

type chatRequest struct {
	Query  string   `json:"query"`
	PDFIDs []string `json:"pdfIds"`
}

// Chat sends a question scoped to a set of PDFs and returns the streamed
// plain-text answer body. The caller must close the returned reader.
func (c *Client) Chat(ctx context.Context, query string, pdfIDs []string) (io.ReadCloser, error) {
	payload, err := json.Marshal(chatRequest{Query: query, PDFIDs: pdfIDs})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, apiErrorFromResponse(resp)
	}
	return resp.Body, nil
}

type quizGenerationRequest struct {
	PDFIDs  []string `json:"pdfIds"`
	NumMCQs int      `json:"numMCQs"`
	NumSAQs int      `json:"numSAQs"`
	NumLAQs int      `json:"numLAQs"`
}

// GeneratedMCQ is a generated multiple-choice item. The correct answer is
// kept server-side as the grading reference.
type GeneratedMCQ struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

// GeneratedWritten is a generated short- or long-answer item.
type GeneratedWritten struct {
	Question    string `json:"question"`
	IdealAnswer string `json:"ideal_answer"`
}

// GeneratedQuiz is the AI service's quiz-generation response.
type GeneratedQuiz struct {
	MCQs []GeneratedMCQ     `json:"mcqs"`
	SAQs []GeneratedWritten `json:"saqs"`
	LAQs []GeneratedWritten `json:"laqs"`
}

// GenerateQuiz requests a quiz over the given PDFs with per-type counts.
func (c *Client) GenerateQuiz(ctx context.Context, pdfIDs []string, numMCQs, numSAQs, numLAQs int) (GeneratedQuiz, error) {
	var out GeneratedQuiz
	err := c.postJSON(ctx, "/api/v1/generate-quiz", quizGenerationRequest{
		PDFIDs:  pdfIDs,
		NumMCQs: numMCQs,
		NumSAQs: numSAQs,
		NumLAQs: numLAQs,
	}, &out)
	return out, err
}

// QuestionToGrade pairs a submitted answer with its grading reference.
// QuestionID is echoed back by the service so results can be linked to the
// original question without re-matching by text.
type QuestionToGrade struct {
	QuestionID   string `json:"question_id"`
	Question     string `json:"question"`
	UserAnswer   string `json:"user_answer"`
	IdealAnswer  string `json:"ideal_answer"`
	QuestionType string `json:"question_type"`
}

type quizGradingRequest struct {
	QuestionsToGrade []QuestionToGrade `json:"questions_to_grade"`
}

// GradedResult is one graded answer in the grading response.
type GradedResult struct {
	QuestionID  string  `json:"question_id"`
	Question    string  `json:"question"`
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// GradingResponse is the AI service's grading response.
type GradingResponse struct {
	GradedQuestions []GradedResult `json:"graded_questions"`
	TotalScore      float64        `json:"total_score"`
}

// GradeQuiz submits answers for grading.
func (c *Client) GradeQuiz(ctx context.Context, questions []QuestionToGrade) (GradingResponse, error) {
	var out GradingResponse
	err := c.postJSON(ctx, "/api/v1/grade-quiz", quizGradingRequest{QuestionsToGrade: questions}, &out)
	return out, err
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return apiErrorFromResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ai response: %w", err)
	}
	return nil
}

func apiErrorFromResponse(resp *http.Response) error {
	var errResp struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&errResp)
	msg := errResp.Error
	if msg == "" {
		msg = errResp.Detail
	}
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
