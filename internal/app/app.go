package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"studydesk/internal/aiclient"
	"studydesk/internal/storage"
	"studydesk/internal/store"
	"studydesk/internal/videos"
)

// AIService is the external collaborator performing document ingestion,
// question answering, quiz generation and grading.
type AIService interface {
	ProcessPDF(ctx context.Context, pdfID, pdfURL string) error
	Chat(ctx context.Context, query string, pdfIDs []string) (io.ReadCloser, error)
	GenerateQuiz(ctx context.Context, pdfIDs []string, numMCQs, numSAQs, numLAQs int) (aiclient.GeneratedQuiz, error)
	GradeQuiz(ctx context.Context, questions []aiclient.QuestionToGrade) (aiclient.GradingResponse, error)
}

// Config holds runtime configuration for the core application. Concrete
// dependencies may be injected (tests) or constructed from the settings.
type Config struct {
	DatabaseURL string
	Store       store.Store

	JWTSecret  string
	SessionTTL time.Duration
	Sessions   store.SessionStore

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	Objects        storage.ObjectStore

	AIServiceURL string
	AI           AIService

	YouTubeAPIKey string
	Videos        videos.Searcher
}

// App is the core application service wiring storage, sessions, the AI
// collaborator and video search.
type App struct {
	store    store.Store
	sessions store.SessionStore
	objects  storage.ObjectStore
	ai       AIService
	videos   videos.Searcher

	presignExpiry time.Duration
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessions := cfg.Sessions
	if sessions == nil {
		var err error
		sessions, err = store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("init session store: %w", err)
		}
	}

	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
	}

	ai := cfg.AI
	if ai == nil {
		if cfg.AIServiceURL == "" {
			return nil, fmt.Errorf("AI service URL required")
		}
		ai = aiclient.NewClient(cfg.AIServiceURL)
	}

	videoSearch := cfg.Videos
	if videoSearch == nil && cfg.YouTubeAPIKey != "" {
		var err error
		videoSearch, err = videos.NewYouTubeSearcher(context.Background(), cfg.YouTubeAPIKey)
		if err != nil {
			return nil, fmt.Errorf("init youtube search: %w", err)
		}
	}

	return &App{
		store:         dataStore,
		sessions:      sessions,
		objects:       objects,
		ai:            ai,
		videos:        videoSearch,
		presignExpiry: 24 * time.Hour,
	}, nil
}
