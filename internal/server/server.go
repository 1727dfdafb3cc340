package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"signflow/internal/compliance"
	"signflow/internal/database"
	"signflow/internal/notify"
	"signflow/internal/storage"
	"signflow/internal/token"
	"signflow/internal/workflow"
)

type Server struct {
	port      int
	db        database.Service
	s3Service *storage.S3Service
	notifier  notify.Service
	tokens    *token.Manager
	codes     *compliance.CodeStore
	engine    *compliance.Engine
	workflow  *workflow.Workflow
}

func (s *Server) GetDB() database.Service {
	return s.db
}

func (s *Server) GetS3Service() *storage.S3Service {
	return s.s3Service
}

func (s *Server) GetNotifier() notify.Service {
	return s.notifier
}

func (s *Server) GetTokens() *token.Manager {
	return s.tokens
}

func (s *Server) GetEngine() *compliance.Engine {
	return s.engine
}

func (s *Server) GetCodes() *compliance.CodeStore {
	return s.codes
}

func (s *Server) GetWorkflow() *workflow.Workflow {
	return s.workflow
}

// identity adapts the database service to the workflow's weak-link
// resolution. A missing account is not an error; the signatory simply
// stays unlinked.
type identity struct {
	db database.Service
}

func (l identity) FindUserByEmail(_ context.Context, email string) (*int, error) {
	user, err := l.db.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user.ID, nil
}

func NewServer() *http.Server {
	port, _ := strconv.Atoi(os.Getenv("PORT"))

	s3Service, err := storage.NewS3Service()
	if err != nil {
		log.Fatalf("Failed to initialize S3 service: %v", err)
	}

	var notifier notify.Service
	if os.Getenv("SMTP_HOST") != "" {
		smtpService, err := notify.NewSMTPService()
		if err != nil {
			log.Fatalf("Failed to initialize SMTP service: %v", err)
		}
		notifier = smtpService
	} else {
		log.Printf("SMTP_HOST not set, logging emails instead of sending")
		notifier = notify.LogService{}
	}

	secret := os.Getenv("SIGNING_TOKEN_SECRET")
	if secret == "" {
		log.Fatalf("SIGNING_TOKEN_SECRET environment variable is required")
	}
	baseURL := os.Getenv("APP_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}

	db := database.New()
	tokens := token.NewManager(secret, baseURL)
	codes := compliance.NewCodeStore()

	NewServer := &Server{
		port:      port,
		db:        db,
		s3Service: s3Service,
		notifier:  notifier,
		tokens:    tokens,
		codes:     codes,
		engine:    compliance.NewEngine(codes),
		workflow:  workflow.New(db, notifier, identity{db: db}, tokens),
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
