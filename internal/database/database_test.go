package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"signflow/internal/compliance"
	"signflow/internal/document"
)

// mustStartPostgresContainer starts a postgres container and returns a
// teardown function, a connection string, and an error.
func mustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, string, error) {
	var (
		dbName = "test_db"
		dbPwd  = "password"
		dbUser = "user"
	)

	dbContainer, err := postgres.Run(
		context.Background(),
		"postgres:latest",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, "", fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, "", fmt.Errorf("failed to get container mapped port: %w", err)
	}

	connStr := fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable", dbUser, dbPwd, host, port.Port(), dbName)

	return dbContainer.Terminate, connStr, nil
}

func TestMain(m *testing.M) {
	teardown, testDbString, err := mustStartPostgresContainer()
	if err != nil {
		log.Fatalf("could not start postgres container for tests: %v", err)
	}

	// dburl was captured at package init, before the container existed, so
	// point it at the test database directly and reset the singleton.
	dburl = testDbString
	dbInstance = nil

	srv := New()
	if err := runTestMigrations(srv); err != nil {
		log.Fatalf("failed to run migrations on test database: %v", err)
	}

	exitCode := m.Run()

	if teardown != nil {
		if err := teardown(context.Background()); err != nil {
			log.Fatalf("could not teardown postgres container: %v", err)
		}
	}
	os.Exit(exitCode)
}

// runTestMigrations applies the repo migrations; the service's own
// RunMigrations resolves the migrations directory relative to the server's
// working directory, which is wrong under `go test`.
func runTestMigrations(dbService Service) error {
	s, ok := dbService.(*service)
	if !ok {
		return fmt.Errorf("unexpected Service implementation %T", dbService)
	}

	driver, err := migratepg.WithInstance(s.db, &migratepg.Config{})
	if err != nil {
		return err
	}
	migration, err := migrate.NewWithDatabaseInstance("file://../../migrations", "postgres", driver)
	if err != nil {
		return err
	}
	if err := migration.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func TestHealth(t *testing.T) {
	srv := New()

	stats := srv.Health()

	if stats["status"] != "up" {
		t.Fatalf("expected status to be up, got %s (error: %s)", stats["status"], stats["error"])
	}
	if errMsg, ok := stats["error"]; ok {
		t.Fatalf("expected error not to be present, got: %s", errMsg)
	}
}

func TestCreateOrUpdateUser(t *testing.T) {
	srv := New()

	user := &User{
		Provider:   "google",
		ProviderID: "test_provider_id_123",
		Email:      "test@example.com",
		Name:       "Test User",
		AvatarURL:  "http://example.com/avatar.jpg",
	}
	if err := srv.CreateOrUpdateUser(user); err != nil {
		t.Fatalf("CreateOrUpdateUser failed: %v", err)
	}
	if user.ID == 0 {
		t.Error("expected user ID to be populated, got 0")
	}

	// Upsert on the same OAuth identity updates in place.
	user2 := &User{
		Provider:   "google",
		ProviderID: "test_provider_id_123",
		Email:      "renamed@example.com",
		Name:       "Renamed User",
	}
	if err := srv.CreateOrUpdateUser(user2); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if user2.ID != user.ID {
		t.Errorf("upsert created a new row: %d vs %d", user2.ID, user.ID)
	}

	got, err := srv.GetUserByEmail("renamed@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if got.ID != user.ID || got.Name != "Renamed User" {
		t.Errorf("unexpected user: %+v", got)
	}

	byID, err := srv.GetUserByID(user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if byID.Email != "renamed@example.com" {
		t.Errorf("GetUserByID email = %s", byID.Email)
	}
}

func TestUpdateDefaultParaphe(t *testing.T) {
	srv := New()

	user := &User{
		Provider:   "google",
		ProviderID: "paraphe_user",
		Email:      "paraphe@example.com",
		Name:       "Paraphe User",
	}
	if err := srv.CreateOrUpdateUser(user); err != nil {
		t.Fatalf("CreateOrUpdateUser failed: %v", err)
	}

	if err := srv.UpdateDefaultParaphe(user.ID, "P.U."); err != nil {
		t.Fatalf("UpdateDefaultParaphe failed: %v", err)
	}

	got, err := srv.GetUserByID(user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if got.DefaultParaphe != "P.U." {
		t.Errorf("DefaultParaphe = %q, want P.U.", got.DefaultParaphe)
	}

	if err := srv.UpdateDefaultParaphe(9999999, "x"); err == nil {
		t.Error("expected update of unknown user to fail")
	}
}

func TestUpdatePhone(t *testing.T) {
	srv := New()

	user := &User{
		Provider:   "google",
		ProviderID: "phone_user",
		Email:      "phone@example.com",
		Name:       "Phone User",
	}
	if err := srv.CreateOrUpdateUser(user); err != nil {
		t.Fatalf("CreateOrUpdateUser failed: %v", err)
	}

	// A fresh account has no phone and no authenticator, so SMS and TOTP
	// are not usable signing factors yet.
	got, err := srv.GetUserByID(user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if got.Phone != "" || got.AuthenticatorEnrolled {
		t.Errorf("fresh account carries factors: phone=%q authenticator=%v", got.Phone, got.AuthenticatorEnrolled)
	}

	if err := srv.UpdatePhone(user.ID, "+33612345678"); err != nil {
		t.Fatalf("UpdatePhone failed: %v", err)
	}
	got, err = srv.GetUserByID(user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if got.Phone != "+33612345678" {
		t.Errorf("Phone = %q, want +33612345678", got.Phone)
	}

	if err := srv.UpdatePhone(9999999, "+33600000000"); err == nil {
		t.Error("expected update of unknown user to fail")
	}
}

// seedDocument creates a user, a draft document, one signatory, and one
// assigned field, returning the fully loaded document.
func seedDocument(t *testing.T, srv Service) *document.Document {
	t.Helper()
	ctx := context.Background()

	user := &User{
		Provider:   "google",
		ProviderID: "seed_" + uuid.NewString(),
		Email:      uuid.NewString() + "@example.com",
		Name:       "Seed User",
	}
	if err := srv.CreateOrUpdateUser(user); err != nil {
		t.Fatalf("CreateOrUpdateUser failed: %v", err)
	}

	doc := &document.Document{
		Name:      "contract.pdf",
		FileKey:   fmt.Sprintf("documents/%d/contract.pdf", user.ID),
		FileHash:  "4ec96408d3b67797897bff2de4e97c16b2dc42e1c25e0ad5c58d01cfc4d55073",
		CreatedBy: user.ID,
	}
	if err := srv.CreateDocument(doc); err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	sig := &document.Signatory{
		DocumentID: doc.ID,
		Name:       "Alice Martin",
		Email:      "alice@example.com",
		Color:      "#2563eb",
		Status:     document.SignatoryPreparing,
	}
	if err := srv.CreateSignatory(ctx, sig); err != nil {
		t.Fatalf("CreateSignatory failed: %v", err)
	}

	field := &document.SignatureField{
		DocumentID:  doc.ID,
		SignatoryID: &sig.ID,
		Kind:        document.KindSignature,
		X:           100, Y: 200, Width: 120, Height: 60,
		Page: 1,
		Tier: compliance.TierSimple,
	}
	if err := srv.CreateField(ctx, field); err != nil {
		t.Fatalf("CreateField failed: %v", err)
	}

	loaded, err := srv.GetDocumentByID(doc.ID)
	if err != nil {
		t.Fatalf("GetDocumentByID failed: %v", err)
	}
	return loaded
}

func TestDocumentRoundTrip(t *testing.T) {
	srv := New()

	doc := seedDocument(t, srv)

	if doc.Status != document.StatusDraft {
		t.Errorf("status = %s, want draft", doc.Status)
	}
	if doc.FileHash != "4ec96408d3b67797897bff2de4e97c16b2dc42e1c25e0ad5c58d01cfc4d55073" {
		t.Errorf("file hash round trip lost: %q", doc.FileHash)
	}
	if len(doc.Signatories) != 1 || doc.Signatories[0].Email != "alice@example.com" {
		t.Fatalf("signatories = %+v", doc.Signatories)
	}
	if len(doc.Fields) != 1 {
		t.Fatalf("fields = %+v", doc.Fields)
	}
	f := doc.Fields[0]
	if f.X != 100 || f.Y != 200 || f.Page != 1 || f.Tier != compliance.TierSimple {
		t.Errorf("field round trip lost data: %+v", f)
	}
	if f.SignatoryID == nil || *f.SignatoryID != doc.Signatories[0].ID {
		t.Error("field assignment lost")
	}

	docs, err := srv.GetUserDocuments(doc.CreatedBy)
	if err != nil {
		t.Fatalf("GetUserDocuments failed: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != doc.ID {
		t.Errorf("GetUserDocuments = %+v", docs)
	}
	if docs[0].FileHash != doc.FileHash {
		t.Errorf("listing dropped the file hash: %q", docs[0].FileHash)
	}
}

func TestUpdateFieldPartial(t *testing.T) {
	srv := New()
	ctx := context.Background()

	doc := seedDocument(t, srv)
	fieldID := doc.Fields[0].ID

	x, y := 240.0, 480.0
	tier := compliance.TierSES
	if err := srv.UpdateField(ctx, fieldID, document.FieldUpdate{X: &x, Y: &y, Tier: &tier}); err != nil {
		t.Fatalf("UpdateField failed: %v", err)
	}

	got, err := srv.GetDocumentByID(doc.ID)
	if err != nil {
		t.Fatalf("GetDocumentByID failed: %v", err)
	}
	f := got.FieldByID(fieldID)
	if f.X != 240 || f.Y != 480 || f.Tier != compliance.TierSES {
		t.Errorf("update not applied: %+v", f)
	}
	if f.Width != 120 || f.Height != 60 || f.Page != 1 {
		t.Errorf("untouched columns changed: %+v", f)
	}

	if err := srv.UpdateField(ctx, uuid.New(), document.FieldUpdate{X: &x}); err == nil {
		t.Error("expected update of unknown field to fail")
	}
}

func TestDeleteSignatoryUnassignsFields(t *testing.T) {
	srv := New()
	ctx := context.Background()

	doc := seedDocument(t, srv)
	sigID := doc.Signatories[0].ID
	fieldID := doc.Fields[0].ID

	if err := srv.DeleteSignatory(ctx, sigID); err != nil {
		t.Fatalf("DeleteSignatory failed: %v", err)
	}

	got, err := srv.GetDocumentByID(doc.ID)
	if err != nil {
		t.Fatalf("GetDocumentByID failed: %v", err)
	}
	if len(got.Signatories) != 0 {
		t.Errorf("signatories = %+v, want none", got.Signatories)
	}
	f := got.FieldByID(fieldID)
	if f == nil {
		t.Fatal("field was deleted along with its signatory")
	}
	if f.SignatoryID != nil {
		t.Error("field still assigned to a deleted signatory")
	}
}

func TestWithDocumentPersistsTransition(t *testing.T) {
	srv := New()
	ctx := context.Background()

	doc := seedDocument(t, srv)
	sigID := doc.Signatories[0].ID
	fieldID := doc.Fields[0].ID

	err := srv.WithDocument(ctx, doc.ID, func(d *document.Document) error {
		d.Status = document.StatusSent
		d.SignatoryByID(sigID).Status = document.SignatoryPending
		d.Events = append(d.Events, document.Event{
			DocumentID: d.ID,
			Type:       document.EventSent,
			ActorName:  "Seed User",
			CreatedAt:  time.Now(),
		})
		return nil
	})
	if err != nil {
		t.Fatalf("WithDocument failed: %v", err)
	}

	signedAt := time.Now()
	record := &compliance.Record{Tier: compliance.TierSimple, Level: "eIDAS Simple", LegalValue: "Basic", CompletedAt: signedAt}
	err = srv.WithDocument(ctx, doc.ID, func(d *document.Document) error {
		f := d.FieldByID(fieldID)
		f.Value = "Alice Martin"
		f.Compliance = record
		f.SignedAt = &signedAt
		d.SignatoryByID(sigID).Status = document.SignatorySigned
		d.Status = document.StatusCompleted
		d.Events = append(d.Events, document.Event{
			DocumentID: d.ID,
			Type:       document.EventCompleted,
			ActorName:  "System",
			CreatedAt:  time.Now(),
		})
		return nil
	})
	if err != nil {
		t.Fatalf("WithDocument failed: %v", err)
	}

	got, err := srv.GetDocumentByID(doc.ID)
	if err != nil {
		t.Fatalf("GetDocumentByID failed: %v", err)
	}
	if got.Status != document.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.SignatoryByID(sigID).Status != document.SignatorySigned {
		t.Error("signatory status not persisted")
	}
	f := got.FieldByID(fieldID)
	if f.Value != "Alice Martin" || f.SignedAt == nil {
		t.Errorf("signed field not persisted: %+v", f)
	}
	if f.Compliance == nil || f.Compliance.Tier != compliance.TierSimple {
		t.Errorf("compliance record not persisted: %+v", f.Compliance)
	}
	if len(got.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(got.Events))
	}
	for _, e := range got.Events {
		if e.ID == uuid.Nil {
			t.Error("persisted event has a nil id")
		}
	}
}

func TestWithDocumentRollsBackOnError(t *testing.T) {
	srv := New()
	ctx := context.Background()

	doc := seedDocument(t, srv)

	wantErr := fmt.Errorf("caller says no")
	err := srv.WithDocument(ctx, doc.ID, func(d *document.Document) error {
		d.Status = document.StatusSent
		d.Events = append(d.Events, document.Event{
			DocumentID: d.ID,
			Type:       document.EventSent,
			ActorName:  "Seed User",
			CreatedAt:  time.Now(),
		})
		return wantErr
	})
	if err == nil {
		t.Fatal("expected the callback error to surface")
	}

	got, err := srv.GetDocumentByID(doc.ID)
	if err != nil {
		t.Fatalf("GetDocumentByID failed: %v", err)
	}
	if got.Status != document.StatusDraft {
		t.Errorf("status = %s, want draft after rollback", got.Status)
	}
	if len(got.Events) != 0 {
		t.Errorf("events = %d, want 0 after rollback", len(got.Events))
	}
}
