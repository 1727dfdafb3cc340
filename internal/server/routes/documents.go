package routes

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"signflow/internal/compliance"
	"signflow/internal/database"
	"signflow/internal/document"
	"signflow/internal/geometry"
	"signflow/internal/registry"
)

type DocumentRoutes struct {
	server ServerInterface
}

func NewDocumentRoutes(server ServerInterface) *DocumentRoutes {
	return &DocumentRoutes{server: server}
}

func (dr *DocumentRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(dr.server)

	r.POST("/documents", middleware.AuthMiddleware(), dr.createDocumentHandler)
	r.GET("/documents", middleware.AuthMiddleware(), dr.listDocumentsHandler)

	docs := r.Group("/documents/:documentID")
	docs.Use(middleware.AuthMiddleware())
	docs.Use(middleware.DocumentMiddleware())
	{
		docs.GET("", dr.getDocumentHandler)
		docs.GET("/file", dr.downloadDocumentHandler)
		docs.GET("/events", dr.getEventsHandler)
		docs.POST("/signatories", dr.addSignatoryHandler)
		docs.DELETE("/signatories/:signatoryID", dr.removeSignatoryHandler)
		docs.POST("/fields", dr.addFieldHandler)
		docs.PATCH("/fields/:fieldID", dr.updateFieldHandler)
		docs.DELETE("/fields/:fieldID", dr.removeFieldHandler)
		docs.POST("/send", dr.sendHandler)
		docs.POST("/remind", dr.remindHandler)
		docs.POST("/cancel", dr.cancelHandler)
	}
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func writeDomainError(c *gin.Context, err error) {
	var validationErr *document.ValidationError
	var authErr *document.AuthorizationError
	var stateErr *document.StateError
	var persistErr *document.PersistenceError
	var factorsErr *compliance.InsufficientFactorsError
	var proofErr *compliance.ProofValidationError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &authErr):
		c.JSON(http.StatusForbidden, gin.H{"error": authErr.Error()})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{"error": stateErr.Error()})
	case errors.As(err, &factorsErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": factorsErr.Error()})
	case errors.As(err, &proofErr):
		c.JSON(http.StatusUnauthorized, gin.H{"error": proofErr.Error()})
	case errors.Is(err, compliance.ErrTierUnavailable):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	case errors.As(err, &persistErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": persistErr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// createDocumentHandler uploads a PDF and creates a draft document.
func (dr *DocumentRoutes) createDocumentHandler(c *gin.Context) {
	user := c.MustGet("user").(*database.User)

	err := c.Request.ParseMultipartForm(32 << 20) // 32 MB max
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse form data"})
		return
	}

	name := c.PostForm("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Document name is required"})
		return
	}
	if len(name) > 255 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Document name must be 255 characters or less"})
		return
	}

	file, header, err := c.Request.FormFile("pdf")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "PDF file is required"})
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF files are allowed"})
		return
	}

	documentID := uuid.New()
	s3Service := dr.server.GetS3Service()
	uploadResult, err := s3Service.UploadDocument(c.Request.Context(), file, header, user.ID, documentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload PDF"})
		return
	}

	doc := &document.Document{
		ID:        documentID,
		Name:      name,
		FileKey:   uploadResult.Key,
		FileHash:  uploadResult.FileHash,
		Status:    document.StatusDraft,
		CreatedBy: user.ID,
	}

	db := dr.server.GetDB()
	if err := db.CreateDocument(doc); err != nil {
		// Clean up the uploaded file if database creation fails
		s3Service.DeleteDocument(c.Request.Context(), uploadResult.Key)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create document"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"document": doc, "file_hash": uploadResult.FileHash})
}

func (dr *DocumentRoutes) listDocumentsHandler(c *gin.Context) {
	user := c.MustGet("user").(*database.User)

	docs, err := dr.server.GetDB().GetUserDocuments(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch documents"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "total": len(docs)})
}

func (dr *DocumentRoutes) getDocumentHandler(c *gin.Context) {
	doc := c.MustGet("document").(*document.Document)
	c.JSON(http.StatusOK, gin.H{"document": doc})
}

// downloadDocumentHandler streams the decrypted PDF original to the
// creator's viewer. Objects are encrypted before upload, so the ciphertext
// in the bucket is useless to a browser; the decrypted bytes are served
// from here instead.
func (dr *DocumentRoutes) downloadDocumentHandler(c *gin.Context) {
	doc := c.MustGet("document").(*document.Document)
	s3Service := dr.server.GetS3Service()

	exists, err := s3Service.DocumentExists(c.Request.Context(), doc.FileKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check document file"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document file not found"})
		return
	}

	result, err := s3Service.DownloadDocument(c.Request.Context(), doc.FileKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch document file"})
		return
	}
	if doc.FileHash != "" {
		if err := s3Service.ValidateFileIntegrity(result.Data, doc.FileHash); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Document file failed integrity check"})
			return
		}
	}

	c.Header("Content-Disposition", `inline; filename="`+doc.Name+`"`)
	c.Data(http.StatusOK, "application/pdf", result.Data)
}

func (dr *DocumentRoutes) getEventsHandler(c *gin.Context) {
	doc := c.MustGet("document").(*document.Document)

	events, err := dr.server.GetDB().GetDocumentEvents(doc.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": len(events)})
}

func (dr *DocumentRoutes) addSignatoryHandler(c *gin.Context) {
	doc := c.MustGet("document").(*document.Document)

	if doc.Status != document.StatusDraft && doc.Status != document.StatusSent {
		c.JSON(http.StatusConflict, gin.H{"error": "Signatories can only be added while the document is draft or sent"})
		return
	}

	var req struct {
		Name  string `json:"name" binding:"required"`
		Email string `json:"email" binding:"required,email"`
		Role  string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reg := registry.New(doc, dr.server.GetDB())
	signatory, err := reg.AddSignatory(c.Request.Context(), req.Name, req.Email, req.Role)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	// A signatory added after send skipped the send-time invite fan-out, so
	// their invite goes out now.
	if doc.Status == document.StatusSent {
		link, err := dr.server.GetTokens().SigningLink(doc.ID, signatory.ID, signatory.Email)
		if err != nil {
			log.Printf("failed to build signing link for %s: %v", signatory.Email, err)
		} else if err := dr.server.GetNotifier().SendSigningInvite(c.Request.Context(), signatory.Email, link); err != nil {
			log.Printf("failed to send signing invite to %s: %v", signatory.Email, err)
		}
	}

	c.JSON(http.StatusCreated, gin.H{"signatory": signatory})
}

func (dr *DocumentRoutes) removeSignatoryHandler(c *gin.Context) {
	doc := c.MustGet("document").(*document.Document)

	signatoryID, err := uuid.Parse(c.Param("signatoryID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signatory ID"})
		return
	}

	if s := doc.SignatoryByID(signatoryID); s != nil && s.Status == document.SignatorySigned {
		c.JSON(http.StatusConflict, gin.H{"error": "Signed signatories cannot be removed"})
		return
	}

	reg := registry.New(doc, dr.server.GetDB())
	if err := reg.RemoveSignatory(c.Request.Context(), signatoryID); err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Signatory removed, their fields kept as placeholders"})
}

func (dr *DocumentRoutes) addFieldHandler(c *gin.Context) {
	doc := c.MustGet("document").(*document.Document)

	var req struct {
		X           float64    `json:"x"`
		Y           float64    `json:"y"`
		Width       float64    `json:"width" binding:"required"`
		Height      float64    `json:"height" binding:"required"`
		Page        int        `json:"page" binding:"required"`
		Kind        string     `json:"kind" binding:"required"`
		SignatoryID *uuid.UUID `json:"signatory_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reg := registry.New(doc, dr.server.GetDB())
	field, err := reg.AddField(
		c.Request.Context(),
		geometry.Point{X: req.X, Y: req.Y},
		geometry.Size{Width: req.Width, Height: req.Height},
		req.Page,
		document.FieldKind(req.Kind),
		req.SignatoryID,
	)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"field": field})
}

// updateFieldHandler is the drag-commit path: the viewer sends the final
// stored coordinates after a gesture clears the deadzone.
func (dr *DocumentRoutes) updateFieldHandler(c *gin.Context) {
	doc := c.MustGet("document").(*document.Document)

	fieldID, err := uuid.Parse(c.Param("fieldID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid field ID"})
		return
	}

	var update document.FieldUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if update.Tier != nil && !compliance.ValidTier(*update.Tier) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature tier"})
		return
	}

	reg := registry.New(doc, dr.server.GetDB())
	if err := reg.UpdateField(c.Request.Context(), fieldID, update); err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"field": doc.FieldByID(fieldID)})
}

func (dr *DocumentRoutes) removeFieldHandler(c *gin.Context) {
	user := c.MustGet("user").(*database.User)
	doc := c.MustGet("document").(*document.Document)

	fieldID, err := uuid.Parse(c.Param("fieldID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid field ID"})
		return
	}

	if !dr.server.GetWorkflow().CanDeleteField(doc, user.ID) {
		c.JSON(http.StatusConflict, gin.H{"error": "Fields can only be deleted by the creator while the document is draft"})
		return
	}

	reg := registry.New(doc, dr.server.GetDB())
	if err := reg.RemoveField(c.Request.Context(), fieldID); err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Field removed"})
}

func (dr *DocumentRoutes) sendHandler(c *gin.Context) {
	user := c.MustGet("user").(*database.User)
	doc := c.MustGet("document").(*document.Document)

	if err := dr.server.GetWorkflow().Send(c.Request.Context(), doc.ID, user.ID, user.Name); err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document sent to signatories"})
}

func (dr *DocumentRoutes) remindHandler(c *gin.Context) {
	user := c.MustGet("user").(*database.User)
	doc := c.MustGet("document").(*document.Document)

	if err := dr.server.GetWorkflow().Remind(c.Request.Context(), doc.ID, user.ID, user.Name); err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reminders sent to pending signatories"})
}

func (dr *DocumentRoutes) cancelHandler(c *gin.Context) {
	user := c.MustGet("user").(*database.User)
	doc := c.MustGet("document").(*document.Document)

	if err := dr.server.GetWorkflow().Cancel(c.Request.Context(), doc.ID, user.ID, user.Name); err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document cancelled"})
}
