package routes

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"signflow/internal/compliance"
	"signflow/internal/document"
	"signflow/internal/token"
)

// attemptKey scopes an open attempt to one field. A signatory working
// through several fields of different tiers gets a separate attempt per
// field; factors validated for one never carry over to another.
type attemptKey struct {
	signatory uuid.UUID
	field     uuid.UUID
}

type openAttempt struct {
	attempt *compliance.Attempt
	started time.Time
}

// attemptTTL bounds how long an abandoned attempt lingers before lazy
// eviction reclaims it.
const attemptTTL = 30 * time.Minute

type SigningRoutes struct {
	server ServerInterface

	// Open attempts, scoped to this process. A failed or completed attempt
	// is removed; the next request starts collection over.
	mu       sync.Mutex
	attempts map[attemptKey]openAttempt
}

func NewSigningRoutes(server ServerInterface) *SigningRoutes {
	return &SigningRoutes{
		server:   server,
		attempts: make(map[attemptKey]openAttempt),
	}
}

func (sr *SigningRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(sr.server)

	sign := r.Group("/sign/:token")
	sign.Use(middleware.SigningTokenMiddleware())
	{
		sign.GET("", sr.getSessionHandler)
		sign.GET("/file", sr.fileHandler)
		sign.POST("/challenge", sr.challengeHandler)
		sign.POST("", sr.submitHandler)
		sign.POST("/refuse", sr.refuseHandler)
	}
}

// resolve loads the document and signatory the token points at.
func (sr *SigningRoutes) resolve(c *gin.Context) (*document.Document, *document.Signatory, bool) {
	claims := c.MustGet("signing_claims").(*token.SigningClaims)

	documentID, err := uuid.Parse(claims.DocumentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed signing link"})
		return nil, nil, false
	}
	signatoryID, err := uuid.Parse(claims.SignatoryID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed signing link"})
		return nil, nil, false
	}

	doc, err := sr.server.GetDB().GetDocumentByID(documentID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return nil, nil, false
	}

	signatory := doc.SignatoryByID(signatoryID)
	if signatory == nil || signatory.Email != claims.Email {
		c.JSON(http.StatusForbidden, gin.H{"error": "Signing link does not match this document"})
		return nil, nil, false
	}

	return doc, signatory, true
}

// getSessionHandler returns everything the signing UI needs: the document,
// the signatory's own fields, and the tier requirements per field.
func (sr *SigningRoutes) getSessionHandler(c *gin.Context) {
	doc, signatory, ok := sr.resolve(c)
	if !ok {
		return
	}

	// Paraphe fields prefill from the linked account's saved mark.
	defaultParaphe := ""
	if signatory.UserID != nil {
		if account, err := sr.server.GetDB().GetUserByID(*signatory.UserID); err == nil {
			defaultParaphe = account.DefaultParaphe
		}
	}

	var fields []gin.H
	for i := range doc.Fields {
		f := &doc.Fields[i]
		if f.SignatoryID == nil || *f.SignatoryID != signatory.ID {
			continue
		}
		policy, _ := compliance.PolicyFor(f.Tier)
		entry := gin.H{
			"field":            f,
			"tier":             f.Tier,
			"level":            policy.Level,
			"legal_value":      policy.LegalValue,
			"required_factors": policy.RequiredFactors,
			"allowed_methods":  policy.AllowedMethods,
		}
		if f.Kind == document.KindParaphe && defaultParaphe != "" {
			entry["suggested_value"] = defaultParaphe
		}
		fields = append(fields, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"document": gin.H{
			"id":       doc.ID,
			"name":     doc.Name,
			"status":   doc.Status,
			"file_url": "/sign/" + c.Param("token") + "/file",
		},
		"signatory": signatory,
		"fields":    fields,
	})
}

// fileHandler streams the decrypted PDF to the signer so the signing UI can
// render the pages the fields sit on.
func (sr *SigningRoutes) fileHandler(c *gin.Context) {
	doc, _, ok := sr.resolve(c)
	if !ok {
		return
	}

	s3Service := sr.server.GetS3Service()
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

func (sr *SigningRoutes) signer(s *document.Signatory) compliance.Signer {
	// Email is always configured; additional factors come from the
	// signatory's platform account when one is linked. SMS counts only with
	// a phone on file and the authenticator only once enrolled, so a
	// two-factor tier always means two independent channels.
	configured := []compliance.Method{compliance.MethodEmail}
	phone := ""
	if s.UserID != nil {
		if account, err := sr.server.GetDB().GetUserByID(*s.UserID); err == nil {
			if account.Phone != "" {
				configured = append(configured, compliance.MethodSMS)
				phone = account.Phone
			}
			if account.AuthenticatorEnrolled {
				configured = append(configured, compliance.MethodAuthenticator)
			}
		}
	}
	return compliance.Signer{Email: s.Email, Phone: phone, Configured: configured}
}

func (sr *SigningRoutes) attemptFor(c *gin.Context, field *document.SignatureField, s *document.Signatory) (*compliance.Attempt, bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	now := time.Now()
	for k, oa := range sr.attempts {
		if now.Sub(oa.started) > attemptTTL {
			delete(sr.attempts, k)
		}
	}

	key := attemptKey{signatory: s.ID, field: field.ID}
	if oa, ok := sr.attempts[key]; ok {
		return oa.attempt, true
	}
	attempt, err := sr.server.GetEngine().Begin(field.Tier, sr.signer(s))
	if err != nil {
		writeDomainError(c, err)
		return nil, false
	}
	sr.attempts[key] = openAttempt{attempt: attempt, started: now}
	return attempt, true
}

func (sr *SigningRoutes) dropAttempt(signatoryID, fieldID uuid.UUID) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	delete(sr.attempts, attemptKey{signatory: signatoryID, field: fieldID})
}

// challengeHandler issues a 2FA code for one method of the field's tier.
func (sr *SigningRoutes) challengeHandler(c *gin.Context) {
	doc, signatory, ok := sr.resolve(c)
	if !ok {
		return
	}

	var req struct {
		FieldID uuid.UUID `json:"field_id" binding:"required"`
		Method  string    `json:"method" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	field := doc.FieldByID(req.FieldID)
	if field == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Field not found"})
		return
	}

	attempt, ok := sr.attemptFor(c, field, signatory)
	if !ok {
		return
	}

	// Only email has a delivery transport today.
	method := compliance.Method(req.Method)
	if method != compliance.MethodEmail {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "No delivery channel for this method yet"})
		return
	}

	// A live code stays valid for its whole window; reissuing would only
	// invalidate what the signer already has in their inbox.
	recipient := sr.signer(signatory).Recipient(method)
	if since := sr.server.GetCodes().PendingSince(method, recipient); !since.IsZero() {
		remaining := compliance.CodeTTL - time.Since(since)
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":    "A code was already sent and is still valid",
			"retry_in": int(remaining.Seconds()),
		})
		return
	}

	code, err := sr.server.GetEngine().Challenge(c.Request.Context(), attempt, method)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	if err := sr.server.GetNotifier().SendChallengeCode(c.Request.Context(), signatory.Email, code); err != nil {
		log.Printf("failed to send challenge code to %s: %v", signatory.Email, err)
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Verification code sent",
		"expires_in": int(compliance.CodeTTL.Seconds()),
	})
}

// submitHandler completes the signature: validates the supplied proofs,
// seals the compliance record, and runs the workflow transition.
func (sr *SigningRoutes) submitHandler(c *gin.Context) {
	doc, signatory, ok := sr.resolve(c)
	if !ok {
		return
	}

	var req struct {
		FieldID uuid.UUID `json:"field_id" binding:"required"`
		Value   string    `json:"value" binding:"required"`
		Proofs  []struct {
			Method string `json:"method"`
			Code   string `json:"code"`
		} `json:"proofs"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	field := doc.FieldByID(req.FieldID)
	if field == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Field not found"})
		return
	}

	attempt, ok := sr.attemptFor(c, field, signatory)
	if !ok {
		return
	}

	engine := sr.server.GetEngine()
	for _, proof := range req.Proofs {
		if err := engine.Submit(c.Request.Context(), attempt, compliance.Method(proof.Method), proof.Code); err != nil {
			// A wrong code keeps the attempt open for retry; an expired
			// window kills it and collection starts over.
			if attempt.Failed() {
				sr.dropAttempt(signatory.ID, field.ID)
			}
			writeDomainError(c, err)
			return
		}
	}

	record, err := engine.Complete(attempt)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	sr.dropAttempt(signatory.ID, field.ID)

	if err := sr.server.GetWorkflow().Sign(c.Request.Context(), doc.ID, signatory.ID, field.ID, req.Value, record); err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Signature recorded",
		"compliance": record,
	})
}

func (sr *SigningRoutes) refuseHandler(c *gin.Context) {
	doc, signatory, ok := sr.resolve(c)
	if !ok {
		return
	}

	if err := sr.server.GetWorkflow().Refuse(c.Request.Context(), doc.ID, signatory.ID); err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Signature refused"})
}
