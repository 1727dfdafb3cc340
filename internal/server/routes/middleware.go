package routes

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"signflow/internal/compliance"
	"signflow/internal/database"
	"signflow/internal/notify"
	"signflow/internal/storage"
	"signflow/internal/token"
	"signflow/internal/workflow"
)

// ServerInterface is what the route groups need from the hosting server.
type ServerInterface interface {
	GetDB() database.Service
	GetS3Service() *storage.S3Service
	GetNotifier() notify.Service
	GetTokens() *token.Manager
	GetEngine() *compliance.Engine
	GetCodes() *compliance.CodeStore
	GetWorkflow() *workflow.Workflow
}

type Middleware struct {
	server ServerInterface
}

func NewMiddleware(server ServerInterface) *Middleware {
	return &Middleware{server: server}
}

func (m *Middleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userIDRaw := session.Get("user_id")

		if userIDRaw == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		userID, ok := userIDRaw.(int)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Invalid session data"})
			return
		}

		db := m.server.GetDB()
		user, err := db.GetUserByID(userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found or database error"})
			return
		}

		c.Set("user", user) // Store user object in context
		c.Next()
	}
}

// DocumentMiddleware loads the document in :documentID and checks the
// authenticated user created it.
func (m *Middleware) DocumentMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, exists := c.Get("user")
		if !exists {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
			return
		}
		userObj := user.(*database.User)

		documentID, err := uuid.Parse(c.Param("documentID"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid document ID"})
			return
		}

		db := m.server.GetDB()
		doc, err := db.GetDocumentByID(documentID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Document not found"})
			return
		}
		if doc.CreatedBy != userObj.ID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied to document"})
			return
		}

		c.Set("document", doc)
		c.Next()
	}
}

// SigningTokenMiddleware resolves the signing-link token in :token into its
// claims. No platform session is required on this path.
func (m *Middleware) SigningTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.server.GetTokens().Validate(c.Param("token"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired signing link"})
			return
		}
		c.Set("signing_claims", claims)
		c.Next()
	}
}
