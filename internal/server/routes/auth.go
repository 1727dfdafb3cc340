package routes

import (
	"net/http"
	"os"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/markbates/goth/gothic"

	"signflow/internal/database"
)

type AuthRoutes struct {
	server ServerInterface
}

func NewAuthRoutes(server ServerInterface) *AuthRoutes {
	return &AuthRoutes{server: server}
}

func (ar *AuthRoutes) RegisterRoutes(r *gin.Engine) {
	// OAuth routes
	r.GET("/auth/:provider", ar.authHandler)
	r.GET("/auth/:provider/callback", ar.authCallbackHandler)
	r.GET("/logout", ar.logoutHandler)

	middleware := NewMiddleware(ar.server)
	r.GET("/user", middleware.AuthMiddleware(), ar.userHandler)
	r.PATCH("/user", middleware.AuthMiddleware(), ar.updateUserHandler)
}

func (ar *AuthRoutes) authHandler(c *gin.Context) {
	provider := c.Param("provider")

	// Create a new request with the correct path for gothic
	req := c.Request.Clone(c.Request.Context())
	req.URL.Path = "/auth/" + provider

	// Add the provider to the URL query params (gothic expects this)
	q := req.URL.Query()
	q.Add("provider", provider)
	req.URL.RawQuery = q.Encode()

	gothic.BeginAuthHandler(c.Writer, req)
}

func (ar *AuthRoutes) authCallbackHandler(c *gin.Context) {
	provider := c.Param("provider")

	req := c.Request.Clone(c.Request.Context())
	req.URL.Path = "/auth/" + provider + "/callback"

	q := req.URL.Query()
	q.Add("provider", provider)
	req.URL.RawQuery = q.Encode()

	gothUser, err := gothic.CompleteUserAuth(c.Writer, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Create or update user in database
	user := &database.User{
		Provider:   gothUser.Provider,
		ProviderID: gothUser.UserID,
		Email:      gothUser.Email,
		Name:       gothUser.Name,
		AvatarURL:  gothUser.AvatarURL,
	}

	err = ar.server.GetDB().CreateOrUpdateUser(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save user"})
		return
	}

	// Store user ID in session
	session := sessions.Default(c)
	session.Set("user_id", user.ID)
	session.Set("email", user.Email)
	session.Save()

	redirect := os.Getenv("APP_BASE_URL")
	if redirect == "" {
		redirect = "http://localhost:3000"
	}
	c.Redirect(http.StatusTemporaryRedirect, redirect+"/documents")
}

func (ar *AuthRoutes) logoutHandler(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Save()

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (ar *AuthRoutes) userHandler(c *gin.Context) {
	user := c.MustGet("user").(*database.User)
	c.JSON(http.StatusOK, gin.H{
		"user_id":         user.ID,
		"email":           user.Email,
		"name":            user.Name,
		"avatar_url":      user.AvatarURL,
		"default_paraphe": user.DefaultParaphe,
		"phone":           user.Phone,
	})
}

// updateUserHandler saves profile settings: the default paraphe mark and
// the phone number that unlocks SMS as a signing factor. Absent members are
// left untouched.
func (ar *AuthRoutes) updateUserHandler(c *gin.Context) {
	user := c.MustGet("user").(*database.User)

	var req struct {
		DefaultParaphe *string `json:"default_paraphe"`
		Phone          *string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := ar.server.GetDB()
	if req.DefaultParaphe != nil {
		if len(*req.DefaultParaphe) > 16 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Paraphe must be 16 characters or less"})
			return
		}
		if err := db.UpdateDefaultParaphe(user.ID, *req.DefaultParaphe); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
		user.DefaultParaphe = *req.DefaultParaphe
	}
	if req.Phone != nil {
		if len(*req.Phone) > 32 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Phone must be 32 characters or less"})
			return
		}
		if err := db.UpdatePhone(user.ID, *req.Phone); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
		user.Phone = *req.Phone
	}

	c.JSON(http.StatusOK, gin.H{
		"default_paraphe": user.DefaultParaphe,
		"phone":           user.Phone,
	})
}
