package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"studyvault/internal/config"
	"studyvault/internal/domain"
	"studyvault/internal/logger"
	"studyvault/internal/services"
	"studyvault/internal/storage"
)

type API struct {
	cfg   config.Config
	log   *logger.Logger
	store *storage.Store
	auth  *services.AuthService
	idp   services.IdentityProvider
	pdf   *services.PDFService
	share *services.ShareService
}

func NewAPI(cfg config.Config, log *logger.Logger, store *storage.Store, auth *services.AuthService, idp services.IdentityProvider, pdf *services.PDFService, share *services.ShareService) *API {
	return &API{cfg: cfg, log: log, store: store, auth: auth, idp: idp, pdf: pdf, share: share}
}

func registerRoutes(r *gin.Engine, api *API) {
	requireAccount := RequireAccount(api.idp, api.cfg.RequireAuth)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", api.handleHealth)

		authGroup := apiGroup.Group("/auth")
		authGroup.POST("/signup", api.handleSignUp)
		authGroup.POST("/login", api.handleLogin)
		authGroup.POST("/refresh", api.handleRefresh)
		authGroup.GET("/verify", api.handleVerifyEmail)
		authGroup.POST("/forgot", api.handleForgotPassword)
		authGroup.POST("/reset", api.handleResetPassword)

		apiGroup.GET("/subjects", api.handleListSubjects)
		apiGroup.POST("/subjects", requireAccount, api.handleCreateSubject)
		apiGroup.DELETE("/subjects/:subject", requireAccount, api.handleDeleteSubject)
		apiGroup.GET("/subjects/:subject/catalog.pdf", api.handleSubjectCatalog)

		apiGroup.GET("/files", api.handleListFiles)
		apiGroup.POST("/files", requireAccount, api.handleUploadFile)
		apiGroup.PATCH("/files", requireAccount, api.handleRenameFile)
		apiGroup.DELETE("/files", requireAccount, api.handleDeleteFile)
		apiGroup.GET("/files/download", api.handleDownloadFile)
		apiGroup.POST("/files/share", requireAccount, api.handleShareFile)

		apiGroup.GET("/records/:category", api.handleListRecords)
		apiGroup.GET("/storage/sync", api.handleStorageSync)
	}

	r.GET("/shared/:key", api.handleServeShared)
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type credentialsPayload struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (a *API) handleSignUp(c *gin.Context) {
	var payload credentialsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	acct, err := a.auth.SignUp(c.Request.Context(), payload.Email, payload.Password)
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"account": acct})
}

func (a *API) handleLogin(c *gin.Context) {
	var payload credentialsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	sess, err := a.auth.Login(c.Request.Context(), payload.Email, payload.Password)
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (a *API) handleRefresh(c *gin.Context) {
	var payload struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	sess, err := a.auth.Refresh(c.Request.Context(), payload.RefreshToken)
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (a *API) handleVerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		respondMessage(c, http.StatusBadRequest, "missing token")
		return
	}

	if err := a.auth.VerifyEmail(c.Request.Context(), token); err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"verified": true})
}

func (a *API) handleForgotPassword(c *gin.Context) {
	var payload struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	if err := a.auth.RequestPasswordReset(c.Request.Context(), payload.Email); err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}

func (a *API) handleResetPassword(c *gin.Context) {
	var payload struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	if err := a.auth.ResetPassword(c.Request.Context(), payload.Token, payload.Password); err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) handleListSubjects(c *gin.Context) {
	c.JSON(http.StatusOK, a.store.Subjects())
}

func (a *API) handleCreateSubject(c *gin.Context) {
	var payload struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	subject, created, err := a.store.CreateSubject(payload.Name)
	if err != nil {
		a.fail(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, subject)
}

func (a *API) handleDeleteSubject(c *gin.Context) {
	if err := a.store.DeleteSubject(c.Param("subject")); err != nil {
		a.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) handleSubjectCatalog(c *gin.Context) {
	name := c.Param("subject")
	var subject domain.Subject
	found := false
	for _, s := range a.store.Subjects() {
		if s.Name == name {
			subject, found = s, true
			break
		}
	}
	if !found {
		respondMessage(c, http.StatusNotFound, "subject not found")
		return
	}

	var buf bytes.Buffer
	if err := a.pdf.GenerateCatalog(subject, a.store.RecordsBySubject(name), &buf); err != nil {
		a.fail(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", name+"-catalog.pdf"))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

func (a *API) handleListFiles(c *gin.Context) {
	var ref domain.FileRef
	if err := c.ShouldBindQuery(&ref); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	files, err := a.store.List(ref.Subject, ref.Category, ref.Unit)
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, files)
}

func (a *API) handleUploadFile(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		if statusFor(err) == http.StatusRequestEntityTooLarge {
			respondMessage(c, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		respondMessage(c, http.StatusBadRequest, "missing file")
		return
	}

	upload, err := fileHeader.Open()
	if err != nil {
		a.log.Error("open upload failed", "error", err)
		respondMessage(c, http.StatusInternalServerError, "unable to read uploaded file")
		return
	}
	defer upload.Close()

	in := storage.UploadInput{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Subject:     c.PostForm("subject"),
		Category:    c.PostForm("category"),
		Unit:        c.PostForm("unit"),
		FileName:    fileHeader.Filename,
		Content:     upload,
	}
	if acct, ok := accountFrom(c); ok {
		in.Owner = acct.ID
	}

	rec, err := a.store.Upload(c.Request.Context(), in)
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"key": domain.KeyOf(rec), "file": rec})
}

func (a *API) handleRenameFile(c *gin.Context) {
	var payload struct {
		domain.FileRef
		Title       string `json:"title" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	entry, err := a.store.Rename(payload.FileRef, payload.Title, payload.Description)
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (a *API) handleDeleteFile(c *gin.Context) {
	var ref domain.FileRef
	if err := c.ShouldBindQuery(&ref); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	if _, err := a.store.Delete(ref); err != nil {
		a.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) handleDownloadFile(c *gin.Context) {
	var ref domain.FileRef
	if err := c.ShouldBindQuery(&ref); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	a.serveFile(c, ref)
}

func (a *API) handleShareFile(c *gin.Context) {
	var ref domain.FileRef
	if err := c.ShouldBindJSON(&ref); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	if _, err := a.store.Lookup(ref); err != nil {
		a.fail(c, err)
		return
	}

	url, expiresAt, err := a.share.Generate(ref)
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url, "expiresAt": expiresAt.UTC()})
}

func (a *API) handleListRecords(c *gin.Context) {
	category, err := domain.ParseCategory(c.Param("category"))
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, a.store.Records(category))
}

func (a *API) handleStorageSync(c *gin.Context) {
	subjects, err := a.store.Sync()
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subjects": subjects})
}

func (a *API) handleServeShared(c *gin.Context) {
	key := c.Param("key")
	expiresParam := c.Query("exp")
	signature := c.Query("sig")

	if expiresParam == "" || signature == "" {
		respondMessage(c, http.StatusBadRequest, "missing signature")
		return
	}

	expires, err := strconv.ParseInt(expiresParam, 10, 64)
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid expiration")
		return
	}

	if expires < time.Now().Unix() {
		respondMessage(c, http.StatusGone, "link expired")
		return
	}

	ref, err := a.share.Validate(key, expires, signature)
	if err != nil {
		respondMessage(c, http.StatusForbidden, "invalid signature")
		return
	}

	a.serveFile(c, ref)
}

// serveFile streams a stored file under its original upload name.
func (a *API) serveFile(c *gin.Context, ref domain.FileRef) {
	path, err := a.store.Lookup(ref)
	if err != nil {
		a.fail(c, err)
		return
	}

	name := filepath.Base(path)
	if entry, ok := a.store.Entry(ref.Key()); ok && entry.OriginalFileName != "" {
		name = entry.OriginalFileName
	}
	c.FileAttachment(path, name)
}

// fail maps err to a status and writes the error envelope. Server-side
// failures are logged, client errors are not.
func (a *API) fail(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	respondError(c, status, err)
}

func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, storage.ErrTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidCategory),
		errors.Is(err, domain.ErrMissingUnit),
		errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, status int, err error) {
	respondMessage(c, status, err.Error())
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
