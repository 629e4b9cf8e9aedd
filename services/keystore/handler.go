package keystore

import (
	"net/http"

	"license-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/keys", h.listKeys)
	rg.POST("/keys", h.generateKeyPair)
	rg.POST("/keys/import", h.importKeys)
	rg.GET("/keys/:id", h.getKey)
	rg.PATCH("/keys/:id", h.updateKeyNotes)
	rg.DELETE("/keys/:id", h.deleteKey)
	rg.GET("/public-keys/:kid", h.publicKeyByKid)
	rg.GET("/.well-known/jwks.json", h.jwks)
}

type generateKeyRequest struct {
	Kid   string  `json:"kid" binding:"required,max=255"`
	Notes *string `json:"notes"`
}

type updateNotesRequest struct {
	Notes *string `json:"notes"`
}

type importKeysRequest struct {
	Keys []ImportKey `json:"keys" binding:"required,min=1,dive"`
}

func bindError(err error) error {
	return errutil.BadRequest("invalid request body", ErrInvalidRequest, errutil.WithDetails(errutil.Detail{Message: err.Error()}))
}

func (h *Handler) listKeys(c *gin.Context) {
	keys, err := h.svc.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

func (h *Handler) generateKeyPair(c *gin.Context) {
	var req generateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	key, err := h.svc.Generate(c.Request.Context(), req.Kid, req.Notes)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, key)
}

func (h *Handler) importKeys(c *gin.Context) {
	var req importKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	res, err := h.svc.Import(c.Request.Context(), req.Keys)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) getKey(c *gin.Context) {
	key, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, key)
}

func (h *Handler) updateKeyNotes(c *gin.Context) {
	var req updateNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	key, err := h.svc.UpdateNotes(c.Request.Context(), c.Param("id"), req.Notes)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, key)
}

func (h *Handler) deleteKey(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) publicKeyByKid(c *gin.Context) {
	key, err := h.svc.PublicKey(c.Request.Context(), c.Param("kid"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, key)
}

func (h *Handler) jwks(c *gin.Context) {
	set, err := h.svc.JWKS(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.Header("Cache-Control", "public, max-age=300")
	c.JSON(http.StatusOK, set)
}
