package license

import (
	"fmt"
	"net/http"

	"license-controlplane/pkg/db/pagination"
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
	rg.GET("/licenses", h.listLicenses)
	rg.POST("/licenses", h.signLicense)
	rg.POST("/licenses/verify", h.verifyLicense)
	rg.POST("/licenses/verify-by-kid", h.verifyLicenseByKid)
	rg.GET("/licenses/:id", h.getLicense)
	rg.GET("/licenses/:id/download", h.downloadLicense)
	rg.DELETE("/licenses/:id", h.deleteLicense)
}

// artifactFields carries the license to verify either as its two fields or
// as the raw contents of a downloaded .dat file.
type artifactFields struct {
	Payload   string `json:"payload" binding:"required_without=License,excluded_with=License"`
	Signature string `json:"signature" binding:"required_without=License,excluded_with=License"`
	License   string `json:"license"`
}

func (f artifactFields) artifact() (Artifact, error) {
	if f.License == "" {
		return Artifact{Payload: f.Payload, Signature: f.Signature}, nil
	}
	return ParseArtifact([]byte(f.License))
}

type verifyRequest struct {
	artifactFields
	PublicKey string `json:"publicKey" binding:"required"`
}

type verifyByKidRequest struct {
	artifactFields
}

func bindError(err error) error {
	return errutil.BadRequest("invalid request body", ErrInvalidRequest, errutil.WithDetails(errutil.Detail{Message: err.Error()}))
}

func (h *Handler) listLicenses(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	res, err := h.svc.List(c.Request.Context(), page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) signLicense(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	issued, err := h.svc.Sign(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, issued)
}

func (h *Handler) verifyLicense(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	a, err := req.artifact()
	if err != nil {
		c.JSON(http.StatusOK, h.svc.rejectArtifact(c.Request.Context(), err))
		return
	}

	res, err := h.svc.VerifyWithPublicKey(c.Request.Context(), a, req.PublicKey)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) verifyLicenseByKid(c *gin.Context) {
	var req verifyByKidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	a, err := req.artifact()
	if err != nil {
		c.JSON(http.StatusOK, h.svc.rejectArtifact(c.Request.Context(), err))
		return
	}
	c.JSON(http.StatusOK, h.svc.Verify(c.Request.Context(), a))
}

func (h *Handler) getLicense(c *gin.Context) {
	detail, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) downloadLicense(c *gin.Context) {
	file, err := h.svc.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, "application/octet-stream", file.Data)
}

func (h *Handler) deleteLicense(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
