package transport

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ds124wfegd/timecapsule/internal/entity"
	"github.com/ds124wfegd/timecapsule/internal/service"

	"github.com/gin-gonic/gin"
)

const mediaField = "media"

type CapsuleHandler struct {
	capsuleService service.CapsuleService
}

func NewCapsuleHandler(capsuleService service.CapsuleService) *CapsuleHandler {
	return &CapsuleHandler{capsuleService: capsuleService}
}

// createCapsuleRequest is the JSON form of a capsule without media.
type createCapsuleRequest struct {
	Title       string          `json:"title" form:"title"`
	Description string          `json:"description" form:"description"`
	Message     string          `json:"message" form:"message"`
	UnlockDate  string          `json:"unlockDate" form:"unlockDate"`
	Recipients  json.RawMessage `json:"recipients" form:"-"`
}

// CreateCapsule accepts multipart/form-data (with files under "media") or JSON.
func (h *CapsuleHandler) CreateCapsule(c *gin.Context) {
	var (
		req        createCapsuleRequest
		recipients []string
		uploads    []entity.MediaUpload
		err        error
	)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&req); err != nil {
			badRequest(c, "Invalid form data: "+err.Error())
			return
		}
		recipients, err = parseRecipients([]byte(c.PostForm("recipients")))
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		form, err := c.MultipartForm()
		if err != nil {
			badRequest(c, "Invalid form data: "+err.Error())
			return
		}
		uploads, err = mediaUploads(form.File[mediaField])
		if err != nil {
			writeError(c, err)
			return
		}
		defer closeUploads(uploads)
	} else {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body: "+err.Error())
			return
		}
		recipients, err = parseRecipients(req.Recipients)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	unlockDate, err := parseDate(req.UnlockDate)
	if err != nil {
		badRequest(c, "Invalid unlock date")
		return
	}

	capsule, err := h.capsuleService.CreateCapsule(c.Request.Context(), currentUserID(c), &entity.CreateCapsuleInput{
		Title:       req.Title,
		Description: req.Description,
		Message:     req.Message,
		UnlockDate:  unlockDate,
		Media:       uploads,
		Recipients:  recipients,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Capsule created successfully.",
		"capsule": capsule,
	})
}

func (h *CapsuleHandler) GetCapsules(c *gin.Context) {
	capsules, err := h.capsuleService.ListCapsules(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if capsules == nil {
		capsules = []*entity.Capsule{}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "capsules": capsules})
}

func (h *CapsuleHandler) GetCapsule(c *gin.Context) {
	id, ok := idParam(c, entity.ErrCapsuleNotFound)
	if !ok {
		return
	}

	view, err := h.capsuleService.GetCapsule(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}

	if view.Locked {
		c.JSON(http.StatusOK, gin.H{"success": true, "capsule": view.Summary, "locked": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "capsule": view.Capsule, "locked": false})
}

func (h *CapsuleHandler) DeleteCapsule(c *gin.Context) {
	id, ok := idParam(c, entity.ErrCapsuleNotFound)
	if !ok {
		return
	}

	if err := h.capsuleService.DeleteCapsule(c.Request.Context(), currentUserID(c), id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Capsule deleted successfully."})
}

// GetSharedCapsule is public: the token is the only credential.
func (h *CapsuleHandler) GetSharedCapsule(c *gin.Context) {
	capsule, err := h.capsuleService.GetSharedCapsule(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "capsule": capsule})
}

func (h *CapsuleHandler) RegenerateShareToken(c *gin.Context) {
	id, ok := idParam(c, entity.ErrCapsuleNotFound)
	if !ok {
		return
	}

	info, err := h.capsuleService.RegenerateShareToken(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"shareToken":  info.ShareToken,
		"shareExpiry": info.ShareExpiry,
	})
}

// parseRecipients accepts a JSON array or a JSON-encoded string holding one,
// which is how the web client sends it inside multipart forms.
func parseRecipients(raw []byte) ([]string, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, nil
	}

	var recipients []string
	if err := json.Unmarshal([]byte(s), &recipients); err == nil {
		return recipients, nil
	}

	var encoded string
	if err := json.Unmarshal([]byte(s), &encoded); err == nil {
		return parseRecipients([]byte(encoded))
	}
	return nil, fmt.Errorf("recipients must be a JSON array of emails")
}

// parseDate returns nil for an empty value.
func parseDate(value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := entity.ParseClientTime(value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func mediaUploads(files []*multipart.FileHeader) ([]entity.MediaUpload, error) {
	uploads := make([]entity.MediaUpload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			closeUploads(uploads)
			return nil, fmt.Errorf("failed to read upload %s: %w", fh.Filename, err)
		}
		uploads = append(uploads, entity.MediaUpload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Reader:      f,
		})
	}
	return uploads, nil
}

func closeUploads(uploads []entity.MediaUpload) {
	for _, u := range uploads {
		if closer, ok := u.Reader.(multipart.File); ok {
			closer.Close()
		}
	}
}
