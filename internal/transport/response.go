package transport

import (
	"errors"
	"net/http"
	"time"

	"github.com/ds124wfegd/timecapsule/internal/entity"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// LockedResponse is returned for a shared capsule that is not yet unlocked.
type LockedResponse struct {
	ErrorResponse
	Locked     bool      `json:"locked"`
	UnlockDate time.Time `json:"unlockDate"`
}

func errorStatus(err error) int {
	var verr *entity.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, entity.ErrInvalidInput), errors.Is(err, entity.ErrInvalidResetToken):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrInvalidCredentials), errors.Is(err, entity.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, entity.ErrCapsuleLocked):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrCapsuleNotFound),
		errors.Is(err, entity.ErrMessageNotFound),
		errors.Is(err, entity.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrUserAlreadyExists), errors.Is(err, entity.ErrMessageDelivered):
		return http.StatusConflict
	case errors.Is(err, entity.ErrShareExpired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).Errorf("Request failed: %v", err)
	}

	var lerr *entity.LockedError
	if errors.As(err, &lerr) {
		c.JSON(status, LockedResponse{
			ErrorResponse: ErrorResponse{
				Success: false,
				Message: "This capsule is locked until " + lerr.UnlockDate.Format("January 2, 2006") + ".",
			},
			Locked:     true,
			UnlockDate: lerr.UnlockDate,
		})
		return
	}

	c.JSON(status, ErrorResponse{Success: false, Message: err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Message: message})
}

// idParam returns the canonical :id path value. Anything that is not a UUID
// cannot name a record, so it is answered with notFound.
func idParam(c *gin.Context, notFound error) (string, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, notFound)
		return "", false
	}
	return id.String(), true
}
