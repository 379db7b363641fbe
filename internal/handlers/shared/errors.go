package handlers

import (
	"errors"
	"net/http"
	"strings"

	"ridematch/internal/services"
	"ridematch/internal/utils"
	"ridematch/internal/validators"
	"ridematch/pkg/logger"

	"github.com/gin-gonic/gin"
)

// respondError maps service errors onto the API error envelope.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	message := reason(err)

	switch {
	case errors.Is(err, services.ErrValidation):
		utils.ValidationErrorResponse(c, message, nil)
	case errors.Is(err, services.ErrForbidden), errors.Is(err, services.ErrVehicleMismatch):
		utils.ForbiddenResponse(c, message)
	case errors.Is(err, services.ErrRideNotFound):
		utils.NotFoundResponse(c, "Ride")
	case errors.Is(err, services.ErrRideTaken):
		utils.ErrorResponse(c, http.StatusConflict, "RIDE_TAKEN", utils.ErrRideTaken)
	case errors.Is(err, services.ErrInvalidState):
		utils.ConflictResponse(c, message)
	case errors.Is(err, services.ErrInvalidOTP):
		utils.ErrorResponse(c, http.StatusBadRequest, "INVALID_OTP", "Invalid OTP")
	case errors.Is(err, services.ErrOTPNotSet):
		utils.ErrorResponse(c, http.StatusBadRequest, "OTP_NOT_SET", message)
	case errors.Is(err, services.ErrOTPExpired):
		utils.ErrorResponse(c, http.StatusBadRequest, "OTP_EXPIRED", message)
	case errors.Is(err, services.ErrOTPLocked):
		utils.TooManyRequestsResponse(c, message)
	default:
		log.WithContext(c.Request.Context()).WithError(err).Error("Request failed")
		utils.InternalServerErrorResponse(c)
	}
}

// reason strips the sentinel prefix from a wrapped service error, leaving
// the specific cause for the client.
func reason(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}

func respondInvalid(c *gin.Context, errs validators.ValidationErrors) {
	utils.ValidationErrorResponse(c, "", errs.Details())
}
