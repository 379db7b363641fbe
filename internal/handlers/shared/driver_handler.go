package handlers

import (
	"ridematch/internal/middleware"
	"ridematch/internal/models"
	"ridematch/internal/services"
	"ridematch/internal/utils"
	"ridematch/internal/validators"
	"ridematch/pkg/logger"

	"github.com/gin-gonic/gin"
)

type DriverHandler struct {
	matching services.MatchingService
	logger   *logger.Logger
}

func NewDriverHandler(matching services.MatchingService, log *logger.Logger) *DriverHandler {
	return &DriverHandler{
		matching: matching,
		logger:   log.WithComponent("driver_handler"),
	}
}

// UpdateAvailability records a driver going on or off duty. Online drivers
// feed the demand signal for their zone.
func (h *DriverHandler) UpdateAvailability(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	var request validators.AvailabilityRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateStruct(&request); len(errs) > 0 {
		respondInvalid(c, errs)
		return
	}

	availability := models.DriverAvailability{
		Online: request.Online,
		Lat:    request.Lat,
		Lng:    request.Lng,
	}
	if err := h.matching.UpdateDriverAvailability(c.Request.Context(), principal, availability); err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, "Availability updated", gin.H{"online": request.Online})
}
