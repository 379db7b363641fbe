package handlers

import (
	"strconv"

	"ridematch/internal/middleware"
	"ridematch/internal/models"
	"ridematch/internal/services"
	"ridematch/internal/utils"
	"ridematch/internal/validators"
	"ridematch/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RideHandler serves the ride lifecycle for passengers, drivers and the
// payment collaborator. Role checks beyond authentication happen in the
// services so every transport gets the same rules.
type RideHandler struct {
	matching services.MatchingService
	logger   *logger.Logger
}

func NewRideHandler(matching services.MatchingService, log *logger.Logger) *RideHandler {
	return &RideHandler{
		matching: matching,
		logger:   log.WithComponent("ride_handler"),
	}
}

// CreateRide books a ride for the calling passenger
func (h *RideHandler) CreateRide(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	var request validators.CreateRideRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	input, errs := validators.ValidateCreateRide(&request)
	if len(errs) > 0 {
		respondInvalid(c, errs)
		return
	}

	ride, err := h.matching.CreateRide(c.Request.Context(), principal, input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.CreatedResponse(c, "Ride requested successfully", ride)
}

// AcceptRide claims a pending ride for the calling driver
func (h *RideHandler) AcceptRide(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	ride, err := h.matching.AcceptRide(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, "Ride accepted successfully", ride)
}

func (h *RideHandler) RejectRide(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	ride, err := h.matching.RejectRide(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, "Ride rejected", gin.H{"ride_id": ride.ID.Hex(), "status": ride.Status})
}

// SetRideOTP stores the passenger's pickup code
func (h *RideHandler) SetRideOTP(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	var request validators.SetOTPRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateStruct(&request); len(errs) > 0 {
		respondInvalid(c, errs)
		return
	}

	ride, err := h.matching.SetRideOTP(c.Request.Context(), principal, c.Param("id"), request.OTP)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, "OTP set successfully", ride)
}

// VerifyRideOTP checks the code read out by the passenger and starts the trip
func (h *RideHandler) VerifyRideOTP(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	var request validators.VerifyOTPRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateStruct(&request); len(errs) > 0 {
		respondInvalid(c, errs)
		return
	}

	ride, err := h.matching.VerifyRideOTP(c.Request.Context(), principal, c.Param("id"), request.OTP)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, "OTP verified, ride started", ride)
}

func (h *RideHandler) CompleteRide(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	ride, err := h.matching.CompleteRide(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, "Ride completed successfully", ride)
}

// UpdateRideDetails changes pickup or drop before the trip starts
func (h *RideHandler) UpdateRideDetails(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	var request validators.UpdateRideRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	input, errs := validators.ValidateUpdateRide(&request)
	if len(errs) > 0 {
		respondInvalid(c, errs)
		return
	}

	ride, err := h.matching.UpdateRideDetails(c.Request.Context(), principal, c.Param("id"), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, "Ride updated successfully", ride)
}

func (h *RideHandler) CancelRide(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	var request validators.CancelRideRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			utils.BadRequestResponse(c, "Invalid request: "+err.Error())
			return
		}
		if errs := validators.ValidateStruct(&request); len(errs) > 0 {
			respondInvalid(c, errs)
			return
		}
	}

	ride, err := h.matching.CancelRide(c.Request.Context(), principal, c.Param("id"), request.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, "Ride cancelled", ride)
}

// UpdatePaymentStatus is called by the payment service once a charge settles
func (h *RideHandler) UpdatePaymentStatus(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	var request validators.PaymentStatusRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateStruct(&request); len(errs) > 0 {
		respondInvalid(c, errs)
		return
	}

	ride, err := h.matching.UpdatePaymentStatus(c.Request.Context(), principal, c.Param("id"), models.PaymentStatus(request.Status))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, "Payment status updated", ride)
}

// GetPendingRides lists open rides the calling driver may accept
func (h *RideHandler) GetPendingRides(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	rides, err := h.matching.GetPendingRides(c.Request.Context(), principal, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Pending rides retrieved", rides, &utils.Meta{Count: len(rides)})
}

func (h *RideHandler) GetRideHistory(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	params := utils.GetPaginationParams(c)
	rides, total, err := h.matching.GetRideHistory(c.Request.Context(), principal, params)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.PaginatedResponse(c, "Ride history retrieved", rides, utils.CreatePaginationMeta(params, total))
}

func (h *RideHandler) GetRide(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	ride, err := h.matching.GetRideByID(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, "Ride retrieved", ride)
}

// QuoteFare prices a trip without booking it
func (h *RideHandler) QuoteFare(c *gin.Context) {
	var request validators.QuoteFareRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	quoteRequest, errs := validators.ValidateQuoteFare(&request)
	if len(errs) > 0 {
		respondInvalid(c, errs)
		return
	}

	quote, err := h.matching.QuoteFare(c.Request.Context(), quoteRequest)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, "Fare estimated", quote)
}
