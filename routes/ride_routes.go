package routes

import (
	handlers "ridematch/internal/handlers/shared"
	"ridematch/internal/middleware"
	"ridematch/pkg/websocket"

	"github.com/gin-gonic/gin"
)

// AuthConfig carries what AuthRequired needs to verify bearer tokens.
type AuthConfig struct {
	Secret string
	Issuer string
}

// SetupRideRoutes sets up the ride lifecycle routes
func SetupRideRoutes(r *gin.RouterGroup, auth AuthConfig, rideHandler *handlers.RideHandler) {
	rides := r.Group("/rides")
	rides.Use(middleware.AuthRequired(auth.Secret, auth.Issuer))
	{
		rides.POST("", middleware.PassengerRequired(), rideHandler.CreateRide)
		rides.POST("/quote", rideHandler.QuoteFare)
		rides.GET("/pending", middleware.DriverRequired(), rideHandler.GetPendingRides)
		rides.GET("/history", rideHandler.GetRideHistory)
		rides.GET("/:id", rideHandler.GetRide)

		// Driver actions
		rides.POST("/:id/accept", middleware.DriverRequired(), rideHandler.AcceptRide)
		rides.POST("/:id/reject", middleware.DriverRequired(), rideHandler.RejectRide)
		rides.POST("/:id/verify-otp", middleware.DriverRequired(), rideHandler.VerifyRideOTP)
		rides.POST("/:id/complete", middleware.DriverRequired(), rideHandler.CompleteRide)

		// Passenger actions
		rides.PUT("/:id/otp", middleware.PassengerRequired(), rideHandler.SetRideOTP)
		rides.PATCH("/:id", middleware.PassengerRequired(), rideHandler.UpdateRideDetails)

		rides.POST("/:id/cancel", rideHandler.CancelRide)

		// Payment collaborator
		rides.PUT("/:id/payment-status", middleware.SystemRequired(), rideHandler.UpdatePaymentStatus)
	}
}

func SetupDriverRoutes(r *gin.RouterGroup, auth AuthConfig, driverHandler *handlers.DriverHandler) {
	drivers := r.Group("/drivers")
	drivers.Use(middleware.AuthRequired(auth.Secret, auth.Issuer), middleware.DriverRequired())
	{
		drivers.PUT("/availability", driverHandler.UpdateAvailability)
	}
}

// SetupWebSocketRoutes mounts the dispatch socket at path.
func SetupWebSocketRoutes(r gin.IRoutes, path string, auth AuthConfig, wsHandler *websocket.Handler) {
	r.GET(path, middleware.AuthRequired(auth.Secret, auth.Issuer), wsHandler.HandleWebSocket)
}
