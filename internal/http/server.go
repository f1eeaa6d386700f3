// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cabdispatch/internal/http/handlers"
	"cabdispatch/internal/http/middleware"
	"cabdispatch/internal/infra"
	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/modules/driver"
	"cabdispatch/internal/modules/offer"
	"cabdispatch/internal/modules/operator"
	"cabdispatch/internal/modules/sweeper"
)

type ServerDeps struct {
	Bookings  *booking.Service
	Offers    *offer.Manager
	Drivers   *driver.Service
	Operators *operator.Service
	Sweeper   *sweeper.Sweeper
	Verifier  infra.TokenVerifier
	Log       *zap.Logger
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &Server{deps: deps}
}

func (s *Server) Routes() *gin.Engine {
	d := s.deps
	r := gin.New()
	r.Use(middleware.Recovery(d.Log), middleware.Metrics(), middleware.Logging(d.Log))

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(d.Verifier))

	bookingHandler := handlers.NewBookingHandler(d.Bookings)
	api.POST("/bookings", middleware.RequireRole(middleware.RolePassenger), bookingHandler.Create)
	api.GET("/bookings/:id", bookingHandler.Get)
	api.POST("/bookings/:id/cancel",
		middleware.RequireRole(middleware.RolePassenger, middleware.RoleOperator, middleware.RoleAdmin),
		bookingHandler.Cancel)

	rides := api.Group("/bookings/:id", middleware.RequireRole(middleware.RoleDriver))
	rideHandler := handlers.NewRideHandler(d.Bookings, d.Offers)
	rides.POST("/accept", rideHandler.Accept)
	rides.POST("/decline", rideHandler.Decline)
	rides.POST("/arrive", rideHandler.Arrive)
	rides.POST("/start", rideHandler.Start)
	rides.POST("/start-wait-return", rideHandler.StartWaitAndReturn)
	rides.POST("/complete", rideHandler.Complete)

	drivers := api.Group("/drivers", middleware.RequireRole(middleware.RoleDriver))
	driverHandler := handlers.NewDriverHandler(d.Drivers)
	drivers.GET("/me", driverHandler.Me)
	drivers.POST("/online", driverHandler.Online)
	drivers.POST("/offline", driverHandler.Offline)
	drivers.POST("/pause", driverHandler.Pause)
	drivers.PUT("/location", driverHandler.Location)

	offers := api.Group("/offers", middleware.RequireRole(middleware.RoleDriver))
	offerHandler := handlers.NewOfferHandler(d.Offers, d.Log)
	offers.GET("/:id", offerHandler.Get)
	offers.GET("/:id/countdown", offerHandler.Countdown)

	operatorHandler := handlers.NewOperatorHandler(d.Operators)
	api.POST("/operators", middleware.RequireRole(middleware.RoleAdmin), operatorHandler.Onboard)
	staff := api.Group("/operators/:id", middleware.RequireRole(middleware.RoleOperator, middleware.RoleAdmin))
	staff.GET("/settings", operatorHandler.GetSettings)
	staff.PUT("/settings", operatorHandler.UpdateSettings)

	adminHandler := handlers.NewAdminHandler(d.Sweeper)
	api.POST("/admin/sweep", middleware.RequireRole(middleware.RoleAdmin), adminHandler.Sweep)

	return r
}
