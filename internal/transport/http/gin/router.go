package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kaminskyi/eventbook/internal/gateway"
	redisrepo "github.com/kaminskyi/eventbook/internal/repository/redis"
	"github.com/kaminskyi/eventbook/internal/service"
	"github.com/kaminskyi/eventbook/internal/service/booking"
	"github.com/kaminskyi/eventbook/internal/service/query"
	"github.com/kaminskyi/eventbook/internal/service/reconcile"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// maxWebhookBody caps the raw notification payload we are willing to read.
const maxWebhookBody = 1 << 20

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	verifier *gateway.Verifier,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public API
	r.GET("/events/:id", handleGetEvent(svcs))
	r.GET("/events/:id/availability", handleGetAvailability(svcs))

	r.POST("/bookings", handleCreateBooking(svcs, idem))
	r.GET("/bookings/:id", handleGetBooking(svcs))
	r.GET("/bookings/:id/tickets", handleGetTickets(svcs))
	r.POST("/bookings/:id/payment-session", handleOpenPaymentSession(svcs))

	r.GET("/customers/:id/loyalty", handleGetLoyalty(svcs))

	// Provider callbacks
	r.POST("/payments/webhook", handlePaymentWebhook(verifier, svcs.Reconcile))

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Get event
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  domain.Event
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		e, err := svcs.Query.GetEvent(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 60s
		writeJSONWithCache(c, http.StatusOK, e, "public, max-age=60", true)
	}
}

// @Summary  Get availability counters
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  domain.Availability
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		av, err := svcs.Query.Availability(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 15s
		writeJSONWithCache(c, http.StatusOK, av, "public, max-age=15", true)
	}
}

// @Summary  Create booking (idempotent)
// @Param    req body  CreateBookingRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} BookingResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "insufficient inventory / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /bookings [post]
func handleCreateBooking(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(req.EventID, idemKey)

			if payload, ok, _ := idem.GetResult(
				c.Request.Context(),
				idemStorageKey,
			); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(
					http.StatusCreated,
					"application/json; charset=utf-8",
					[]byte(payload),
				)
				return
			}

			locked, err := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(
					c.Request.Context(),
					idemStorageKey,
				); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(
						http.StatusCreated,
						"application/json; charset=utf-8",
						[]byte(payload),
					)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		rlKey := "ip:" + c.ClientIP()

		bw, err := svcs.Booking.CreateBooking(
			c.Request.Context(),
			req.CustomerID,
			req.EventID,
			req.Quantity,
			rlKey,
		)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			if errors.Is(err, booking.ErrRateLimited) {
				c.Header("Retry-After", "60")
				c.JSON(
					http.StatusTooManyRequests,
					ErrorResponse{Error: "rate limited"},
				)
				return
			}
			respondErr(c, err)
			return
		}

		resp := toBookingResponse(bw)

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Get booking with payment state
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} BookingResponse
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{id} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		bw, err := svcs.Query.GetBooking(c.Request.Context(), bookingID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toBookingResponse(bw))
	}
}

// @Summary  Get issued tickets with scannable artifacts
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {array}  query.TicketArtifact
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{id}/tickets [get]
func handleGetTickets(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		arts, err := svcs.Query.TicketArtifacts(c.Request.Context(), bookingID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, arts)
	}
}

// @Summary  Open hosted-checkout session for a pending booking
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  201 {object} PaymentSessionResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "already paid / not pending"
// @Failure  503 {object} ErrorResponse "gateway unavailable"
// @Router   /bookings/{id}/payment-session [post]
func handleOpenPaymentSession(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		session, err := svcs.Booking.OpenPaymentSession(c.Request.Context(), bookingID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, PaymentSessionResponse{
			SessionID:   session.ID,
			RedirectURL: session.RedirectURL,
		})
	}
}

// @Summary  Get loyalty balance
// @Param    id  path  string  true  "Customer ID"
// @Success  200 {object} domain.LoyaltyBalance
// @Router   /customers/{id}/loyalty [get]
func handleGetLoyalty(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		customerID := c.Param("id")
		lb, err := svcs.Query.LoyaltyBalance(c.Request.Context(), customerID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 30s
		writeJSONWithCache(c, http.StatusOK, lb, "public, max-age=30", true)
	}
}

// notificationProcessor consumes a verified provider notification.
type notificationProcessor interface {
	HandleNotification(ctx context.Context, n gateway.Notification) error
}

// @Summary  Payment provider webhook
// @Param    Webhook-Signature  header  string  true  "t=<unix>,v1=<hex>"
// @Success  200 {object} WebhookAck
// @Failure  400 {object} ErrorResponse "unverifiable signature"
// @Failure  500 {object} ErrorResponse "processing failed; provider retries"
// @Router   /payments/webhook [post]
func handlePaymentWebhook(
	verifier *gateway.Verifier,
	proc notificationProcessor,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			badRequest(c, "cannot read body")
			return
		}

		if err := verifier.Verify(c.GetHeader("Webhook-Signature"), body); err != nil {
			badRequest(c, "signature verification failed")
			return
		}

		var n gateway.Notification
		if err := json.Unmarshal(body, &n); err != nil {
			badRequest(c, "malformed payload")
			return
		}

		if err := proc.HandleNotification(c.Request.Context(), n); err != nil {
			// Non-2xx makes the provider redeliver; processing is idempotent.
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "processing failed"})
			return
		}

		c.JSON(http.StatusOK, WebhookAck{Received: true})
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// booking service
	case errors.Is(err, booking.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid quantity"})
		return
	case errors.Is(err, booking.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	case errors.Is(err, booking.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
		return
	case errors.Is(err, booking.ErrNoVenueConfigured):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "event has no venue"})
		return
	case errors.Is(err, booking.ErrInsufficientInventory):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "insufficient inventory"})
		return
	case errors.Is(err, booking.ErrAlreadyPaid):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "booking already paid"})
		return
	case errors.Is(err, booking.ErrBookingNotPending):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "booking is not pending"})
		return
	case errors.Is(err, booking.ErrSessionInProgress):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, ErrorResponse{Error: "session open in progress"})
		return
	// query service
	case errors.Is(err, query.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	case errors.Is(err, query.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
		return
	// reconcile service
	case errors.Is(err, reconcile.ErrInconsistentState):
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "inconsistent state"})
		return
	// gateway
	case errors.Is(err, gateway.ErrUnavailable):
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "payment gateway unavailable"})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
