package handlers

import (
	"net/http"
	"time"

	"bid-aggregator/internal/domain"
	"bid-aggregator/internal/services"
	"bid-aggregator/pkg/logger"

	"github.com/labstack/echo/v4"
)

const invalidBidMessage = "bid must include auctionId, userId, amount (number)"

// BidHandler is the producer-facing submission API.
type BidHandler struct {
	publisher domain.BidPublisher
	now       func() time.Time
	log       logger.Logger
}

type SubmitBidResponse struct {
	Status string     `json:"status"`
	Bid    domain.Bid `json:"bid"`
}

func NewBidHandler(publisher domain.BidPublisher, log logger.Logger) *BidHandler {
	return &BidHandler{
		publisher: publisher,
		now:       time.Now,
		log:       log,
	}
}

func (h *BidHandler) Register(e *echo.Echo) {
	e.GET("/", h.Root)
	e.GET("/health", h.Health)
	e.POST("/bid", h.SubmitBid)
}

func (h *BidHandler) Root(c echo.Context) error {
	return c.String(http.StatusOK, "Auction Producer running")
}

func (h *BidHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "bid-producer",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *BidHandler) SubmitBid(c echo.Context) error {
	var req services.SubmitBidRequest
	if err := c.Bind(&req); err != nil {
		h.log.Warn("Failed to bind bid request", "remote_addr", c.RealIP(), "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": invalidBidMessage})
	}

	bid, err := services.ValidateSubmission(req, h.now)
	if err != nil {
		h.log.Warn("Rejected bid", "remote_addr", c.RealIP(), "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": invalidBidMessage})
	}

	if err := h.publisher.PublishBid(c.Request().Context(), bid); err != nil {
		h.log.Error("Producer send error", "auction_id", bid.AuctionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to send bid"})
	}

	h.log.Info("Bid sent", "auction_id", bid.AuctionID, "user_id", bid.UserID, "amount", bid.Amount)
	return c.JSON(http.StatusOK, SubmitBidResponse{Status: "sent", Bid: bid})
}
