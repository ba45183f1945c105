package handlers

import (
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"lob-engine/src/engine"
	"lob-engine/src/models"
)

type OrderHandler struct {
	Book            *engine.OrderBook
	StartTime       time.Time
	OrdersReceived  int64
	OrdersRejected  int64
	OrdersCancelled int64

	nextOrderID atomic.Uint64

	latencies    []time.Duration
	latenciesMu  sync.RWMutex
	maxLatencies int
}

func NewOrderHandler(book *engine.OrderBook) *OrderHandler {
	maxLatencies := 10000
	if envMax := os.Getenv("METRICS_MAX_LATENCIES"); envMax != "" {
		if parsed, err := strconv.Atoi(envMax); err == nil && parsed > 0 {
			maxLatencies = parsed
		}
	}

	return &OrderHandler{
		Book:         book,
		StartTime:    time.Now(),
		latencies:    make([]time.Duration, 0, maxLatencies),
		maxLatencies: maxLatencies,
	}
}

func (h *OrderHandler) SubmitOrder(c *fiber.Ctx) error {
	var req models.SubmitOrderRequest

	if err := c.BodyParser(&req); err != nil {
		log.Warn().
			Err(err).
			Str("ip", c.IP()).
			Str("path", c.Path()).
			Msg("Invalid request: malformed JSON")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: malformed JSON",
		})
	}

	if req.TIF == "" {
		req.TIF = string(engine.TIFGoodTillCancel)
	}

	if err := validateSubmitOrderRequest(&req); err != nil {
		log.Warn().
			Err(err).
			Str("side", req.Side).
			Str("type", req.Type).
			Str("tif", req.TIF).
			Str("ip", c.IP()).
			Msg("Invalid order request")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: err.Error(),
		})
	}

	orderID := req.OrderID
	if orderID == 0 {
		orderID = h.nextOrderID.Add(1)
	}

	order := engine.Order{
		ID:        orderID,
		Side:      engine.OrderSide(req.Side),
		PriceTick: req.Price,
		Quantity:  req.Quantity,
		Type:      engine.OrderType(req.Type),
		TIF:       engine.TimeInForce(req.TIF),
		OwnerID:   req.OwnerID,
	}

	atomic.AddInt64(&h.OrdersReceived, 1)

	startTime := time.Now()
	accepted, fills := h.Book.Submit(order)
	h.recordLatency(time.Since(startTime))

	if !accepted {
		atomic.AddInt64(&h.OrdersRejected, 1)
		log.Warn().
			Uint64("order_id", orderID).
			Uint32("quantity", req.Quantity).
			Str("tif", req.TIF).
			Msg("Order rejected")
		return c.Status(fiber.StatusBadRequest).JSON(models.SubmitOrderResponse{
			OrderID:           orderID,
			Status:            "REJECTED",
			Message:           "Order rejected: not fillable or malformed",
			RemainingQuantity: req.Quantity,
		})
	}

	var filled uint32
	fillInfos := make([]models.FillInfo, 0, len(fills))
	for _, fill := range fills {
		filled += fill.Quantity
		fillInfos = append(fillInfos, models.FillInfo{
			ExecutionID:  uuid.New().String(),
			MakerOrderID: fill.MakerOrderID,
			TakerOrderID: fill.TakerOrderID,
			Price:        fill.PriceTick,
			Quantity:     fill.Quantity,
			Timestamp:    fill.Timestamp,
		})
	}
	remaining := req.Quantity - filled

	response := models.SubmitOrderResponse{
		OrderID:           orderID,
		Status:            "ACCEPTED",
		FilledQuantity:    filled,
		RemainingQuantity: remaining,
		Fills:             fillInfos,
	}

	log.Info().
		Uint64("order_id", orderID).
		Str("side", req.Side).
		Str("type", req.Type).
		Str("tif", req.TIF).
		Int64("price", req.Price).
		Uint32("filled_quantity", filled).
		Uint32("remaining_quantity", remaining).
		Int("fills_count", len(fills)).
		Msg("Order processed")

	if remaining == 0 && filled > 0 {
		response.Status = "FILLED"
		return c.Status(fiber.StatusOK).JSON(response)
	}
	if filled > 0 {
		response.Status = "PARTIAL_FILL"
		return c.Status(fiber.StatusAccepted).JSON(response)
	}
	response.Message = "Order accepted with no fills"
	return c.Status(fiber.StatusCreated).JSON(response)
}

func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	orderID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid order id",
		})
	}

	if !h.Book.Cancel(orderID) {
		log.Warn().
			Uint64("order_id", orderID).
			Str("ip", c.IP()).
			Msg("Cancel order: order not found")
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Order not found",
		})
	}

	atomic.AddInt64(&h.OrdersCancelled, 1)

	log.Info().
		Uint64("order_id", orderID).
		Str("ip", c.IP()).
		Msg("Order cancelled")

	return c.Status(fiber.StatusOK).JSON(models.CancelOrderResponse{
		OrderID: orderID,
		Status:  "CANCELLED",
	})
}

func (h *OrderHandler) ModifyOrder(c *fiber.Ctx) error {
	orderID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid order id",
		})
	}

	var req models.ModifyOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: malformed JSON",
		})
	}

	if req.Quantity == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid modify: quantity must be positive",
		})
	}

	startTime := time.Now()
	found, fills := h.Book.Modify(orderID, req.Price, req.Quantity)
	h.recordLatency(time.Since(startTime))

	if !found {
		log.Warn().
			Uint64("order_id", orderID).
			Msg("Modify order: order not found")
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Order not found",
		})
	}

	var filled uint32
	fillInfos := make([]models.FillInfo, 0, len(fills))
	for _, fill := range fills {
		filled += fill.Quantity
		fillInfos = append(fillInfos, models.FillInfo{
			ExecutionID:  uuid.New().String(),
			MakerOrderID: fill.MakerOrderID,
			TakerOrderID: fill.TakerOrderID,
			Price:        fill.PriceTick,
			Quantity:     fill.Quantity,
			Timestamp:    fill.Timestamp,
		})
	}

	log.Info().
		Uint64("order_id", orderID).
		Int64("new_price", req.Price).
		Uint32("new_quantity", req.Quantity).
		Int("fills_count", len(fills)).
		Msg("Order modified")

	return c.Status(fiber.StatusOK).JSON(models.SubmitOrderResponse{
		OrderID:           orderID,
		Status:            "MODIFIED",
		FilledQuantity:    filled,
		RemainingQuantity: req.Quantity - filled,
		Fills:             fillInfos,
	})
}

func (h *OrderHandler) CancelAllOrders(c *fiber.Ctx) error {
	side := c.Query("side")
	if side != string(engine.SideBuy) && side != string(engine.SideSell) {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: side must be BUY or SELL",
		})
	}

	cancelled := h.Book.CancelAll(engine.OrderSide(side))
	atomic.AddInt64(&h.OrdersCancelled, int64(cancelled))

	log.Info().
		Str("side", side).
		Int("cancelled", cancelled).
		Msg("Cancelled all orders on side")

	return c.Status(fiber.StatusOK).JSON(models.CancelAllResponse{
		Side:      side,
		Cancelled: cancelled,
	})
}

// ExpireSession is the end-of-day trigger: it sweeps every resting GFD order.
func (h *OrderHandler) ExpireSession(c *fiber.Ctx) error {
	cancelled := h.Book.CancelAllGFD()
	atomic.AddInt64(&h.OrdersCancelled, int64(cancelled))

	log.Info().
		Int("cancelled", cancelled).
		Msg("Session expired, GFD orders swept")

	return c.Status(fiber.StatusOK).JSON(models.SessionExpireResponse{
		Cancelled: cancelled,
	})
}

func (h *OrderHandler) GetOrderStatus(c *fiber.Ctx) error {
	orderID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid order id",
		})
	}

	order, ok := h.Book.GetOrder(orderID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Order not found",
		})
	}

	return c.Status(fiber.StatusOK).JSON(models.OrderStatusResponse{
		OrderID:   order.ID,
		Side:      string(order.Side),
		Type:      string(order.Type),
		Price:     order.PriceTick,
		Quantity:  order.Quantity,
		TIF:       string(order.TIF),
		OwnerID:   order.OwnerID,
		Timestamp: order.Timestamp,
	})
}

func (h *OrderHandler) GetOrderBook(c *fiber.Ctx) error {
	defaultDepth := 10
	if envDepth := os.Getenv("ORDERBOOK_DEFAULT_DEPTH"); envDepth != "" {
		if parsed, err := strconv.Atoi(envDepth); err == nil && parsed > 0 {
			defaultDepth = parsed
		}
	}

	maxDepth := 1000
	if envMaxDepth := os.Getenv("ORDERBOOK_MAX_DEPTH"); envMaxDepth != "" {
		if parsed, err := strconv.Atoi(envMaxDepth); err == nil && parsed > 0 {
			maxDepth = parsed
		}
	}

	depthStr := c.Query("depth", strconv.Itoa(defaultDepth))
	depth, err := strconv.Atoi(depthStr)
	if err != nil || depth <= 0 {
		depth = defaultDepth
	}
	if depth > maxDepth {
		depth = maxDepth
	}

	bidLevels := h.Book.GetTopLevels(engine.SideBuy, depth)
	askLevels := h.Book.GetTopLevels(engine.SideSell, depth)

	bids := make([]models.PriceLevelInfo, 0, len(bidLevels))
	for _, level := range bidLevels {
		bids = append(bids, models.PriceLevelInfo{
			Price:      level.PriceTick,
			Quantity:   level.TotalQuantity,
			OrderCount: level.OrderCount,
		})
	}

	asks := make([]models.PriceLevelInfo, 0, len(askLevels))
	for _, level := range askLevels {
		asks = append(asks, models.PriceLevelInfo{
			Price:      level.PriceTick,
			Quantity:   level.TotalQuantity,
			OrderCount: level.OrderCount,
		})
	}

	return c.Status(fiber.StatusOK).JSON(models.OrderBookResponse{
		Timestamp:   time.Now().UnixMilli(),
		Bids:        bids,
		Asks:        asks,
		BestBid:     h.Book.BestBid(),
		BestAsk:     h.Book.BestAsk(),
		WeightedMid: h.Book.GetWeightedMidPrice(),
		BidVolume:   h.Book.GetTotalVolume(engine.SideBuy),
		AskVolume:   h.Book.GetTotalVolume(engine.SideSell),
	})
}

func (h *OrderHandler) HealthCheck(c *fiber.Ctx) error {
	uptime := time.Since(h.StartTime).Seconds()

	return c.Status(fiber.StatusOK).JSON(models.HealthResponse{
		Status:        "healthy",
		UptimeSeconds: int64(uptime),
		RestingOrders: h.Book.GetOrderCount(),
	})
}

func (h *OrderHandler) Metrics(c *fiber.Ctx) error {
	stats := h.Book.GetStats()
	p50, p99, p999 := h.calculateLatencyPercentiles()
	throughput := h.calculateThroughput()

	return c.Status(fiber.StatusOK).JSON(models.MetricsResponse{
		OrdersProcessed:        stats.OrdersProcessed,
		FillsGenerated:         stats.FillsGenerated,
		AvgProcessingTimeNs:    stats.AvgProcessingTimeNs,
		PeakOrdersPerSecond:    stats.PeakOrdersPerSecond,
		OrdersReceived:         atomic.LoadInt64(&h.OrdersReceived),
		OrdersRejected:         atomic.LoadInt64(&h.OrdersRejected),
		OrdersCancelled:        atomic.LoadInt64(&h.OrdersCancelled),
		RestingOrders:          h.Book.GetOrderCount(),
		LatencyP50Ms:           p50,
		LatencyP99Ms:           p99,
		LatencyP999Ms:          p999,
		ThroughputOrdersPerSec: throughput,
	})
}

func (h *OrderHandler) ResetMetrics(c *fiber.Ctx) error {
	h.Book.ResetStats()
	atomic.StoreInt64(&h.OrdersReceived, 0)
	atomic.StoreInt64(&h.OrdersRejected, 0)
	atomic.StoreInt64(&h.OrdersCancelled, 0)

	h.latenciesMu.Lock()
	h.latencies = h.latencies[:0]
	h.latenciesMu.Unlock()

	log.Info().Msg("Metrics reset")

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *OrderHandler) recordLatency(latency time.Duration) {
	h.latenciesMu.Lock()
	defer h.latenciesMu.Unlock()

	h.latencies = append(h.latencies, latency)

	// edge case: maintain rolling window by removing oldest measurements
	if len(h.latencies) > h.maxLatencies {
		removeCount := len(h.latencies) - h.maxLatencies
		h.latencies = h.latencies[removeCount:]
	}
}

func (h *OrderHandler) calculateLatencyPercentiles() (p50, p99, p999 float64) {
	h.latenciesMu.RLock()
	defer h.latenciesMu.RUnlock()

	if len(h.latencies) == 0 {
		return 0, 0, 0
	}

	latenciesCopy := make([]time.Duration, len(h.latencies))
	copy(latenciesCopy, h.latencies)

	sort.Slice(latenciesCopy, func(i, j int) bool {
		return latenciesCopy[i] < latenciesCopy[j]
	})

	pick := func(q float64) float64 {
		idx := int(float64(len(latenciesCopy)) * q)
		if idx >= len(latenciesCopy) {
			idx = len(latenciesCopy) - 1
		}
		return float64(latenciesCopy[idx].Nanoseconds()) / 1e6
	}

	return pick(0.50), pick(0.99), pick(0.999)
}

func (h *OrderHandler) calculateThroughput() float64 {
	uptime := time.Since(h.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}

	return float64(atomic.LoadInt64(&h.OrdersReceived)) / uptime
}

func validateSubmitOrderRequest(req *models.SubmitOrderRequest) error {
	if req.Side != string(engine.SideBuy) && req.Side != string(engine.SideSell) {
		return &ValidationError{Message: "Invalid order: side must be BUY or SELL"}
	}

	if req.Type != string(engine.TypeLimit) && req.Type != string(engine.TypeMarket) {
		return &ValidationError{Message: "Invalid order: type must be LIMIT or MARKET"}
	}

	switch engine.TimeInForce(req.TIF) {
	case engine.TIFGoodTillCancel, engine.TIFImmediate, engine.TIFFillOrKill, engine.TIFGoodForDay:
	default:
		return &ValidationError{Message: "Invalid order: tif must be GTC, IOC, FOK or GFD"}
	}

	if req.Quantity == 0 {
		return &ValidationError{Message: "Invalid order: quantity must be positive"}
	}

	// edge case: price required for limit orders
	if req.Type == string(engine.TypeLimit) && req.Price <= 0 {
		return &ValidationError{Message: "Invalid order: price must be positive for LIMIT orders"}
	}

	return nil
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
