package models

// Prices cross this boundary as integer ticks (price x 100), matching the
// engine's fixed-point domain. Display prices are floats only in the
// market-data responses.

type SubmitOrderRequest struct {
	OrderID  uint64 `json:"order_id,omitempty"` // 0 = server assigns
	Side     string `json:"side"`
	Type     string `json:"type"`
	Price    int64  `json:"price"` // in ticks, required for LIMIT, ignored for MARKET
	Quantity uint32 `json:"quantity"`
	TIF      string `json:"tif,omitempty"` // GTC, IOC, FOK, GFD; defaults to GTC
	OwnerID  uint32 `json:"owner_id"`
}

type FillInfo struct {
	ExecutionID  string `json:"execution_id"`
	MakerOrderID uint64 `json:"maker_order_id"`
	TakerOrderID uint64 `json:"taker_order_id"`
	Price        int64  `json:"price"` // in ticks, always the maker's price
	Quantity     uint32 `json:"quantity"`
	Timestamp    uint64 `json:"timestamp"` // engine clock, nanoseconds
}

type SubmitOrderResponse struct {
	OrderID           uint64     `json:"order_id"`
	Status            string     `json:"status"`
	Message           string     `json:"message,omitempty"`
	FilledQuantity    uint32     `json:"filled_quantity"`
	RemainingQuantity uint32     `json:"remaining_quantity"`
	Fills             []FillInfo `json:"fills,omitempty"`
}

type ModifyOrderRequest struct {
	Price    int64  `json:"price"` // in ticks
	Quantity uint32 `json:"quantity"`
}

type CancelOrderResponse struct {
	OrderID uint64 `json:"order_id"`
	Status  string `json:"status"`
}

type CancelAllResponse struct {
	Side      string `json:"side"`
	Cancelled int    `json:"cancelled"`
}

type SessionExpireResponse struct {
	Cancelled int `json:"cancelled"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type OrderStatusResponse struct {
	OrderID   uint64 `json:"order_id"`
	Side      string `json:"side"`
	Type      string `json:"type"`
	Price     int64  `json:"price"` // in ticks
	Quantity  uint32 `json:"quantity"`
	TIF       string `json:"tif"`
	OwnerID   uint32 `json:"owner_id"`
	Timestamp uint64 `json:"timestamp"` // resting time, nanoseconds
}

type PriceLevelInfo struct {
	Price      int64  `json:"price"` // in ticks
	Quantity   uint64 `json:"quantity"`
	OrderCount uint32 `json:"order_count"`
}

type OrderBookResponse struct {
	Timestamp   int64            `json:"timestamp"` // unix milliseconds
	Bids        []PriceLevelInfo `json:"bids"`      // highest first
	Asks        []PriceLevelInfo `json:"asks"`      // lowest first
	BestBid     float64          `json:"best_bid"`  // -1 when side empty
	BestAsk     float64          `json:"best_ask"`
	WeightedMid float64          `json:"weighted_mid"`
	BidVolume   uint64           `json:"bid_volume"`
	AskVolume   uint64           `json:"ask_volume"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	RestingOrders int    `json:"resting_orders"`
}

type MetricsResponse struct {
	OrdersProcessed        uint64  `json:"orders_processed"`
	FillsGenerated         uint64  `json:"fills_generated"`
	AvgProcessingTimeNs    uint64  `json:"avg_processing_time_ns"` // last sample
	PeakOrdersPerSecond    uint64  `json:"peak_orders_per_second"`
	OrdersReceived         int64   `json:"orders_received"`
	OrdersRejected         int64   `json:"orders_rejected"`
	OrdersCancelled        int64   `json:"orders_cancelled"`
	RestingOrders          int     `json:"resting_orders"`
	LatencyP50Ms           float64 `json:"latency_p50_ms"`
	LatencyP99Ms           float64 `json:"latency_p99_ms"`
	LatencyP999Ms          float64 `json:"latency_p999_ms"`
	ThroughputOrdersPerSec float64 `json:"throughput_orders_per_sec"`
}
