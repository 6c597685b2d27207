// Package venue is the client for the brokerage gateway: REST for account
// and order operations, WebSocket for order update pushes.
package venue

// Order sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order statuses as reported by the gateway.
const (
	StatusSubmitted     = "SUBMITTED"
	StatusFilledAll     = "FILLED_ALL"
	StatusPartialFilled = "PARTIAL_FILLED"
	StatusCancelledAll  = "CANCELLED_ALL"
	StatusFailed        = "FAILED"
)

// Order is one working or historical order.
type Order struct {
	OrderID       string  `json:"order_id"`
	Ticker        string  `json:"code"`
	Side          string  `json:"trd_side"`
	Status        string  `json:"order_status"`
	Price         float64 `json:"price"`
	Quantity      float64 `json:"qty"`
	DealtQuantity float64 `json:"dealt_qty"`
	DealtAvgPrice float64 `json:"dealt_avg_price"`
	CreateTime    string  `json:"create_time"`
	UpdatedTime   string  `json:"updated_time"`
}

// Terminal reports whether the order can no longer change state.
func (o Order) Terminal() bool {
	switch o.Status {
	case StatusFilledAll, StatusCancelledAll, StatusFailed:
		return true
	}
	return false
}

// Balance is the tradable funds snapshot for one account.
type Balance struct {
	Cash        float64 `json:"cash"`
	SettledCash float64 `json:"avl_withdrawal_cash"`
}

// Position is one open position.
type Position struct {
	Ticker          string  `json:"code"`
	Quantity        float64 `json:"qty"`
	CanSellQuantity float64 `json:"can_sell_qty"`
	AverageCost     float64 `json:"average_cost"`
	PLRatio         float64 `json:"pl_ratio"`
	PLValue         float64 `json:"pl_val"`
}

// OrderRequest is a new order submission.
type OrderRequest struct {
	Ticker   string  `json:"code"`
	Side     string  `json:"trd_side"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"qty"`
}
