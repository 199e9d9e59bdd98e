package api

import "github.com/groshare/groupbuy/internal/domain/order"

// orderResponse is the external representation: the stored aggregate plus
// derived values recomputed from its fields. Derived values are never
// persisted, so they cannot drift from the source fields.
type orderResponse struct {
	*order.Order
	ProgressPercentage float64 `json:"progress_percentage"`
	IsThresholdReached bool    `json:"is_threshold_reached"`
	RemainingQuantity  float64 `json:"remaining_quantity"`
	TotalRevenue       float64 `json:"total_revenue"`
}

func orderView(o *order.Order) orderResponse {
	return orderResponse{
		Order:              o,
		ProgressPercentage: o.ProgressPercentage(),
		IsThresholdReached: o.IsThresholdReached(),
		RemainingQuantity:  o.RemainingQuantity(),
		TotalRevenue:       o.TotalRevenue(),
	}
}
