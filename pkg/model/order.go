package model

import "time"

// Order statuses as reported by the orders backend.
const (
	OrderPending   = "pending"
	OrderAssigned  = "assigned"
	OrderPickedUp  = "picked_up"
	OrderInTransit = "in_transit"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

// OrderSummary is the slice of order state shipped to dashboards.
type OrderSummary struct {
	ID              string     `json:"id"`
	TrackingNumber  string     `json:"tracking_number"`
	Status          string     `json:"status"`
	CustomerID      string     `json:"customer_id,omitempty"`
	CourierID       string     `json:"courier_id,omitempty"`
	PickupAddress   string     `json:"pickup_address,omitempty"`
	DeliveryAddress string     `json:"delivery_address,omitempty"`
	Price           float64    `json:"price,omitempty"`
	EstimatedAt     *time.Time `json:"estimated_delivery,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderPending, OrderAssigned, OrderPickedUp, OrderInTransit, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}
