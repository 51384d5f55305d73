package api

import "courier-pulse/pkg/model"

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"` // ignored for the first account, which is always admin
}

type tokenResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// ordersPage is returned by GET /api/orders/.
type ordersPage struct {
	Orders []model.OrderSummary `json:"orders"`
	Count  int                  `json:"count"`
}
