package codes

import "time"

// FreeCode is one free promo code card on the public codes page.
type FreeCode struct {
	ID         int64     `json:"id"`
	Code       string    `json:"code"`
	Title      string    `json:"title"`
	Odds       string    `json:"odds"`
	Bookmaker  string    `json:"bookmaker"`
	ValidUntil time.Time `json:"valid_until"`
}

// CodesResponse wraps GET /codes.
type CodesResponse struct {
	Codes []FreeCode `json:"codes"`
}
