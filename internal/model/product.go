package model

import "github.com/shopspring/decimal"

type Rating struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

// Product mirrors the public catalog record.
type Product struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Rating      Rating          `json:"rating"`
}

type CartItem struct {
	ProductID int64           `json:"id"`
	Title     string          `json:"title"`
	Image     string          `json:"image,omitempty"`
	Category  string          `json:"category,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}
