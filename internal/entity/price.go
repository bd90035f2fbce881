package entity

import "time"

// DrinkPrice is a single (drink, price) observation extracted from one
// photographed menu. Lists keep extraction order; first-match rules in the
// vocab package depend on it.
type DrinkPrice struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// DrinkPriceStats are index-based quartiles over a price sample for one
// drink name. Derived on demand, never authoritative.
type DrinkPriceStats struct {
	MinPrice float64 `json:"min_price"`
	MaxPrice float64 `json:"max_price"`
	Q1       float64 `json:"q1"`
	Median   float64 `json:"median"`
	Q3       float64 `json:"q3"`
}

// PriceRecord is the durable price-history record the pipeline commits to
// the remote record store on successful extraction.
type PriceRecord struct {
	Cafe       CafeSnapshot `json:"cafe"`
	Drinks     []DrinkPrice `json:"drinks"`
	Note       string       `json:"note,omitempty"`
	ImageBytes []byte       `json:"image_bytes,omitempty"`
	RecordedAt time.Time    `json:"recorded_at"`
}
