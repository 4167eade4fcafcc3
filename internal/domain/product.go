package domain

// Variant is a named size/option of a product carrying its own price and
// promotional discount. A discount of 0 means none.
type Variant struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Discount int64  `json:"discount"`
}

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CategoryID string    `json:"category_id"`
	Price      int64     `json:"price"`
	Discount   int64     `json:"discount"`
	Deposit    int64     `json:"deposit"`
	ImageURL   string    `json:"image_url"`
	Active     bool      `json:"active"`
	Variants   []Variant `json:"variants,omitempty"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
