package domain

// CartLine is one (product, variant) entry in a customer's cart. UnitPrice is
// resolved once at add time and stays frozen even if the catalog changes.
type CartLine struct {
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	VariantName string `json:"variant_name,omitempty"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	ImageURL    string `json:"image_url,omitempty"`
}
