package models

// CatalogEntry is one product row of the catalog, priced for a shop.
// Prices are in centavos.
type CatalogEntry struct {
	RowKey         int64  `json:"rowKey" db:"row_key"`
	Barcode        string `json:"barcode" db:"barcode"`
	Category       string `json:"category" db:"category"`
	Flavor         string `json:"flavor" db:"flavor"`
	Shop           string `json:"shop" db:"shop"`
	Price          int64  `json:"price" db:"price"`
	PromoPrice     *int64 `json:"promoPrice,omitempty" db:"promo_price"`
	PromoThreshold *int   `json:"promoThreshold,omitempty" db:"promo_threshold"`
}

// UpsertProductRequest represents the request body for registering or editing a product
// Example: {"barcode": "7891234", "category": "Picolé", "flavor": "Morango", "price": "6,50", "promoPrice": "5,00", "promoThreshold": "3"}
// An empty rowKey registers a new product.
type UpsertProductRequest struct {
	RowKey         int64  `json:"rowKey,omitempty"`
	Barcode        string `json:"barcode"`
	Category       string `json:"category"`
	Flavor         string `json:"flavor"`
	Shop           string `json:"shop,omitempty"`
	Price          string `json:"price"`
	PromoPrice     string `json:"promoPrice,omitempty"`
	PromoThreshold string `json:"promoThreshold,omitempty"`
	AddToSale      bool   `json:"addToSale,omitempty"`
}
