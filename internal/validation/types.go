package validation

// AddressInput is the address object of POST /api/user/add-address.
type AddressInput struct {
	FullName    string `json:"fullName" validate:"required"`
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Pincode     int    `json:"pincode" validate:"required,gt=0"`
	Area        string `json:"area" validate:"required"`
	City        string `json:"city" validate:"required"`
	State       string `json:"state" validate:"required"`
}

// AddAddressRequest is the payload for POST /api/user/add-address
type AddAddressRequest struct {
	Address AddressInput `json:"address" validate:"required"`
}

// OrderItem is a single (product, quantity) line.
type OrderItem struct {
	Product  string `json:"product" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1"` // must be >= 1
}

// CreateOrderRequest is the payload for POST /api/order/create
type CreateOrderRequest struct {
	Address string      `json:"address" validate:"required"`          // address id owned by the caller
	Items   []OrderItem `json:"items" validate:"required,min=1,dive"` // at least one item
}

// ProductForm is the multipart form for product add and update. Images are
// read from the form separately.
type ProductForm struct {
	Name        string  `form:"name" validate:"required"`
	Description string  `form:"description" validate:"required"`
	Category    string  `form:"category" validate:"required"`
	Price       float64 `form:"price" validate:"required,gt=0"`
	OfferPrice  float64 `form:"offerPrice" validate:"required,gt=0"`
}
