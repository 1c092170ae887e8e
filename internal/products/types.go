package products

// Product is a seller-owned catalog entry. Date is the last write time in
// epoch milliseconds.
type Product struct {
	ID          string   `dynamodbav:"product_id" json:"_id"` // PK
	UserID      string   `dynamodbav:"user_id" json:"userId"` // owning seller
	Name        string   `dynamodbav:"name" json:"name"`
	Description string   `dynamodbav:"description" json:"description"`
	Category    string   `dynamodbav:"category" json:"category"`
	Price       float64  `dynamodbav:"price" json:"price"`
	OfferPrice  float64  `dynamodbav:"offer_price" json:"offerPrice"`
	Image       []string `dynamodbav:"image" json:"image"`
	Date        int64    `dynamodbav:"date" json:"date"`
}
