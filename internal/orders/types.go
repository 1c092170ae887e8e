package orders

// StatusPlaced is the status of every order written by the order-created sync.
const StatusPlaced = "Order Placed"

// Item is one (product, quantity) line of an order.
type Item struct {
	Product  string `dynamodbav:"product" json:"product"`
	Quantity int    `dynamodbav:"quantity" json:"quantity"`
}

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	ID      string  `dynamodbav:"order_id" json:"_id"`   // PK
	UserID  string  `dynamodbav:"user_id" json:"userId"` // GSI user_id-index
	Items   []Item  `dynamodbav:"items" json:"items"`
	Amount  float64 `dynamodbav:"amount" json:"amount"`
	Address string  `dynamodbav:"address" json:"address"`
	Status  string  `dynamodbav:"status" json:"status"`
	Date    int64   `dynamodbav:"date" json:"date"` // epoch millis
}
