package addresses

// Address is a buyer-owned shipping address.
type Address struct {
	ID          string `dynamodbav:"address_id" json:"_id"`
	UserID      string `dynamodbav:"user_id" json:"userId"` // GSI user_id-index
	FullName    string `dynamodbav:"full_name" json:"fullName"`
	PhoneNumber string `dynamodbav:"phone_number" json:"phoneNumber"`
	Pincode     int    `dynamodbav:"pincode" json:"pincode"`
	Area        string `dynamodbav:"area" json:"area"`
	City        string `dynamodbav:"city" json:"city"`
	State       string `dynamodbav:"state" json:"state"`
}
