package users

// User mirrors an identity-provider account. ID is issued by the provider.
type User struct {
	ID       string `dynamodbav:"user_id" json:"_id"` // PK
	Name     string `dynamodbav:"name" json:"name"`
	Email    string `dynamodbav:"email" json:"email"`
	ImageURL string `dynamodbav:"image_url" json:"imageUrl"`
}
