package domain

// User identifies an authenticated board member.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
