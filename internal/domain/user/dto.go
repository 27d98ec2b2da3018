// internal/domain/user/dto.go
package user

// LoginRequest for user login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest for user registration
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

// UpdateProfileRequest for profile updates
type UpdateProfileRequest struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// AuthResponse is the login/register/refresh envelope. Success is a pointer
// because some backend branches omit the flag entirely; only an explicit
// false counts as a failure signal.
type AuthResponse struct {
	Success   *bool  `json:"success,omitempty"`
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
	User      *User  `json:"user,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Failed reports whether the backend explicitly flagged the attempt as
// unsuccessful.
func (r *AuthResponse) Failed() bool {
	return r.Success != nil && !*r.Success
}

// ServerMessage returns the backend-supplied message, preferring message
// over error.
func (r *AuthResponse) ServerMessage() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Error
}

// ProfileResponse wraps GET /user/me. Some deployments return the user
// nested, some return it bare; the service handles both.
type ProfileResponse struct {
	User *User `json:"user,omitempty"`
}
