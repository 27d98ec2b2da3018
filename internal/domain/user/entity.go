// internal/domain/user/entity.go
package user

// User is the in-memory projection of the authenticated principal. It is
// owned by the session service, never written to durable storage, and
// cleared whenever the session is destroyed.
type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// DisplayName is what the pages show in the header chip.
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return ""
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}
