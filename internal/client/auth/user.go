package auth

import (
	"encoding/json"
	"strings"

	"github.com/atinyakov/sockcs/internal/client/jsonx"
)

// User is the signed-in account as returned by /api/accounts/me/.
type User struct {
	ID          jsonx.ID `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	IsStaff     bool     `json:"is_staff"`
	IsSuperuser bool     `json:"is_superuser"`
	Role        string   `json:"role,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// rawUser tolerates flags sent as 0/1 or strings.
type rawUser struct {
	ID          jsonx.ID   `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	IsStaff     jsonx.Bool `json:"is_staff"`
	IsSuperuser jsonx.Bool `json:"is_superuser"`
	Role        string     `json:"role"`
	Roles       []string   `json:"roles"`
}

// NormalizeUser decodes a profile payload and guarantees
// IsStaff == IsSuperuser || IsStaff. A null payload yields nil.
func NormalizeUser(raw json.RawMessage) (*User, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var r rawUser
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	u := &User{
		ID:          r.ID,
		Username:    r.Username,
		Email:       r.Email,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		IsSuperuser: bool(r.IsSuperuser),
		IsStaff:     bool(r.IsSuperuser) || bool(r.IsStaff),
		Role:        r.Role,
		Roles:       r.Roles,
	}
	return u, nil
}

// HasStaffRole reports staff access from the role fields some backends send
// instead of is_staff.
func (u *User) HasStaffRole() bool {
	if u == nil {
		return false
	}
	if u.IsStaff || isStaffRole(u.Role) {
		return true
	}
	for _, r := range u.Roles {
		if isStaffRole(r) {
			return true
		}
	}
	return false
}

func isStaffRole(r string) bool { return r == "staff" || r == "admin" }

// DisplayName is "First Last" when either is set, else the username, else the email.
func DisplayName(u *User) string {
	if u == nil {
		return ""
	}
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	if first != "" || last != "" {
		return strings.TrimSpace(first + " " + last)
	}
	return jsonx.FirstString(u.Username, u.Email)
}
