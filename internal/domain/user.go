package domain

import "time"

// Role 用户角色（与后端 role 枚举一致）
type Role string

const (
	RoleSuperadmin    Role = "SUPERADMIN"
	RoleStaffAdmin    Role = "STAFF_ADMIN"
	RoleDataCollector Role = "DATA_COLLECTOR"
	RoleClient        Role = "CLIENT"
	RoleGuest         Role = "GUEST"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperadmin, RoleStaffAdmin, RoleDataCollector, RoleClient, RoleGuest:
		return true
	}
	return false
}

// User is the grid's mirror of one row from the collection endpoint.
// Rows are only ever mirrored here; the client never originates one.
// UserAccount is immutable after creation and is therefore not part of
// the editable field set.
type User struct {
	ID          string     `json:"id"`
	UserAccount string     `json:"user_account"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Nickname    string     `json:"nickname"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	Company     string     `json:"company"`
	Role        Role       `json:"role"`
	IsActive    bool       `json:"is_active"`
	IsOnline    bool       `json:"is_online"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	DateJoined  time.Time  `json:"date_joined"`
}

// DisplayName prefers the nickname, then "First Last", then the account.
func (u *User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	if u.FirstName != "" || u.LastName != "" {
		name := u.FirstName
		if u.LastName != "" {
			if name != "" {
				name += " "
			}
			name += u.LastName
		}
		return name
	}
	return u.UserAccount
}

// UserDraft is the editable-field snapshot held by an inline edit session
// and the body of a partial update. Nil means "leave unchanged" on the wire;
// the draft buffer always populates every field from the row it was
// snapshotted from.
type UserDraft struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Nickname  *string `json:"nickname,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Company   *string `json:"company,omitempty"`
	Role      *Role   `json:"role,omitempty"`
	IsActive  *bool   `json:"is_active,omitempty"`
}

// DraftOf snapshots u's editable fields into a fully populated draft.
func DraftOf(u *User) UserDraft {
	role := u.Role
	active := u.IsActive
	return UserDraft{
		FirstName: strPtr(u.FirstName),
		LastName:  strPtr(u.LastName),
		Nickname:  strPtr(u.Nickname),
		Email:     strPtr(u.Email),
		Phone:     strPtr(u.Phone),
		Company:   strPtr(u.Company),
		Role:      &role,
		IsActive:  &active,
	}
}

func strPtr(s string) *string { return &s }
