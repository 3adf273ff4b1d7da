package user

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Roles
const (
	// Admin portal
	RoleAdmin            = "admin:"
	RoleAdminOwner       = "admin:owner"
	RoleAdminCoordinator = "admin:coordinator"

	// Student portal
	RoleStudent = "student:"
)

var (
	AdminRoles   = []string{RoleAdmin, RoleAdminOwner, RoleAdminCoordinator}
	StudentRoles = []string{RoleStudent}
	AllRoles     = make([]string, 0, 4)

	rolePriorities = map[string]int{
		// Admins: 30 - 21
		RoleAdminOwner:       30,
		RoleAdminCoordinator: 29,
		RoleAdmin:            21,

		// Students: 10 - 1
		RoleStudent: 1,
	}
)

func init() {
	AllRoles = append(AllRoles, AdminRoles...)
	AllRoles = append(AllRoles, StudentRoles...)
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type User struct {
	ID           int       `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
	LastLogin    time.Time `json:"last_login" db:"last_login"`
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) roleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.roleStartsWith(RoleAdmin)
}

func (u *User) IsStudent() bool {
	return u.roleStartsWith(RoleStudent)
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required,min=8"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

// UpdateUser defines what information may be provided to modify an existing User.
// Nil/empty fields are left untouched.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty,min=8,required_with=PasswordConfirm"`
	PasswordConfirm string   `json:"password_confirm" validate:"eqfield=Password"`
}

type QueryFilter struct {
	Search   string // matches Name, Username or Email
	IsActive *bool
	Roles    []string
}
