package models

import (
	"time"

	"github.com/lib/pq"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleFaculty UserRole = "FACULTY"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
	RoleParent  UserRole = "PARENT"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleFaculty, RoleTeacher, RoleStudent, RoleParent:
		return true
	}
	return false
}

// User represents an application user stored in the users table.
type User struct {
	ID            string         `db:"id" json:"id"`
	InstitutionID string         `db:"institution_id" json:"institution_id"`
	Email         string         `db:"email" json:"email"`
	PasswordHash  string         `db:"password_hash" json:"-"`
	FullName      string         `db:"full_name" json:"full_name"`
	Role          UserRole       `db:"role" json:"role"`
	Permissions   pq.StringArray `db:"permissions" json:"permissions"`
	Active        bool           `db:"active" json:"active"`
	LastLoginAt   *time.Time     `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	InstitutionID string
	Role          *UserRole
	Active        *bool
	Search        string
	Page          int
	PageSize      int
}

// CreateUserRequest is used by the admin tooling to provision accounts.
type CreateUserRequest struct {
	InstitutionID string   `json:"institution_id" validate:"required"`
	Email         string   `json:"email" validate:"required,email"`
	FullName      string   `json:"full_name" validate:"required"`
	Role          UserRole `json:"role" validate:"required,oneof=ADMIN FACULTY TEACHER STUDENT PARENT"`
	Password      string   `json:"password" validate:"required,min=8"`
	Permissions   []string `json:"permissions"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
