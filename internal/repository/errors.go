package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrAlreadyEnrolled is returned when the student already belongs to the section.
	ErrAlreadyEnrolled = errors.New("student already enrolled")
	// ErrSectionFull is returned when the section has reached its capacity.
	ErrSectionFull = errors.New("section is full")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
)

const pqUniqueViolation = "23505"

// IsUniqueViolation reports whether err came from a Postgres unique constraint.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return errors.Is(err, ErrDuplicate)
}
