// Package service implements the authentication and access-control logic of medstore.
package service

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/prn-tf/medstore/internal/domain"
	"github.com/prn-tf/medstore/internal/repository"
)

// storeError translates a repository failure into a domain error.
// Not-found and conflict keep their meaning; everything else is a store fault.
func storeError(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return domain.NewDomainError(domain.ErrNotFound, "no such account", resource)
	case errors.Is(err, repository.ErrConflict):
		return domain.NewDomainError(domain.ErrConflict, "username already taken", resource)
	default:
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
}

// unavailable wraps any failure as a store fault.
func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

// accountRef names an account by id in error messages.
func accountRef(id int64) string {
	return "account " + strconv.FormatInt(id, 10)
}
