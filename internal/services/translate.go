package services

import (
	"errors"
	"strings"

	"adpazar/internal/apperr"
	"adpazar/internal/store"
)

// translate classifies a store error into a protocol error kind. Storage
// failures never cross the dispatch boundary unclassified.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, err.Error(), err)
	case errors.Is(err, store.ErrAlreadyExists):
		return apperr.Wrap(apperr.KindAlreadyExists, err.Error(), err)
	case errors.Is(err, store.ErrInsufficientFunds):
		return apperr.Wrap(apperr.KindInsufficientFunds, "insufficient funds", err)
	case errors.Is(err, store.ErrAdNotAvailable):
		return apperr.Wrap(apperr.KindAdNotAvailable, err.Error(), err)
	case errors.Is(err, store.ErrSelfPurchase):
		return apperr.Wrap(apperr.KindPermissionDenied, "you cannot buy your own ad", err)
	case errors.Is(err, store.ErrDuplicateAd):
		return apperr.Wrap(apperr.KindDuplicateAd, err.Error(), err)
	case errors.Is(err, store.ErrDiscountNotUsable), errors.Is(err, store.ErrInvalidTransition):
		return apperr.Wrap(apperr.KindValidation, err.Error(), err)
	case strings.Contains(err.Error(), "insufficient"):
		return apperr.Wrap(apperr.KindInsufficientFunds, "insufficient funds", err)
	default:
		return apperr.Wrap(apperr.KindDatabase, "a storage error occurred", err)
	}
}
