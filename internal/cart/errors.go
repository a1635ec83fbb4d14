package cart

import "errors"

// Error kinds. Every domain error wraps exactly one of these so callers can
// branch with errors.Is without knowing the specific error.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
)

var (
	ErrCartNotFound     = newKindError(ErrNotFound, "cart not found")
	ErrProductNotFound  = newKindError(ErrNotFound, "product not found")
	ErrReminderNotFound = newKindError(ErrNotFound, "reminder not found")

	ErrAlreadyFinalized = newKindError(ErrConflict, "cart is already finalized")

	ErrInvalidCustomer = newKindError(ErrValidation, "customer email is required")
	ErrInvalidProduct  = newKindError(ErrValidation, "product id is required")
	ErrInvalidQuantity = newKindError(ErrValidation, "quantity must be at least 1")
)

type kindError struct {
	msg  string
	kind error
}

func newKindError(kind error, msg string) error {
	return &kindError{msg: msg, kind: kind}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// StoreError wraps a persistence failure. The surrounding transaction is
// rolled back before it reaches the caller.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "store: " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error { return e.Err }

// WrapStoreError tags err as a StoreError unless it is nil, already a
// StoreError, or one of the domain kinds.
func WrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrValidation) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
