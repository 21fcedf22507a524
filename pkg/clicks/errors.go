package clicks

import "errors"

// Domain-level error values returned by the click billing service.
var (
	ErrDuplicateClick       = errors.New("click already billed for this offer and client")
	ErrOfferNotFound        = errors.New("offer not found")
	ErrInvalidOfferID       = errors.New("invalid offer id")
	ErrInvalidClientID      = errors.New("invalid client id")
	ErrInvalidClickType     = errors.New("invalid click type")
	ErrInvalidPolicy        = errors.New("invalid billing policy")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)
