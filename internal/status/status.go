package status

import "errors"

var (
	ErrInsufficientTickets = errors.New("settlement: insufficient tickets")
	ErrDiscountExpired     = errors.New("settlement: discount window has expired")
	ErrDiscountDepleted    = errors.New("settlement: discount tickets sold out")
	ErrLockExpired         = errors.New("settlement: purchase lock expired before payment")
	ErrTransactionNotFound = errors.New("settlement: transaction reference not found")
	ErrTierNotFound        = errors.New("settlement: ticket tier not found")
	ErrEventNotFound       = errors.New("settlement: event not found")
	ErrAlreadySettled      = errors.New("settlement: transaction already settled")
	ErrRetryKeyExpired     = errors.New("transfer: retry key not found or expired")
	ErrMalformedPayload    = errors.New("settlement: malformed job payload")
)

// businessErrs are rejections of the purchase itself. The charge-success
// flow routes them to the refund path instead of letting the queue retry.
var businessErrs = []error{
	ErrInsufficientTickets,
	ErrDiscountExpired,
	ErrDiscountDepleted,
	ErrLockExpired,
}

// IsBusinessRejection reports whether err is a business-rule rejection
// rather than an infrastructure failure.
func IsBusinessRejection(err error) bool {
	for _, e := range businessErrs {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
