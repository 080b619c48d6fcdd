package balance

// RejectReason explains a failed validation.
type RejectReason string

const (
	RejectBelowMinimum      RejectReason = "BELOW_MINIMUM"
	RejectInsufficientFunds RejectReason = "INSUFFICIENT_FUNDS"
)

// Result is the outcome of a pre-trade balance check.
type Result struct {
	OK     bool
	Reason RejectReason
}

// Ok reports a passing result.
func Ok() Result { return Result{OK: true} }

// Rejected builds a failing result.
func Rejected(reason RejectReason) Result { return Result{Reason: reason} }

// Validate checks a proposed order amount against the exchange minimum and
// the available balance. Pure and synchronous; used both for pre-flight
// validation and as the hard gate before every placement. The minimum check
// runs first so an amount that fails both reports BelowMinimum.
func Validate(amount, minNotional, available float64) Result {
	if amount < minNotional {
		return Rejected(RejectBelowMinimum)
	}
	if amount > available {
		return Rejected(RejectInsufficientFunds)
	}
	return Ok()
}
