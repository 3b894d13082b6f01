/**
 * @description
 * This file defines the error surface of the transfer engine. Validation and
 * business failures are sentinel errors so callers can branch with errors.Is;
 * fraud blocks carry the individual check results in a typed error.
 */

package app

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidAmount         = errors.New("transfer amount is invalid")
	ErrUnsupportedCurrency   = errors.New("currency is not supported")
	ErrCurrencyMismatch      = errors.New("currency does not match account currency")
	ErrSameAccount           = errors.New("source and destination accounts are the same")
	ErrTransferBlocked       = errors.New("transfer blocked by fraud screening")
	ErrTransferFailed        = errors.New("transfer failed")
	ErrIdempotencyKeyTooLong = errors.New("idempotency key exceeds maximum length")
	ErrIdempotencyConflict   = errors.New("idempotency key was already used with a different request")
	ErrRequestInProgress     = errors.New("a request with this idempotency key is already in progress")
)

// FraudBlockedError reports which screening checks failed for a blocked
// transfer. It matches ErrTransferBlocked under errors.Is.
type FraudBlockedError struct {
	Checks []CheckResult
}

func (e *FraudBlockedError) Error() string {
	var failed []string
	for _, check := range e.Checks {
		if !check.Passed {
			failed = append(failed, check.Name)
		}
	}
	return fmt.Sprintf("transfer blocked by fraud screening: %s", strings.Join(failed, ", "))
}

func (e *FraudBlockedError) Is(target error) bool {
	return target == ErrTransferBlocked
}

// FailedChecks returns only the checks that did not pass.
func (e *FraudBlockedError) FailedChecks() []CheckResult {
	var failed []CheckResult
	for _, check := range e.Checks {
		if !check.Passed {
			failed = append(failed, check)
		}
	}
	return failed
}
