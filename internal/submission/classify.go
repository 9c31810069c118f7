package submission

import (
	"fmt"
	"net/http"

	"github.com/example/order-payment-service/internal/payments"
)

// Class is the retry classification of one attempt.
type Class int

const (
	ClassSuccess Class = iota
	ClassRetryable
	ClassNonRetryable
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassRetryable:
		return "retryable"
	case ClassNonRetryable:
		return "non_retryable"
	default:
		return "unknown"
	}
}

// Decision is the classified result of one attempt. Err is nil on success
// and otherwise wraps ErrTransient or ErrPermanent.
type Decision struct {
	Class Class
	Err   error
}

// Classify maps a client result to a retry decision:
//
//	2xx                      success
//	>= 500, 429              retryable
//	other statuses           non-retryable
//	no response (err != nil) retryable
func Classify(resp *payments.Response, err error) Decision {
	if err != nil || resp == nil {
		if err == nil {
			err = fmt.Errorf("no response")
		}
		return Decision{Class: ClassRetryable, Err: WrapTransient(err)}
	}

	switch code := resp.StatusCode; {
	case resp.Success():
		return Decision{Class: ClassSuccess}
	case code >= http.StatusInternalServerError, code == http.StatusTooManyRequests:
		return Decision{Class: ClassRetryable, Err: WrapTransient(statusError(code))}
	default:
		return Decision{Class: ClassNonRetryable, Err: WrapPermanent(statusError(code))}
	}
}

func statusError(code int) error {
	return fmt.Errorf("payments api returned status %d", code)
}
