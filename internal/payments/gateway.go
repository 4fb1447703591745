package payments

import (
	"context"
	"fmt"
)

// Gateway is the contract against the external payment provider. Both
// operations are stateless adapters over the provider's HTTP API: Initiate
// opens a checkout session, Verify asks for the settlement outcome of a
// reference and is safe to call any number of times.
type Gateway interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	Verify(ctx context.Context, txRef string) (*VerifyResult, error)
}

type InitiateRequest struct {
	Amount      string // decimal string, e.g. "150.00"
	Currency    string
	Email       string
	FirstName   string
	LastName    string
	TxRef       string
	CallbackURL string
	ReturnURL   string
}

type InitiateResult struct {
	ProviderStatus string
	CheckoutURL    string
}

type VerifyResult struct {
	ProviderStatus string // provider vocabulary: success, failed, cancelled, ...
	GatewayRef     string
	Method         string
}

// GatewayError means the attempt could not be confirmed with the provider:
// network failure, timeout, or a non-2xx response. It says nothing about
// whether the payment itself succeeded or failed — callers must not treat
// it as a declined payment.
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway %s: http=%d body=%s", e.Op, e.StatusCode, e.Body)
}

func (e *GatewayError) Unwrap() error { return e.Err }
