// Package wallet defines the signing capability the checkout needs and
// local key implementations of it.
package wallet

import (
	"context"
	"errors"

	"github.com/vitwit/x402-checkout/types"
)

var (
	// ErrNotConnected is returned when the wallet has no active account.
	ErrNotConnected = errors.New("wallet not connected")

	// ErrUserRejected is returned when the user declines to sign.
	ErrUserRejected = errors.New("user rejected the request")
)

// Wallet signs transactions on behalf of a single account.
type Wallet interface {
	IsConnected() bool
	PublicAddress() string
	SignTransaction(ctx context.Context, tx *types.UnsignedTransaction) (*types.SignedTransaction, error)
}

// ApproveFunc is asked before a local wallet signs. Returning an error, for
// example ErrUserRejected, aborts signing.
type ApproveFunc func(ctx context.Context, tx *types.UnsignedTransaction) error

// Option configures a local wallet.
type Option func(*options)

type options struct {
	approve ApproveFunc
}

// WithApproval installs a hook that runs before every signature.
func WithApproval(fn ApproveFunc) Option {
	return func(o *options) {
		o.approve = fn
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) check(ctx context.Context, tx *types.UnsignedTransaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.approve != nil {
		return o.approve(ctx, tx)
	}
	return nil
}
