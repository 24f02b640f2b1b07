package lending

import (
	"context"
	"errors"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/crypto"
)

var errListingUnsupported = errors.New("lending engine: state does not support listing")

type stateLister interface {
	ListStakes() ([]StakeEntry, error)
	ListLoans() ([]LoanEntry, error)
}

// ListStakes returns every open stake ordered by account.
func (e *Engine) ListStakes(ctx context.Context) ([]StakeEntry, error) {
	var out []StakeEntry
	err := e.run(ctx, "list_stakes", "", crypto.Address{}, func(context.Context) error {
		lister, ok := e.state.(stateLister)
		if !ok {
			return errListingUnsupported
		}
		var err error
		out, err = lister.ListStakes()
		return err
	})
	return out, err
}

// ListLoans returns every loan record ordered by account.
func (e *Engine) ListLoans(ctx context.Context) ([]LoanEntry, error) {
	var out []LoanEntry
	err := e.run(ctx, "list_loans", "", crypto.Address{}, func(context.Context) error {
		lister, ok := e.state.(stateLister)
		if !ok {
			return errListingUnsupported
		}
		var err error
		out, err = lister.ListLoans()
		return err
	})
	return out, err
}
