package tips

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	errNilState = errors.New("tips engine: state not configured")

	ErrAlreadyInitialized    = errors.New("tips: contract is already initialized")
	ErrNotInitialized        = errors.New("tips: contract is not initialized")
	ErrInvalidRecipient      = errors.New("tips: invalid recipient")
	ErrInvalidPriceFeed      = errors.New("tips: invalid price feed address")
	ErrInvalidAccount        = errors.New("tips: invalid account")
	ErrZeroAmount            = errors.New("tips: amount must be positive")
	ErrArithmeticOverflow    = errors.New("tips: arithmetic overflow")
	ErrInvalidFeeRate        = errors.New("tips: fee rate exceeds scale")
	ErrOracleUnavailable     = errors.New("tips: price oracle unavailable")
	ErrUnauthorized          = errors.New("tips: unauthorized")
	ErrNothingToWithdraw     = errors.New("tips: nothing to withdraw")
	ErrCannotRemoveLastAdmin = errors.New("tips: cannot remove last admin")
	ErrRenounceOthers        = errors.New("AccessControl: can only renounce roles for self")
	ErrInsufficientFunds     = errors.New("tips: insufficient balance")
	ErrInvalidUpgrade        = errors.New("tips: implementation version must increase")
	ErrContractAddressNotSet = errors.New("tips: contract address not configured")
	ErrLedgerInsolvent       = errors.New("tips: ledger exceeds contract balance")
)

// UnauthorizedError reports the account and role that failed a role check.
// Its message follows the AccessControl revert format so callers that match
// on the string keep working.
type UnauthorizedError struct {
	Account common.Address
	Role    common.Hash
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("AccessControl: account %s is missing role %s", hexAddr(e.Account), e.Role.Hex())
}

// Is lets errors.Is(err, ErrUnauthorized) match.
func (e *UnauthorizedError) Is(target error) bool {
	return target == ErrUnauthorized
}

func hexAddr(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
