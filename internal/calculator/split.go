package calculator

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/mmynk/trustsplit/internal/errors"
)

// ValidateShares checks a proposal's per-participant shares against its total.
// Every share must be non-negative and they must sum to total exactly.
func ValidateShares(total *big.Int, participants []common.Address, shares []*big.Int) error {
	if len(participants) == 0 {
		return apperrors.New(apperrors.CodeNoParticipants, "an expense needs at least one participant")
	}
	if len(shares) != len(participants) {
		return apperrors.New(apperrors.CodeShareMismatch,
			fmt.Sprintf("got %d shares for %d participants", len(shares), len(participants)))
	}

	sum := new(big.Int)
	for i, s := range shares {
		if s == nil || s.Sign() < 0 {
			return apperrors.WithMetadata(apperrors.CodeShareMismatch, "shares must not be negative",
				map[string]string{"participant": participants[i].Hex()})
		}
		sum.Add(sum, s)
	}
	if sum.Cmp(total) != 0 {
		return apperrors.WithMetadata(apperrors.CodeShareMismatch, "shares do not add up to the expense amount",
			map[string]string{"sum": sum.String(), "amount": total.String()})
	}
	return nil
}

// SplitEqually divides total among the participants in wei. The remainder of
// the division goes one wei at a time to the first participants, so the shares
// always sum to total.
func SplitEqually(total *big.Int, participants []common.Address) ([]*big.Int, error) {
	if len(participants) == 0 {
		return nil, apperrors.New(apperrors.CodeNoParticipants, "an expense needs at least one participant")
	}
	if total == nil || total.Sign() <= 0 {
		return nil, apperrors.New(apperrors.CodeInvalidAmount, "amount must be positive")
	}

	n := big.NewInt(int64(len(participants)))
	base, rem := new(big.Int).QuoRem(total, n, new(big.Int))

	shares := make([]*big.Int, len(participants))
	extra := rem.Int64()
	for i := range shares {
		shares[i] = new(big.Int).Set(base)
		if int64(i) < extra {
			shares[i].Add(shares[i], big.NewInt(1))
		}
	}
	return shares, nil
}
