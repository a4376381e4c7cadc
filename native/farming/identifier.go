package farming

import (
	"encoding/binary"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	// PoolSalt is the default domain separator mixed into pool id derivation.
	PoolSalt = "YIELD_FARMING_POOL"
	// userSalt separates the user hash helper from other keccak domains.
	userSalt = "YIELD_FARMING_USER"
)

// DerivePoolID computes the deterministic identifier for a pool created with
// the supplied parameters at the supplied instant. Identical inputs at the
// same second produce the same identifier.
func DerivePoolID(stakeToken string, rewardRate *big.Int, createdAt uint64, domainSalt string) PoolID {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], createdAt)
	rate := big.NewInt(0)
	if rewardRate != nil {
		rate = rewardRate
	}
	digest := ethcrypto.Keccak256Hash(
		[]byte(strings.ToUpper(strings.TrimSpace(stakeToken))),
		packAmount(rate),
		ts[:],
		[]byte(domainSalt),
	)
	return PoolID(digest)
}

// UserHash derives the stable per-pool user identifier exposed on the read
// surface for external indexers.
func UserHash(user [20]byte, pool PoolID) [32]byte {
	return ethcrypto.Keccak256Hash(user[:], pool[:], []byte(userSalt))
}
