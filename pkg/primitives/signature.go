package primitives

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrSignatureBatchShape is returned when the r, s and v arrays differ in length.
	ErrSignatureBatchShape = errors.New("signature batch length mismatch")
	// ErrInvalidRecoveryID is returned for a v value other than 0, 1, 27 or 28.
	ErrInvalidRecoveryID = errors.New("invalid signature recovery id")
	// ErrInvalidSignatureValues is returned when r or s is outside the secp256k1 range.
	ErrInvalidSignatureValues = errors.New("invalid signature values")
)

var (
	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// Signature is a single secp256k1 signature as stored by the authority contract.
type Signature struct {
	R [32]byte
	S [32]byte
	V uint8
}

// Bytes returns the 65 byte [R || S || V] form with V as stored.
func (s Signature) Bytes() []byte {
	out := make([]byte, crypto.SignatureLength)
	copy(out[:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[crypto.RecoveryIDOffset] = s.V
	return out
}

// SignatureFromBytes splits a 65 byte signature.
func SignatureFromBytes(b []byte) (Signature, error) {
	if len(b) != crypto.SignatureLength {
		return Signature{}, fmt.Errorf("invalid signature length: expected %d, got %d", crypto.SignatureLength, len(b))
	}
	var sig Signature
	copy(sig.R[:], b[:32])
	copy(sig.S[:], b[32:64])
	sig.V = b[crypto.RecoveryIDOffset]
	return sig, nil
}

// SignaturesFromRSV zips the parallel r, s and v arrays returned by a
// signature query into a batch, preserving their order.
func SignaturesFromRSV(r, s [][32]byte, v []byte) ([]Signature, error) {
	if len(r) != len(s) || len(r) != len(v) {
		return nil, fmt.Errorf("%w: r=%d s=%d v=%d", ErrSignatureBatchShape, len(r), len(s), len(v))
	}
	sigs := make([]Signature, len(r))
	for i := range r {
		sigs[i] = Signature{R: r[i], S: s[i], V: v[i]}
	}
	return sigs, nil
}

// RecoveredSignature is a signature together with its signer and its
// position in the original batch.
type RecoveredSignature struct {
	// Idx is the position in the batch returned by the contract. On-chain
	// verification keys off this position.
	Idx int
	// Signature is the low-s form of the batch entry.
	Signature Signature
	Signer    common.Address
}

// SignatureFailure reports a batch entry whose signer could not be recovered.
type SignatureFailure struct {
	Idx int
	Err error
}

func (f SignatureFailure) Error() string {
	return fmt.Sprintf("signature %d: %v", f.Idx, f.Err)
}

func (f SignatureFailure) Unwrap() error { return f.Err }

// RecoverSignatures recovers the signer of every signature over hash.
// A malformed entry is reported on its own and does not affect the others.
// Both results are ordered by Idx.
func RecoverSignatures(hash common.Hash, sigs []Signature) ([]RecoveredSignature, []SignatureFailure) {
	recovered := make([]RecoveredSignature, 0, len(sigs))
	var failures []SignatureFailure

	for idx, sig := range sigs {
		low, signer, err := recoverSigner(hash, sig)
		if err != nil {
			failures = append(failures, SignatureFailure{Idx: idx, Err: err})
			continue
		}
		recovered = append(recovered, RecoveredSignature{Idx: idx, Signature: low, Signer: signer})
	}
	return recovered, failures
}

// recoverSigner returns the low-s form of sig and its signer. A high s is
// mirrored to N-s with the recovery id flipped, which recovers the same key.
func recoverSigner(hash common.Hash, sig Signature) (Signature, common.Address, error) {
	v := sig.V
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return Signature{}, common.Address{}, fmt.Errorf("%w: %d", ErrInvalidRecoveryID, sig.V)
	}

	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	if s.Cmp(secp256k1HalfN) > 0 && s.Cmp(secp256k1N) < 0 {
		s.Sub(secp256k1N, s)
		s.FillBytes(sig.S[:])
		v ^= 1
		if sig.V >= 27 {
			sig.V = 27 + v
		} else {
			sig.V = v
		}
	}
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return Signature{}, common.Address{}, ErrInvalidSignatureValues
	}

	raw := sig.Bytes()
	raw[crypto.RecoveryIDOffset] = v
	pub, err := crypto.SigToPub(hash.Bytes(), raw)
	if err != nil {
		return Signature{}, common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return sig, crypto.PubkeyToAddress(*pub), nil
}
