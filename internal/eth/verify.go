package eth

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/openclave/walletauth/core"
)

// SigningMethod identifies the wallet signing convention that produced a
// signature.
type SigningMethod string

const (
	// MethodPersonalSign is EIP-191 personal_sign: the message is hashed
	// with the "\x19Ethereum Signed Message:\n" prefix.
	MethodPersonalSign SigningMethod = "personal_sign"

	// MethodEthSign is the legacy eth_sign convention: a raw keccak hash
	// of the message with no prefix. More phishable; callers log its use.
	MethodEthSign SigningMethod = "eth_sign"

	// MethodTypedData is EIP-712 typed data with a minimal schema wrapping
	// the challenge string.
	MethodTypedData SigningMethod = "typed_data"
)

// SignatureLength is the expected length of a secp256k1 wallet signature.
const SignatureLength = 65

// typedDataDomainName and version pin the EIP-712 domain used for the
// typed-data fallback. Wallets that sign typed data must use this schema.
const (
	typedDataDomainName    = "walletauth"
	typedDataDomainVersion = "1"
)

// hasher produces the digest a given signing convention commits to.
type hasher struct {
	method SigningMethod
	hash   func(message string) ([]byte, error)
}

var hashers = []hasher{
	{MethodPersonalSign, func(m string) ([]byte, error) {
		return accounts.TextHash([]byte(m)), nil
	}},
	{MethodEthSign, func(m string) ([]byte, error) {
		return crypto.Keccak256([]byte(m)), nil
	}},
	{MethodTypedData, TypedDataHash},
}

// Verify recovers the signer of message from a hex-encoded wallet signature,
// trying each signing convention in order and returning on the first one
// whose recovered address matches the claimed address. Comparison is
// case-insensitive. All conventions failing yields
// core.ErrSignatureVerificationFailed.
func Verify(address, message, signature string) (common.Address, SigningMethod, error) {
	if !common.IsHexAddress(address) {
		return common.Address{}, "", core.ErrInvalidAddress
	}
	claimed := common.HexToAddress(address)

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, "", fmt.Errorf("decode signature: %w", core.ErrSignatureVerificationFailed)
	}
	if len(sig) != SignatureLength {
		return common.Address{}, "", fmt.Errorf("signature must be %d bytes: %w", SignatureLength, core.ErrSignatureVerificationFailed)
	}

	// Wallets emit V as 27/28; crypto.SigToPub expects 0/1.
	sig = normalizeV(sig)

	for _, h := range hashers {
		digest, err := h.hash(message)
		if err != nil {
			continue
		}
		recovered, err := recoverAddress(digest, sig)
		if err != nil {
			continue
		}
		if recovered == claimed {
			return recovered, h.method, nil
		}
	}

	return common.Address{}, "", core.ErrSignatureVerificationFailed
}

func normalizeV(sig []byte) []byte {
	if sig[SignatureLength-1] < 27 {
		return sig
	}
	out := bytes.Clone(sig)
	out[SignatureLength-1] -= 27
	return out
}

func recoverAddress(digest, sig []byte) (common.Address, error) {
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// TypedDataHash computes the EIP-712 digest of the minimal Challenge schema
// wrapping the challenge message.
func TypedDataHash(message string) ([]byte, error) {
	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
			},
			"Challenge": []apitypes.Type{
				{Name: "message", Type: "string"},
			},
		},
		PrimaryType: "Challenge",
		Domain: apitypes.TypedDataDomain{
			Name:    typedDataDomainName,
			Version: typedDataDomainVersion,
		},
		Message: apitypes.TypedDataMessage{
			"message": message,
		},
	}

	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, err
	}
	return digest, nil
}

// NormalizeAddress lower-cases a hex address for use as a storage key.
// Returns core.ErrInvalidAddress for anything that is not an address.
func NormalizeAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", core.ErrInvalidAddress
	}
	return strings.ToLower(common.HexToAddress(address).Hex()), nil
}
