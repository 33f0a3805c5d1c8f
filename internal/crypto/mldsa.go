package crypto

import (
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/echenim/Bedrock/hybrid/internal/types"
)

// ErrSignerMismatch is returned when a signature is requested for an
// identity other than the one the key belongs to.
var ErrSignerMismatch = errors.New("crypto: signer identity does not match key")

// scheme is ML-DSA-65 (FIPS 204, NIST security level 3).
var scheme = mldsa65.Scheme()

// PublicKey is a packed ML-DSA-65 public key.
type PublicKey []byte

// PrivateKey is an ML-DSA-65 signing key.
type PrivateKey struct {
	sk  sign.PrivateKey
	pub PublicKey
}

// SeedSize is the length of the seed accepted by KeypairFromSeed.
func SeedSize() int { return scheme.SeedSize() }

// GenerateKeypair creates a new ML-DSA-65 key pair.
func GenerateKeypair() (PublicKey, *PrivateKey, error) {
	pk, sk, err := scheme.GenerateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("generate keypair: %w", err)
	}
	return wrapKeys(pk, sk)
}

// KeypairFromSeed derives a key pair deterministically from seed, which
// must be SeedSize() bytes.
func KeypairFromSeed(seed []byte) (PublicKey, *PrivateKey, error) {
	if len(seed) != scheme.SeedSize() {
		return nil, nil, fmt.Errorf("invalid seed length: got %d, want %d", len(seed), scheme.SeedSize())
	}
	pk, sk := scheme.DeriveKey(seed)
	return wrapKeys(pk, sk)
}

// PrivateKeyFromBytes restores a key written by PrivateKey.Bytes.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	sk, err := scheme.UnmarshalBinaryPrivateKey(b)
	if err != nil {
		return nil, fmt.Errorf("unmarshal private key: %w", err)
	}
	pk, ok := sk.Public().(sign.PublicKey)
	if !ok {
		return nil, errors.New("unmarshal private key: no public key")
	}
	_, priv, err := wrapKeys(pk, sk)
	return priv, err
}

func wrapKeys(pk sign.PublicKey, sk sign.PrivateKey) (PublicKey, *PrivateKey, error) {
	pubBytes, err := pk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pubBytes, &PrivateKey{sk: sk, pub: pubBytes}, nil
}

// Public returns the packed public key.
func (k *PrivateKey) Public() PublicKey { return k.pub }

// Bytes returns the packed private key.
func (k *PrivateKey) Bytes() ([]byte, error) {
	return k.sk.MarshalBinary()
}

// Sign signs a message with an ML-DSA-65 private key.
func Sign(k *PrivateKey, message []byte) types.Signature {
	return scheme.Sign(k.sk, message, nil)
}

// Verify checks an ML-DSA-65 signature against a packed public key.
func Verify(pubKey PublicKey, message []byte, sig types.Signature) bool {
	if len(pubKey) != scheme.PublicKeySize() || len(sig) != scheme.SignatureSize() {
		return false
	}
	pk, err := scheme.UnmarshalBinaryPublicKey(pubKey)
	if err != nil {
		return false
	}
	return scheme.Verify(pk, message, sig, nil)
}

// AddressFromPubKey derives a validator address from a public key.
func AddressFromPubKey(pubKey PublicKey) types.Address {
	return types.Address(HashDomain(types.DomainAddress, pubKey))
}

// LocalSigner signs on behalf of the node's own validator identity.
type LocalSigner struct {
	key     *PrivateKey
	address types.Address
}

// NewLocalSigner wraps a private key.
func NewLocalSigner(key *PrivateKey) *LocalSigner {
	return &LocalSigner{key: key, address: AddressFromPubKey(key.Public())}
}

// Address returns the identity this signer signs for.
func (s *LocalSigner) Address() types.Address { return s.address }

// Sign signs message as signer. It refuses any identity but its own.
func (s *LocalSigner) Sign(message []byte, signer types.Address) (types.Signature, error) {
	if signer != s.address {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrSignerMismatch, s.address.Short(), signer.Short())
	}
	return Sign(s.key, message), nil
}

// Verifier checks ML-DSA-65 signatures from any validator.
type Verifier struct{}

// Verify implements signature verification over packed public keys.
func (Verifier) Verify(pubKey []byte, message []byte, sig types.Signature) bool {
	return Verify(pubKey, message, sig)
}
