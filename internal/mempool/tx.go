package mempool

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/echenim/Bedrock/hybrid/internal/crypto"
	"github.com/echenim/Bedrock/hybrid/internal/types"
)

// feeSize is the length of the little-endian fee prefix on a raw tx.
const feeSize = 8

var (
	ErrEmptyTx     = errors.New("mempool: empty payload")
	ErrTxTooLarge  = errors.New("mempool: payload exceeds max size")
	ErrTxMalformed = errors.New("mempool: malformed transaction")
)

// Tx is an opaque payload waiting for block inclusion.
//
// Wire format: [0:8] fee (uint64 LE), [8:] payload. The hash covers the
// whole encoding so two payloads with different fees are distinct.
type Tx struct {
	Hash    types.Hash
	Fee     uint64
	Payload []byte
	Raw     []byte
	Size    int
}

// EncodeTx builds the wire form of a payload with the given fee.
func EncodeTx(payload []byte, fee uint64) []byte {
	raw := make([]byte, feeSize+len(payload))
	binary.LittleEndian.PutUint64(raw[:feeSize], fee)
	copy(raw[feeSize:], payload)
	return raw
}

// TxHash returns the domain-separated hash of a raw transaction.
func TxHash(raw []byte) types.Hash {
	return crypto.HashDomain(types.DomainTx, raw)
}

// ParseTx decodes a raw transaction and checks it against maxBytes.
// A maxBytes of zero disables the size check.
func ParseTx(raw []byte, maxBytes int) (*Tx, error) {
	if len(raw) < feeSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTxMalformed, len(raw))
	}
	if len(raw) == feeSize {
		return nil, ErrEmptyTx
	}
	if maxBytes > 0 && len(raw) > maxBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrTxTooLarge, len(raw), maxBytes)
	}

	buf := make([]byte, len(raw))
	copy(buf, raw)
	return &Tx{
		Hash:    TxHash(buf),
		Fee:     binary.LittleEndian.Uint64(buf[:feeSize]),
		Payload: buf[feeSize:],
		Raw:     buf,
		Size:    len(buf),
	}, nil
}
