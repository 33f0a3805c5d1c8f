package mempool

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/echenim/Bedrock/hybrid/internal/power"
)

// BlockVersion tags the block payload layout.
const BlockVersion byte = 1

// blockHeaderSize is version(1) + height(8) + round(4) + two float64
// weights(16) + tx count(4).
const blockHeaderSize = 1 + 8 + 4 + 16 + 4

// ErrBlockMalformed is returned when a block payload cannot be decoded.
var ErrBlockMalformed = errors.New("mempool: malformed block data")

// BlockHeader is the fixed prefix of a block payload.
type BlockHeader struct {
	Height  uint64              `json:"height"`
	Round   uint32              `json:"round"`
	Weights power.HybridWeights `json:"weights"`
}

// EncodeBlock lays out a block payload: header, tx count, then each raw
// transaction prefixed by its uint32 LE length.
func EncodeBlock(h BlockHeader, txs [][]byte) []byte {
	size := blockHeaderSize
	for _, tx := range txs {
		size += 4 + len(tx)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, BlockVersion)
	buf = binary.LittleEndian.AppendUint64(buf, h.Height)
	buf = binary.LittleEndian.AppendUint32(buf, h.Round)
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(h.Weights.StakeWeight))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(h.Weights.StorageWeight))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(txs)))
	for _, tx := range txs {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx)))
		buf = append(buf, tx...)
	}
	return buf
}

// DecodeBlock parses a payload produced by EncodeBlock. The returned
// transactions alias data.
func DecodeBlock(data []byte) (BlockHeader, [][]byte, error) {
	var h BlockHeader
	if len(data) < blockHeaderSize {
		return h, nil, fmt.Errorf("%w: %d bytes", ErrBlockMalformed, len(data))
	}
	if data[0] != BlockVersion {
		return h, nil, fmt.Errorf("%w: version %d", ErrBlockMalformed, data[0])
	}
	h.Height = binary.LittleEndian.Uint64(data[1:9])
	h.Round = binary.LittleEndian.Uint32(data[9:13])
	h.Weights.StakeWeight = math.Float64frombits(binary.LittleEndian.Uint64(data[13:21]))
	h.Weights.StorageWeight = math.Float64frombits(binary.LittleEndian.Uint64(data[21:29]))
	count := binary.LittleEndian.Uint32(data[29:33])

	rest := data[blockHeaderSize:]
	txs := make([][]byte, 0, min(int(count), len(rest)/4))
	for i := uint32(0); i < count; i++ {
		if len(rest) < 4 {
			return h, nil, fmt.Errorf("%w: truncated length at tx %d", ErrBlockMalformed, i)
		}
		n := binary.LittleEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint64(len(rest)) < uint64(n) {
			return h, nil, fmt.Errorf("%w: truncated tx %d", ErrBlockMalformed, i)
		}
		txs = append(txs, rest[:n])
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return h, nil, fmt.Errorf("%w: %d trailing bytes", ErrBlockMalformed, len(rest))
	}
	return h, txs, nil
}
