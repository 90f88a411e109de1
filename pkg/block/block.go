// Package block defines the ledger block type and chain verification.
package block

import (
	"encoding/binary"
	"time"

	"github.com/Klingon-tech/powrace/pkg/crypto"
	"github.com/Klingon-tech/powrace/pkg/puzzle"
	"github.com/Klingon-tech/powrace/pkg/types"
)

// Block is one committed round. Blocks are values and are never mutated
// after the coordinator appends them.
type Block struct {
	Index     int       `json:"index"`
	WorkerID  int       `json:"worker_id"`
	CreatedAt time.Time `json:"created_at"`
	Payload   string    `json:"payload"`
	Nonce     uint64    `json:"nonce"`
	PrevHash  string    `json:"prev_hash"` // Parent's HashHex, or puzzle.Genesis for block 0.
}

// Hash recomputes the puzzle hash of the winning solution.
func (b Block) Hash() uint64 {
	return puzzle.Hash(b.PrevHash, b.Payload, b.Nonce)
}

// HashHex returns Hash in chain-link format; the next block's PrevHash
// must equal it.
func (b Block) HashHex() string {
	return puzzle.FormatHash(b.Hash())
}

// SigningBytes returns a canonical encoding of every field, used for
// fingerprinting. Strings are length-prefixed so field boundaries are
// unambiguous.
func (b Block) SigningBytes() []byte {
	buf := make([]byte, 0, 8*5+len(b.Payload)+len(b.PrevHash))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(b.Index))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(b.WorkerID))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(b.CreatedAt.Unix()))
	buf = appendString(buf, b.Payload)
	buf = binary.LittleEndian.AppendUint64(buf, b.Nonce)
	buf = appendString(buf, b.PrevHash)
	return buf
}

// Digest is the BLAKE3 hash of SigningBytes.
func (b Block) Digest() types.Hash {
	return crypto.Hash(b.SigningBytes())
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}
