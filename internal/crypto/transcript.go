package crypto

import (
	"encoding/binary"

	"paircrypt/internal/domain"
)

const spkTranscriptLabel = "paircrypt/spk/v1"

// SignedPreKeyTranscript is the byte string the identity signs for a signed
// pre-key. It binds the pre-key to the identity DH key, its id and its
// creation time so none of them can be swapped by a directory.
func SignedPreKeyTranscript(
	identity domain.X25519Public,
	id domain.SignedPreKeyID,
	createdAt int64,
	spk domain.X25519Public,
) []byte {
	out := make([]byte, 0, len(spkTranscriptLabel)+32+4+8+32)
	out = append(out, spkTranscriptLabel...)
	out = append(out, identity[:]...)
	out = binary.BigEndian.AppendUint32(out, uint32(id))
	out = binary.BigEndian.AppendUint64(out, uint64(createdAt))
	out = append(out, spk[:]...)
	return out
}
