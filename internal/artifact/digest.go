package artifact

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Digest is the 32-byte BLAKE3 keyed hash of an artifact's bytes.
type Digest [32]byte

// digestKey separates artifact digests from any other BLAKE3 use. The
// bytes are the ASCII domain name, zero-padded to 32.
var digestKey = [32]byte{
	'v', 'o', 'x', 'e', 'l', 'r', 'o', 'o', 'm', '.', 'a', 'r', 't', 'i', 'f', 'a',
	'c', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Sum computes the digest of artifact bytes.
func Sum(data []byte) Digest {
	// NewKeyed only fails for keys that are not 32 bytes.
	hasher, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		panic("artifact: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var d Digest
	copy(d[:], hasher.Sum(nil))
	return d
}

// String returns the lowercase hex form.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Header returns the Digest header value, "blake3=<hex>".
func (d Digest) Header() string {
	return "blake3=" + d.String()
}

// ParseDigest accepts the hex form or the "blake3=<hex>" header form.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	decoded, err := hex.DecodeString(strings.TrimPrefix(s, "blake3="))
	if err != nil {
		return d, fmt.Errorf("parsing artifact digest: %w", err)
	}
	if len(decoded) != len(d) {
		return d, fmt.Errorf("artifact digest is %d bytes, want %d", len(decoded), len(d))
	}
	copy(d[:], decoded)
	return d, nil
}
