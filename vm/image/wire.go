package image

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode encodes in canonical mode so equal programs hash equally.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

func hashOps(o []Op) ([32]byte, error) {
	data, err := cborEncMode.Marshal(o)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// Marshal seals img with its content hash and serializes it to CBOR bytes.
func Marshal(img *Image) ([]byte, error) {
	h, err := hashOps(img.Ops)
	if err != nil {
		return nil, fmt.Errorf("image: hash: %w", err)
	}
	img.Hash = h
	return cborEncMode.Marshal(img)
}

// Unmarshal deserializes an image and verifies its header and hash.
func Unmarshal(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if img.Magic != Magic {
		return nil, fmt.Errorf("image: not a kosvm image")
	}
	if img.Version != Version {
		return nil, fmt.Errorf("image: unsupported version %d", img.Version)
	}
	computed, err := hashOps(img.Ops)
	if err != nil {
		return nil, fmt.Errorf("image: hash: %w", err)
	}
	if computed != img.Hash {
		return nil, fmt.Errorf("image: hash mismatch: declared %x, computed %x", img.Hash, computed)
	}
	return &img, nil
}
