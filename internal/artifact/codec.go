package artifact

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/roach88/voxelroom/internal/canvas"
	"github.com/roach88/voxelroom/internal/store"
)

// FormatVersion is the artifact layout written by Encode.
const FormatVersion = 1

// MaxDecodedSize bounds the decompressed size Decode accepts. A full grid
// encodes well below this.
const MaxDecodedSize = 8 << 20

// ErrFormat is returned for artifacts that do not decode into a valid
// frozen export.
var ErrFormat = errors.New("invalid artifact")

type record struct {
	Format   int       `cbor:"format"`
	Room     string    `cbor:"room"`
	Version  int64     `cbor:"version"`
	FrozenAt time.Time `cbor:"frozenAt"`
	Voxels   []voxel   `cbor:"voxels"`
}

type voxel struct {
	_         struct{} `cbor:",toarray"`
	Cell      int
	Color     string
	Timestamp int64
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("artifact: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("artifact: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic("artifact: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderMaxMemory(MaxDecodedSize),
	)
	if err != nil {
		panic("artifact: zstd decoder initialization failed: " + err.Error())
	}
}

// Encode serializes a frozen export and returns the artifact bytes with
// their digest. Voxels are written in the order given; frozen exports are
// already sorted by cell.
func Encode(f store.Frozen) ([]byte, Digest, error) {
	rec := record{
		Format:   FormatVersion,
		Room:     f.RoomIdentifier,
		Version:  f.Version,
		FrozenAt: f.FrozenAt.UTC(),
		Voxels:   make([]voxel, 0, len(f.Voxels)),
	}
	for _, pv := range f.Voxels {
		rec.Voxels = append(rec.Voxels, voxel{
			Cell:      int(pv.Cell),
			Color:     pv.Color.String(),
			Timestamp: pv.Timestamp,
		})
	}

	raw, err := encMode.Marshal(rec)
	if err != nil {
		return nil, Digest{}, fmt.Errorf("encode artifact %s: %w", f.RoomIdentifier, err)
	}
	data := zstdEncoder.EncodeAll(raw, make([]byte, 0, len(raw)))
	return data, Sum(data), nil
}

// Decode parses an artifact back into the frozen export it holds.
func Decode(data []byte) (store.Frozen, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return store.Frozen{}, fmt.Errorf("%w: zstd: %w", ErrFormat, err)
	}

	var rec record
	if err := decMode.Unmarshal(raw, &rec); err != nil {
		return store.Frozen{}, fmt.Errorf("%w: cbor: %w", ErrFormat, err)
	}
	if rec.Format != FormatVersion {
		return store.Frozen{}, fmt.Errorf("%w: format %d (want %d)", ErrFormat, rec.Format, FormatVersion)
	}
	if !store.ValidRoomID(rec.Room) {
		return store.Frozen{}, fmt.Errorf("%w: room %q", ErrFormat, rec.Room)
	}

	f := store.Frozen{
		Version:        rec.Version,
		Voxels:         make(canvas.PackedState, 0, len(rec.Voxels)),
		FrozenAt:       rec.FrozenAt.UTC(),
		RoomIdentifier: rec.Room,
	}
	for i, v := range rec.Voxels {
		cell := canvas.CellID(v.Cell)
		if !cell.Valid() {
			return store.Frozen{}, fmt.Errorf("%w: voxel %d: %w", ErrFormat, i, canvas.ErrInvalidCell)
		}
		color, err := canvas.ParseColor(v.Color)
		if err != nil {
			return store.Frozen{}, fmt.Errorf("%w: voxel %d: %w", ErrFormat, i, err)
		}
		f.Voxels = append(f.Voxels, canvas.PackedVoxel{Cell: cell, Color: color, Timestamp: v.Timestamp})
	}
	return f, nil
}
