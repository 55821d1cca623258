package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Snapshot state codec: CBOR body wrapped in zstd. CBOR keeps the encoding
// deterministic (canonical map ordering) so equal states produce equal
// snapshot bytes; zstd keeps large projection states cheap to store.

var (
	snapEncMode cbor.EncMode
	snapDecMode cbor.DecMode
	zstdEnc     *zstd.Encoder
	zstdDec     *zstd.Decoder
)

func init() {
	var err error
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	if snapEncMode, err = opts.EncMode(); err != nil {
		panic(fmt.Sprintf("snapshot codec: cbor enc mode: %v", err))
	}
	if snapDecMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(fmt.Sprintf("snapshot codec: cbor dec mode: %v", err))
	}
	if zstdEnc, err = zstd.NewWriter(nil); err != nil {
		panic(fmt.Sprintf("snapshot codec: zstd encoder: %v", err))
	}
	if zstdDec, err = zstd.NewReader(nil); err != nil {
		panic(fmt.Sprintf("snapshot codec: zstd decoder: %v", err))
	}
}

// EncodeSnapshotState serializes a projection state value for Snapshot.State.
func EncodeSnapshotState(state any) ([]byte, error) {
	body, err := snapEncMode.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot state: %w", err)
	}
	return zstdEnc.EncodeAll(body, nil), nil
}

// DecodeSnapshotState deserializes Snapshot.State into the given value.
func DecodeSnapshotState(data []byte, state any) error {
	body, err := zstdDec.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("decompress snapshot state: %w", err)
	}
	if err := snapDecMode.Unmarshal(body, state); err != nil {
		return fmt.Errorf("decode snapshot state: %w", err)
	}
	return nil
}
