package durable

import (
	"encoding/hex"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// Journal payloads are deterministic CBOR compressed with zstd. The same
// logical value always encodes to the same bytes, which also makes the
// CBOR form usable for request fingerprints.
var (
	encMode     cbor.EncMode
	decMode     cbor.DecMode
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("durable: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic("durable: CBOR decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("durable: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("durable: zstd decoder initialization failed: " + err.Error())
	}
}

func encode(v interface{}) ([]byte, error) {
	raw, err := encMode.Marshal(v)
	if err != nil {
		return nil, err
	}
	return zstdEncoder.EncodeAll(raw, nil), nil
}

func decode(payload []byte, v interface{}) error {
	raw, err := zstdDecoder.DecodeAll(payload, nil)
	if err != nil {
		return err
	}
	return decMode.Unmarshal(raw, v)
}

// fingerprint hashes the deterministic CBOR form of v.
func fingerprint(v interface{}) ([]byte, error) {
	raw, err := encMode.Marshal(v)
	if err != nil {
		return nil, err
	}
	sum := blake3.Sum256(raw)
	return sum[:], nil
}

// journalKey derives the store key of one activity.
func journalKey(runID, activityID string) string {
	h := blake3.New()
	_, _ = h.Write([]byte(runID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(activityID))
	return hex.EncodeToString(h.Sum(nil))
}
