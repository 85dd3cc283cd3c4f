package compress

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/dict"
)

// ErrDictionaryTraining is returned when no dictionary could be trained.
var ErrDictionaryTraining = errors.New("compress: dictionary training failed")

// TrainDictionary builds a zstd-format dictionary of at most size bytes
// from samples.
func TrainDictionary(samples [][]byte, size int, level Level) ([]byte, error) {
	nonEmpty := make([][]byte, 0, len(samples))
	for _, s := range samples {
		if len(s) > 0 {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) == 0 || size <= 0 {
		return nil, fmt.Errorf("%w: no samples", ErrDictionaryTraining)
	}
	out, err := dict.BuildZstdDict(nonEmpty, dict.Options{
		MaxDictSize: size,
		HashBytes:   6,
		ZstdLevel:   level.encoderLevel(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDictionaryTraining, err)
	}
	return out, nil
}
