// Package spirv turns WGSL compute kernels into SPIR-V words for the HAL.
package spirv

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/gogpu/naga"

	"github.com/gogpu/gpumath"
	"github.com/gogpu/gpumath/internal/cache"
)

// Magic is the first word of every SPIR-V module.
const Magic uint32 = 0x07230203

// ErrMalformed is returned when the compiler output is not a SPIR-V module.
var ErrMalformed = errors.New("spirv: malformed module")

// compiled keeps SPIR-V by source digest; shaders are often recreated with
// identical source (one per iteration slice).
var compiled = cache.New[[sha256.Size]byte, []uint32](128)

// Compile compiles WGSL source to SPIR-V. Results are cached by source, so
// the returned slice is shared and must not be modified.
func Compile(source string) ([]uint32, error) {
	key := sha256.Sum256([]byte(source))
	return compiled.GetOrCreate(key, func() ([]uint32, error) {
		raw, err := naga.Compile(source)
		if err != nil {
			return nil, fmt.Errorf("spirv: compile: %w", err)
		}
		words, err := Words(raw)
		if err != nil {
			return nil, err
		}
		gpumath.Logger().Debug("spirv: compiled", "words", len(words))
		return words, nil
	})
}

// Words converts little-endian SPIR-V bytes into 32-bit words and checks the
// magic number.
func Words(raw []byte) ([]uint32, error) {
	if len(raw) < 4 || len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(raw))
	}
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = uint32(raw[i*4]) |
			uint32(raw[i*4+1])<<8 |
			uint32(raw[i*4+2])<<16 |
			uint32(raw[i*4+3])<<24
	}
	if words[0] != Magic {
		return nil, fmt.Errorf("%w: magic %#08x", ErrMalformed, words[0])
	}
	return words, nil
}

// Stats reports compile cache counters.
func Stats() cache.Stats {
	return compiled.Stats()
}
