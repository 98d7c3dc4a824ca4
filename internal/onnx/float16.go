package onnx

import (
	"encoding/binary"

	"github.com/x448/float16"
)

// Float32ToFloat16 converts a single fp32 value to its IEEE 754 half bits.
func Float32ToFloat16(f float32) uint16 {
	return uint16(float16.Fromfloat32(f))
}

// Float16ToFloat32 converts IEEE 754 half bits to fp32.
func Float16ToFloat32(bits uint16) float32 {
	return float16.Float16(bits).Float32()
}

// ConvertToFloat16 converts an fp32 slice to half bits.
func ConvertToFloat16(src []float32) []uint16 {
	out := make([]uint16, len(src))
	for i, v := range src {
		out[i] = uint16(float16.Fromfloat32(v))
	}
	return out
}

// ConvertToFloat32 converts a half-bits slice to fp32.
func ConvertToFloat32(src []uint16) []float32 {
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float16.Float16(v).Float32()
	}
	return out
}

// float16Bytes serializes half bits little-endian, the layout ONNX Runtime
// expects for float16 tensor buffers.
func float16Bytes(src []uint16) []byte {
	out := make([]byte, len(src)*2)
	for i, v := range src {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}
	return out
}

func float16FromBytes(src []byte) []uint16 {
	out := make([]uint16, len(src)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(src[i*2:])
	}
	return out
}
