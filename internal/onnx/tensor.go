package onnx

import (
	"fmt"
	"math"

	ort "github.com/yalue/onnxruntime_go"
)

// DType identifies the element type of a Tensor. The closed set matches what
// the chatterbox graphs exchange: fp32 activations, fp16 KV-cache, int64
// token/positions, int32 auxiliary inputs.
type DType string

const (
	DTypeFloat32 DType = "float32"
	DTypeFloat16 DType = "float16"
	DTypeInt64   DType = "int64"
	DTypeInt32   DType = "int32"
)

// Tensor is a shape-carrying dense array. It is backed either by a host
// buffer (created by the caller) or by a live ONNX Runtime value (returned
// from Session.Run). Runtime-backed tensors can be passed back into a later
// Run without copying; that is how the KV-cache moves from the output of one
// decode step to the input of the next.
type Tensor struct {
	dtype DType
	shape []int64
	data  any       // []float32 | []uint16 | []int64 | []int32; nil when val != nil
	val   ort.Value // runtime-owned handle, nil for host tensors
}

// NewTensor creates a host tensor from data and shape. The data slice is
// retained, not copied; callers must not mutate it while an invocation that
// uses the tensor is in flight.
func NewTensor[T float32 | int64 | int32](data []T, shape []int64) (*Tensor, error) {
	if err := validateShape(shape, len(data)); err != nil {
		return nil, err
	}

	t := &Tensor{shape: append([]int64(nil), shape...)}
	switch d := any(data).(type) {
	case []float32:
		t.dtype = DTypeFloat32
		t.data = d
	case []int64:
		t.dtype = DTypeInt64
		t.data = d
	case []int32:
		t.dtype = DTypeInt32
		t.data = d
	}

	return t, nil
}

// NewFloat16Tensor creates a host tensor holding IEEE half bits.
func NewFloat16Tensor(bits []uint16, shape []int64) (*Tensor, error) {
	if err := validateShape(shape, len(bits)); err != nil {
		return nil, err
	}

	return &Tensor{dtype: DTypeFloat16, shape: append([]int64(nil), shape...), data: bits}, nil
}

// NewZeroTensor creates a zero-initialized host tensor. Shapes with a
// zero-sized dimension are allowed; they produce an empty tensor, used for
// the initial KV-cache slots.
func NewZeroTensor(dtype DType, shape []int64) (*Tensor, error) {
	count, err := elementCount(shape)
	if err != nil {
		return nil, err
	}

	switch dtype {
	case DTypeFloat32:
		return NewTensor(make([]float32, count), shape)
	case DTypeFloat16:
		return NewFloat16Tensor(make([]uint16, count), shape)
	case DTypeInt64:
		return NewTensor(make([]int64, count), shape)
	case DTypeInt32:
		return NewTensor(make([]int32, count), shape)
	default:
		return nil, fmt.Errorf("unsupported tensor dtype %q", dtype)
	}
}

func (t *Tensor) DType() DType {
	return t.dtype
}

func (t *Tensor) Shape() []int64 {
	return append([]int64(nil), t.shape...)
}

// Elems returns the number of elements implied by the shape.
func (t *Tensor) Elems() int {
	n, err := elementCount(t.shape)
	if err != nil {
		return 0
	}
	return n
}

// RuntimeBacked reports whether the tensor wraps a live runtime value.
func (t *Tensor) RuntimeBacked() bool {
	return t.val != nil
}

// Floats returns a copy of the tensor contents as fp32, transparently
// upcasting fp16.
func (t *Tensor) Floats() ([]float32, error) {
	return t.FloatsAt(0, t.Elems())
}

// FloatsAt copies count elements starting at offset, upcasting fp16. It is
// the slicing primitive the decode loop uses to read only the last-position
// logits without materializing the full logits tensor.
func (t *Tensor) FloatsAt(offset, count int) ([]float32, error) {
	if offset < 0 || count < 0 || offset+count > t.Elems() {
		return nil, fmt.Errorf("slice [%d:%d] out of range for %d elements", offset, offset+count, t.Elems())
	}

	if t.val != nil {
		switch v := t.val.(type) {
		case *ort.Tensor[float32]:
			return append([]float32(nil), v.GetData()[offset:offset+count]...), nil
		case *ort.CustomDataTensor:
			bits := float16FromBytes(v.GetData())
			return ConvertToFloat32(bits[offset : offset+count]), nil
		default:
			return nil, fmt.Errorf("runtime tensor %T is not float-typed", t.val)
		}
	}

	switch d := t.data.(type) {
	case []float32:
		return append([]float32(nil), d[offset:offset+count]...), nil
	case []uint16:
		return ConvertToFloat32(d[offset : offset+count]), nil
	default:
		return nil, fmt.Errorf("tensor dtype %s is not float-typed", t.dtype)
	}
}

// Int64s returns a copy of the tensor contents as int64.
func (t *Tensor) Int64s() ([]int64, error) {
	if t.val != nil {
		v, ok := t.val.(*ort.Tensor[int64])
		if !ok {
			return nil, fmt.Errorf("runtime tensor %T is not int64-typed", t.val)
		}
		return append([]int64(nil), v.GetData()...), nil
	}

	d, ok := t.data.([]int64)
	if !ok {
		return nil, fmt.Errorf("tensor dtype %s is not int64-typed", t.dtype)
	}

	return append([]int64(nil), d...), nil
}

// Close releases the underlying runtime value, if any. Host tensors are
// garbage collected; Close on them is a no-op.
func (t *Tensor) Close() {
	if t.val != nil {
		_ = t.val.Destroy()
		t.val = nil
	}
}

// ortValue materializes the tensor as an ONNX Runtime value. Runtime-backed
// tensors hand over their existing handle unchanged (zero-copy); host tensors
// allocate a fresh value that the session destroys after the run.
func (t *Tensor) ortValue() (ort.Value, error) {
	if t.val != nil {
		v := t.val
		t.val = nil // ownership moves into the invocation
		return v, nil
	}

	shape := ort.NewShape(t.shape...)
	switch d := t.data.(type) {
	case []float32:
		return ort.NewTensor(shape, d)
	case []int64:
		return ort.NewTensor(shape, d)
	case []int32:
		return ort.NewTensor(shape, d)
	case []uint16:
		return ort.NewCustomDataTensor(shape, float16Bytes(d), ort.TensorElementDataTypeFloat16)
	default:
		return nil, fmt.Errorf("unsupported tensor dtype %q", t.dtype)
	}
}

// wrapValue adopts a runtime value produced by Session.Run.
func wrapValue(v ort.Value) (*Tensor, error) {
	switch x := v.(type) {
	case *ort.Tensor[float32]:
		return &Tensor{dtype: DTypeFloat32, shape: x.GetShape(), val: v}, nil
	case *ort.Tensor[int64]:
		return &Tensor{dtype: DTypeInt64, shape: x.GetShape(), val: v}, nil
	case *ort.Tensor[int32]:
		return &Tensor{dtype: DTypeInt32, shape: x.GetShape(), val: v}, nil
	case *ort.CustomDataTensor:
		if x.DataType() != ort.TensorElementDataTypeFloat16 {
			return nil, fmt.Errorf("unsupported custom tensor element type %d", x.DataType())
		}
		return &Tensor{dtype: DTypeFloat16, shape: x.GetShape(), val: v}, nil
	default:
		return nil, fmt.Errorf("unsupported runtime value type %T", v)
	}
}

func dtypeFromORT(t ort.TensorElementDataType) (DType, error) {
	switch t {
	case ort.TensorElementDataTypeFloat:
		return DTypeFloat32, nil
	case ort.TensorElementDataTypeFloat16:
		return DTypeFloat16, nil
	case ort.TensorElementDataTypeInt64:
		return DTypeInt64, nil
	case ort.TensorElementDataTypeInt32:
		return DTypeInt32, nil
	default:
		return "", fmt.Errorf("unsupported ORT element type %d", t)
	}
}

func validateShape(shape []int64, dataLen int) error {
	count, err := elementCount(shape)
	if err != nil {
		return err
	}
	if count != dataLen {
		return fmt.Errorf("shape %v expects %d elements, got %d", shape, count, dataLen)
	}
	return nil
}

func elementCount(shape []int64) (int, error) {
	count := int64(1)
	for i, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("shape[%d]=%d is negative", i, dim)
		}
		if dim > 0 && count > math.MaxInt64/dim {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}
		count *= dim
	}
	if count > int64(math.MaxInt) {
		return 0, fmt.Errorf("shape %v exceeds platform int capacity", shape)
	}
	return int(count), nil
}
