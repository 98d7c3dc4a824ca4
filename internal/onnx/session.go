package onnx

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Session wraps one loaded graph. Input and output names and element types
// are introspected once at load; invocations reuse the cached lists. A
// session supports one outstanding invocation at a time.
type Session struct {
	name string
	path string

	sess *ort.DynamicAdvancedSession

	inputNames  []string
	outputNames []string
	inputTypes  []DType
	outputTypes []DType

	mu sync.Mutex
}

func newSession(name, path string, opts *ort.SessionOptions) (*Session, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("introspect %q: %w", path, err)
	}

	s := &Session{
		name:        name,
		path:        path,
		inputNames:  make([]string, 0, len(inputs)),
		outputNames: make([]string, 0, len(outputs)),
		inputTypes:  make([]DType, 0, len(inputs)),
		outputTypes: make([]DType, 0, len(outputs)),
	}

	for _, info := range inputs {
		dt, err := dtypeFromORT(info.DataType)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", info.Name, err)
		}
		s.inputNames = append(s.inputNames, info.Name)
		s.inputTypes = append(s.inputTypes, dt)
	}
	for _, info := range outputs {
		dt, err := dtypeFromORT(info.DataType)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", info.Name, err)
		}
		s.outputNames = append(s.outputNames, info.Name)
		s.outputTypes = append(s.outputTypes, dt)
	}

	sess, err := ort.NewDynamicAdvancedSession(path, s.inputNames, s.outputNames, opts)
	if err != nil {
		return nil, err
	}
	s.sess = sess

	return s, nil
}

// Name returns the logical name the session was loaded under.
func (s *Session) Name() string { return s.name }

// InputNames returns the graph input names in declaration order. The slice
// is shared; callers must not mutate it.
func (s *Session) InputNames() []string { return s.inputNames }

// OutputNames returns the graph output names in declaration order.
func (s *Session) OutputNames() []string { return s.outputNames }

// InputTypes returns element types parallel to InputNames.
func (s *Session) InputTypes() []DType { return s.inputTypes }

// OutputTypes returns element types parallel to OutputNames.
func (s *Session) OutputTypes() []DType { return s.outputTypes }

// Run invokes the graph. Inputs are bound by name and consumed: runtime-backed
// tensors move their handle into the call, host tensors get a transient
// runtime value; both are destroyed when the call returns. Outputs come back
// runtime-backed, in graph declaration order, and are owned by the caller.
func (s *Session) Run(inputs map[string]*Tensor) ([]*Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(inputs) != len(s.inputNames) {
		return nil, fmt.Errorf("%w: %q expects %d inputs, got %d", ErrInvocation, s.name, len(s.inputNames), len(inputs))
	}

	ortInputs := make([]ort.Value, len(s.inputNames))
	destroyInputs := func() {
		for _, v := range ortInputs {
			if v != nil {
				_ = v.Destroy()
			}
		}
	}

	for i, name := range s.inputNames {
		t, ok := inputs[name]
		if !ok {
			destroyInputs()
			return nil, fmt.Errorf("%w: %q missing input %q", ErrInvocation, s.name, name)
		}

		v, err := t.ortValue()
		if err != nil {
			destroyInputs()
			return nil, fmt.Errorf("%w: %q input %q: %v", ErrInvocation, s.name, name, err)
		}
		ortInputs[i] = v
	}

	ortOutputs := make([]ort.Value, len(s.outputNames))
	err := s.sess.Run(ortInputs, ortOutputs)
	destroyInputs()
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvocation, s.name, err)
	}

	results := make([]*Tensor, len(ortOutputs))
	for i, v := range ortOutputs {
		t, err := wrapValue(v)
		if err != nil {
			for _, r := range results {
				if r != nil {
					r.Close()
				}
			}
			for _, rest := range ortOutputs[i:] {
				if rest != nil {
					_ = rest.Destroy()
				}
			}
			return nil, fmt.Errorf("%w: %q output %q: %v", ErrInvocation, s.name, s.outputNames[i], err)
		}
		results[i] = t
	}

	return results, nil
}

func (s *Session) close() {
	if s.sess != nil {
		_ = s.sess.Destroy()
		s.sess = nil
	}
}
