package vision

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

type tensorSpec struct {
	name  string
	shape ort.Shape
}

// onnxModel owns a session together with its preallocated input and output tensors.
// It is not safe for concurrent use.
type onnxModel struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	outputs []*ort.Tensor[float32]
}

func loadModel(path string, input tensorSpec, outputs []tensorSpec, opts *ort.SessionOptions) (*onnxModel, error) {
	m := &onnxModel{}

	in, err := ort.NewEmptyTensor[float32](input.shape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	m.input = in

	names := make([]string, len(outputs))
	values := make([]ort.Value, len(outputs))
	for i, spec := range outputs {
		t, err := ort.NewEmptyTensor[float32](spec.shape)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("create output tensor %s: %w", spec.name, err)
		}
		m.outputs = append(m.outputs, t)
		names[i] = spec.name
		values[i] = t
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{input.name},
		names,
		[]ort.Value{in},
		values,
		opts,
	)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("create session for %s: %w", path, err)
	}
	m.session = session
	return m, nil
}

// run copies data into the input tensor and executes the graph.
func (m *onnxModel) run(data []float32) error {
	copy(m.input.GetData(), data)
	return m.session.Run()
}

func (m *onnxModel) output(i int) []float32 {
	return m.outputs[i].GetData()
}

func (m *onnxModel) Close() {
	if m.session != nil {
		m.session.Destroy()
	}
	if m.input != nil {
		m.input.Destroy()
	}
	for _, t := range m.outputs {
		t.Destroy()
	}
}
