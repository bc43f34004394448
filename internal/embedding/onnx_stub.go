//go:build !cgo
// +build !cgo

package embedding

import (
	"errors"
)

// ONNXLoader returns a ModelLoader that always fails when built without CGO.
func ONNXLoader(_ string, _, _ int) ModelLoader {
	return func() (Encoder, error) {
		return nil, errors.New("ONNX encoder requires CGO; build with CGO_ENABLED=1 and onnxruntime")
	}
}
