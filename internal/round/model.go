package round

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// encodeModel frames the committed global model the same way
// internal/message frames participant envelopes (gob, since both sit
// entirely inside the out-of-scope transport/persistence boundary per
// spec.md §1).
func encodeModel(model []float64) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(model); err != nil {
		return nil, fmt.Errorf("round: encode model: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeModel inverts encodeModel, used by callers reading
// chain.Store.GlobalModel.
func DecodeModel(data []byte) ([]float64, error) {
	var model []float64
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&model); err != nil {
		return nil, fmt.Errorf("round: decode model: %w", err)
	}
	return model, nil
}
