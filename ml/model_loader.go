package ml

import (
	"encoding/json"
	"fmt"
)

func LoadModel(flavor string, payload []byte) (TrainableClassifier, error) {
	switch flavor {
	case FlavorTFIDFLogReg:
		model := &Pipeline{}
		if err := json.Unmarshal(payload, model); err != nil {
			return nil, fmt.Errorf("decode %s model: %w", flavor, err)
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported model flavor %q", flavor)
	}
}

func EncodeModel(model TrainableClassifier) ([]byte, error) {
	return json.MarshalIndent(model, "", " ")
}
