package tracking

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	ModelDescriptorFile = "MLmodel"
	ModelDataFile       = "model.json"
)

// ModelDescriptor is the YAML file stored next to a model artifact.
type ModelDescriptor struct {
	ArtifactPath string `yaml:"artifact_path"`
	Flavor       string `yaml:"flavor"`
	RunID        string `yaml:"run_id"`
	Data         string `yaml:"data"`
	Created      string `yaml:"utc_time_created"`
}

// LogModel stores a serialized model and its descriptor under "model/".
func LogModel(run *ActiveRun, flavor string, payload []byte) error {
	desc := ModelDescriptor{
		ArtifactPath: ModelArtifactPath,
		Flavor:       flavor,
		RunID:        run.ID(),
		Data:         ModelDataFile,
		Created:      time.Now().UTC().Format("2006-01-02 15:04:05.000000"),
	}
	meta, err := yaml.Marshal(desc)
	if err != nil {
		return fmt.Errorf("encode model descriptor: %w", err)
	}
	if err := run.LogArtifact(path.Join(ModelArtifactPath, ModelDescriptorFile), meta); err != nil {
		return err
	}
	return run.LogArtifact(path.Join(ModelArtifactPath, ModelDataFile), payload)
}

// ReadModel returns the descriptor and raw model bytes logged by a run.
func ReadModel(ctx context.Context, store Store, runID string) (ModelDescriptor, []byte, error) {
	raw, err := store.ReadArtifact(ctx, runID, path.Join(ModelArtifactPath, ModelDescriptorFile))
	if err != nil {
		return ModelDescriptor{}, nil, fmt.Errorf("read model descriptor: %w", err)
	}
	var desc ModelDescriptor
	if err := yaml.Unmarshal(raw, &desc); err != nil {
		return ModelDescriptor{}, nil, fmt.Errorf("decode model descriptor: %w", err)
	}
	if desc.Flavor == "" {
		return ModelDescriptor{}, nil, errors.New("model descriptor has no flavor")
	}
	data := desc.Data
	if data == "" {
		data = ModelDataFile
	}
	payload, err := store.ReadArtifact(ctx, runID, path.Join(ModelArtifactPath, data))
	if err != nil {
		return ModelDescriptor{}, nil, fmt.Errorf("read model data: %w", err)
	}
	return desc, payload, nil
}
