// Package registry resolves the model a server should serve from the
// tracking store.
package registry

import (
	"context"
	"fmt"

	"sentimentlab/ml"
	"sentimentlab/tracking"
)

type LoadedModel struct {
	Model     ml.TrainableClassifier
	Selection tracking.Selection
	Flavor    string
}

func (m LoadedModel) RunID() string { return m.Selection.Run.ID }

func (m LoadedModel) URI() string { return m.Selection.ModelURI() }

// LoadLatest selects the newest run among active experiments and decodes
// its model artifact. The selector errors are returned unwrapped so callers
// can match them with errors.Is.
func LoadLatest(ctx context.Context, store tracking.Store) (LoadedModel, error) {
	sel, err := tracking.FindLatestRun(ctx, store)
	if err != nil {
		return LoadedModel{}, err
	}
	return Load(ctx, store, sel)
}

func Load(ctx context.Context, store tracking.Store, sel tracking.Selection) (LoadedModel, error) {
	desc, payload, err := tracking.ReadModel(ctx, store, sel.Run.ID)
	if err != nil {
		return LoadedModel{}, fmt.Errorf("load %s: %w", sel.ModelURI(), err)
	}
	model, err := ml.LoadModel(desc.Flavor, payload)
	if err != nil {
		return LoadedModel{}, fmt.Errorf("load %s: %w", sel.ModelURI(), err)
	}
	return LoadedModel{Model: model, Selection: sel, Flavor: desc.Flavor}, nil
}
