package commands

import (
	"context"

	"github.com/google/uuid"

	"github.com/systmms/credrotate/internal/validation"
	"github.com/systmms/credrotate/pkg/rotation"
)

// demoPlugin mints random opaque secrets and reports every probe as
// passing. It exists so the CLI can demonstrate a full rotation against the
// in-memory store without a real service; production callers embed the
// library with their own plugin.
type demoPlugin struct{}

func (demoPlugin) Name() string { return "demo" }

func (demoPlugin) Rotate(ctx context.Context, cred rotation.Credential) (rotation.Minted, error) {
	return rotation.Minted{
		Data:     []byte(uuid.NewString()),
		Metadata: map[string]string{"minted_by": "demo"},
	}, nil
}

func (demoPlugin) Test(ctx context.Context, cred rotation.Credential) (validation.Outcome, error) {
	return validation.Outcome{Passed: true, Method: "demo_probe"}, nil
}
