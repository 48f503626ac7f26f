package yuman

import (
	"context"
	"net/url"

	"github.com/centroplan/vysync/pkg/errors"
	"github.com/centroplan/vysync/pkg/logging"
)

// Blueprints maps custom field names to their workspace blueprint ids.
// Ids differ between workspaces, so they are resolved once at startup
// from the field catalog instead of being hardcoded.
type Blueprints struct {
	sites     map[string]int
	materials map[string]int
}

// ResolveBlueprints fetches the custom field catalogs and indexes them
// by field name.
func (c *Client) ResolveBlueprints(ctx context.Context) (*Blueprints, error) {
	log := logging.FromContext(ctx)

	siteFields, err := listInto[fieldBlueprint](ctx, c, "/fields", url.Values{"target": {"site"}})
	if err != nil {
		return nil, err
	}
	materialFields, err := listInto[fieldBlueprint](ctx, c, "/fields", url.Values{"target": {"material"}})
	if err != nil {
		return nil, err
	}

	bp := &Blueprints{
		sites:     make(map[string]int, len(siteFields)),
		materials: make(map[string]int, len(materialFields)),
	}
	for _, f := range siteFields {
		bp.sites[f.Name] = f.BlueprintID
	}
	for _, f := range materialFields {
		bp.materials[f.Name] = f.BlueprintID
	}

	log.Debug().
		Int("site_fields", len(bp.sites)).
		Int("material_fields", len(bp.materials)).
		Msg("Yuman field blueprints resolved")
	return bp, nil
}

// SiteField returns the blueprint id of a site custom field.
func (b *Blueprints) SiteField(name string) (int, error) {
	id, ok := b.sites[name]
	if !ok {
		return 0, errors.NewValidationError("site field", name, "no blueprint with this name")
	}
	return id, nil
}

// MaterialField returns the blueprint id of a material custom field.
func (b *Blueprints) MaterialField(name string) (int, error) {
	id, ok := b.materials[name]
	if !ok {
		return 0, errors.NewValidationError("material field", name, "no blueprint with this name")
	}
	return id, nil
}

// NewBlueprints builds a resolver from known name to id maps. Intended
// for tests and offline tooling.
func NewBlueprints(sites, materials map[string]int) *Blueprints {
	return &Blueprints{sites: sites, materials: materials}
}
