// Package generation builds zone content procedurally. Each dimension has a
// Handler; all handlers share the same capability set from builder: base
// terrain, exit corridors, structures, obstacles and level-scaled
// population.
package generation

import (
	"fmt"
	"math/rand"

	"terminus-realm/zoneserver/models"
)

// Input carries everything a handler needs to produce one zone
type Input struct {
	Key         models.ZoneKey
	Level       int
	Connections models.ConnectionRecord
	Assets      *models.AssetPool
	Narrative   *models.NarrativeState
	Rand        *rand.Rand
}

// Output is the procedural content of a zone
type Output struct {
	Grid       models.Grid
	Structures []models.Structure
	Enemies    []models.EnemyPlacement
	Items      []models.ItemPlacement
}

// Handler generates zones for one dimension
type Handler interface {
	Dimension() models.Dimension
	Generate(in Input) (Output, error)
}

// Handlers returns the built-in handler for every dimension.
func Handlers() map[models.Dimension]Handler {
	return map[models.Dimension]Handler{
		models.Surface:     SurfaceHandler{},
		models.Interior:    InteriorHandler{},
		models.Underground: UndergroundHandler{},
	}
}

func (in *Input) validate() error {
	if in.Rand == nil {
		return fmt.Errorf("generate %s: nil rand", in.Key)
	}
	if in.Assets == nil {
		in.Assets = models.DefaultAssetPool()
	}
	if in.Narrative == nil {
		in.Narrative = models.NewNarrativeState()
	}
	if in.Level < models.MinZoneLevel {
		in.Level = models.MinZoneLevel
	}
	return nil
}

// IsHome reports whether key addresses the fixed home zone.
func IsHome(key models.ZoneKey) bool {
	return key.X == 0 && key.Y == 0 && key.Dimension == models.Surface
}

// HomeStructures are placed at fixed positions in the home zone.
var HomeStructures = []models.Structure{
	{Kind: "house", X: 4, Y: 4, Width: 8, Height: 6},
	{Kind: "well", X: 24, Y: 15, Width: 2, Height: 2},
	{Kind: "garden", X: 28, Y: 4, Width: 6, Height: 5},
}
