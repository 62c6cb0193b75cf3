package generation

import "terminus-realm/zoneserver/models"

// SurfaceHandler generates open-air zones: grass with ponds, sand and trees,
// walled in by a tree line that only breaks at declared exits.
type SurfaceHandler struct{}

func (SurfaceHandler) Dimension() models.Dimension { return models.Surface }

func (SurfaceHandler) Generate(in Input) (Output, error) {
	if err := in.validate(); err != nil {
		return Output{}, err
	}
	b := newBuilder(in, models.TileGrass)
	b.fillBorder(models.TileTree)

	home := IsHome(in.Key)
	if home {
		for _, s := range HomeStructures {
			b.drawStructure(s, models.TileWall, models.TileFloor, s.Kind == "house")
		}
	} else {
		templates := in.Assets.StructuresFor(models.Surface)
		n := in.Rand.Intn(3)
		for i := 0; i < n && len(templates) > 0; i++ {
			b.placeRandom(templates[in.Rand.Intn(len(templates))], models.TileWall, models.TilePavement, true)
		}
	}

	b.carveExits(models.TilePath, models.TileExit)

	if home {
		b.scatter(models.TileTree, 10)
	} else {
		b.cluster(models.TileWater, 1+in.Rand.Intn(2), 12)
		b.cluster(models.TileSand, 1+in.Rand.Intn(3), 15)
		b.scatter(models.TileTree, 25+in.Level)
		b.scatter(models.TileRock, 5+in.Level/2)
	}

	b.populate(!home)
	return b.output(), nil
}
