package generation

import "terminus-realm/zoneserver/models"

// InteriorHandler generates walled halls partitioned into rooms.
type InteriorHandler struct{}

func (InteriorHandler) Dimension() models.Dimension { return models.Interior }

func (InteriorHandler) Generate(in Input) (Output, error) {
	if err := in.validate(); err != nil {
		return Output{}, err
	}
	b := newBuilder(in, models.TileFloor)
	b.fillBorder(models.TileWall)

	templates := in.Assets.StructuresFor(models.Interior)
	rooms := 2 + in.Rand.Intn(3)
	for i := 0; i < rooms && len(templates) > 0; i++ {
		b.placeRandom(templates[in.Rand.Intn(len(templates))], models.TileWall, models.TileFloor, true)
	}

	b.carveExits(models.TileFloor, models.TileDoor)

	// pillars
	b.scatter(models.TileWall, 6+in.Level/2)

	b.populate(true)
	return b.output(), nil
}
