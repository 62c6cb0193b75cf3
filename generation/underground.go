package generation

import "terminus-realm/zoneserver/models"

const (
	caveFillChance = 0.45
	caveIterations = 4
)

// UndergroundHandler generates caves with a cellular automaton, then cuts
// corridors to every declared exit.
type UndergroundHandler struct{}

func (UndergroundHandler) Dimension() models.Dimension { return models.Underground }

func (UndergroundHandler) Generate(in Input) (Output, error) {
	if err := in.validate(); err != nil {
		return Output{}, err
	}
	b := newBuilder(in, models.TileFloor)

	for y := 0; y < models.ZoneHeight; y++ {
		for x := 0; x < models.ZoneWidth; x++ {
			if in.Rand.Float64() < caveFillChance {
				b.grid[y][x] = models.TileRock
			}
		}
	}
	for i := 0; i < caveIterations; i++ {
		b.grid = smoothCave(b.grid)
	}
	b.fillBorder(models.TileRock)

	templates := in.Assets.StructuresFor(models.Underground)
	n := in.Rand.Intn(3)
	for i := 0; i < n && len(templates) > 0; i++ {
		b.placeRandom(templates[in.Rand.Intn(len(templates))], models.TileRock, models.TileRock, false)
	}

	b.carveExits(models.TileFloor, models.TileExit)

	if in.Level >= 5 {
		b.cluster(models.TileLava, 1, 6+in.Level/5)
	}
	b.cluster(models.TileWater, 1, 8)

	b.populate(true)
	return b.output(), nil
}

// smoothCave applies the 4-5 rule: a cell becomes rock with more than four
// rock neighbours and floor with fewer than four.
func smoothCave(g models.Grid) models.Grid {
	out := g.Clone()
	for y := range g {
		for x := range g[y] {
			walls := countRockNeighbours(g, x, y)
			if walls > 4 {
				out[y][x] = models.TileRock
			} else if walls < 4 {
				out[y][x] = models.TileFloor
			}
		}
	}
	return out
}

// countRockNeighbours treats out-of-bounds cells as rock.
func countRockNeighbours(g models.Grid, x, y int) int {
	n := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if !g.InBounds(nx, ny) || g[ny][nx] == models.TileRock {
				n++
			}
		}
	}
	return n
}
