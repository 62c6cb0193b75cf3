package models

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var ErrMalformedBoard = errors.New("malformed board")

// Board is an authored zone layout. When registered for a zone it replaces
// procedural generation entirely.
type Board struct {
	Key        ZoneKey          `json:"key"`
	Name       string           `json:"name"`
	Rows       []string         `json:"rows"`
	Legend     map[string]int   `json:"legend"`
	Structures []Structure      `json:"structures,omitempty"`
	Enemies    []EnemyPlacement `json:"enemies,omitempty"`
	Items      []ItemPlacement  `json:"items,omitempty"`
}

// DefaultLegend maps the glyphs used by authored boards to tiles.
var DefaultLegend = map[string]int{
	".": TileFloor,
	"#": TileWall,
	"+": TileDoor,
	"~": TileWater,
	",": TileGrass,
	"T": TileTree,
	"<": TileStairsUp,
	">": TileStairsDown,
	":": TileSand,
	"=": TilePavement,
	"*": TileRock,
	"_": TilePath,
}

func (b *Board) legend() map[string]int {
	if len(b.Legend) > 0 {
		return b.Legend
	}
	return DefaultLegend
}

// Validate checks that the board matches the zone size and only uses known glyphs.
func (b *Board) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil board", ErrMalformedBoard)
	}
	if err := b.Key.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBoard, err)
	}
	if len(b.Rows) != ZoneHeight {
		return fmt.Errorf("%w: %d rows, want %d", ErrMalformedBoard, len(b.Rows), ZoneHeight)
	}
	legend := b.legend()
	for y, row := range b.Rows {
		if n := utf8.RuneCountInString(row); n != ZoneWidth {
			return fmt.Errorf("%w: row %d has %d cells, want %d", ErrMalformedBoard, y, n, ZoneWidth)
		}
		for x, r := range []rune(row) {
			if _, ok := legend[string(r)]; !ok {
				return fmt.Errorf("%w: unknown glyph %q at (%d,%d)", ErrMalformedBoard, r, x, y)
			}
		}
	}
	return nil
}

// ToGrid converts the board rows into a tile grid.
func (b *Board) ToGrid() (Grid, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	legend := b.legend()
	grid := make(Grid, ZoneHeight)
	for y, row := range b.Rows {
		grid[y] = make([]int, 0, ZoneWidth)
		for _, r := range row {
			grid[y] = append(grid[y], legend[string(r)])
		}
	}
	return grid, nil
}
