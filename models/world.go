package models

import (
	"errors"
	"fmt"
)

// Zone dimensions in tiles
const (
	ZoneWidth  = 40
	ZoneHeight = 25
)

// ExitMargin keeps border openings away from the corners of a zone edge.
const ExitMargin = 2

// MaxCoordinate bounds zone coordinates on both axes.
const MaxCoordinate = 1 << 20

// Zone level bounds
const (
	MinZoneLevel = 1
	MaxZoneLevel = 50
)

var (
	ErrUnknownDimension     = errors.New("unknown dimension")
	ErrCoordinateOutOfRange = errors.New("coordinate out of range")
)

// Tile types represented as integers for memory efficiency
const (
	TileFloor = iota
	TileWall
	TileDoor
	TileWater
	TileGrass
	TileTree
	TileStairsUp
	TileStairsDown
	TileSand
	TilePavement
	TileSnow
	TileLava
	TileAsh
	TileCactus
	TileIce
	TileRock
	TilePath
	TileExit
	TileVoid
)

// IsWalkable reports whether an entity can stand on the tile.
func IsWalkable(tile int) bool {
	switch tile {
	case TileWall, TileWater, TileTree, TileLava, TileCactus, TileRock, TileVoid:
		return false
	}
	return tile >= TileFloor && tile <= TileVoid
}

// Dimension is the layer a zone belongs to
type Dimension int

const (
	Surface Dimension = iota
	Interior
	Underground
)

// Dimensions lists every known dimension.
var Dimensions = []Dimension{Surface, Interior, Underground}

func (d Dimension) String() string {
	switch d {
	case Surface:
		return "surface"
	case Interior:
		return "interior"
	case Underground:
		return "underground"
	default:
		return fmt.Sprintf("dimension(%d)", int(d))
	}
}

// Valid reports whether d is a known dimension.
func (d Dimension) Valid() bool {
	return d >= Surface && d <= Underground
}

// ParseDimension converts a wire name into a Dimension.
func ParseDimension(s string) (Dimension, error) {
	switch s {
	case "surface", "":
		return Surface, nil
	case "interior":
		return Interior, nil
	case "underground":
		return Underground, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDimension, s)
}

// ZoneKey identifies a zone by coordinate and dimension.
type ZoneKey struct {
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Dimension Dimension `json:"dimension"`
}

func (k ZoneKey) String() string {
	return fmt.Sprintf("%d,%d:%s", k.X, k.Y, k.Dimension)
}

// Validate rejects unknown dimensions and coordinates beyond MaxCoordinate.
func (k ZoneKey) Validate() error {
	if !k.Dimension.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownDimension, int(k.Dimension))
	}
	if abs(k.X) > MaxCoordinate || abs(k.Y) > MaxCoordinate {
		return fmt.Errorf("%w: (%d,%d)", ErrCoordinateOutOfRange, k.X, k.Y)
	}
	return nil
}

// Point is a tile position inside a zone
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Direction of a zone border
type Direction int

const (
	North Direction = iota
	South
	East
	West
)

// Directions in a fixed iteration order.
var Directions = []Direction{North, South, East, West}

func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case South:
		return "south"
	case East:
		return "east"
	case West:
		return "west"
	default:
		return "unknown"
	}
}

// Opposite returns the direction facing d.
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	default:
		return East
	}
}

// Delta returns the zone coordinate step for d. North is negative y.
func (d Direction) Delta() (int, int) {
	switch d {
	case North:
		return 0, -1
	case South:
		return 0, 1
	case East:
		return 1, 0
	default:
		return -1, 0
	}
}

// EdgeLength is the number of cells along the border facing d.
func (d Direction) EdgeLength() int {
	if d == North || d == South {
		return ZoneWidth
	}
	return ZoneHeight
}

// OpeningRange returns the inclusive range of valid opening positions for d.
func (d Direction) OpeningRange() (int, int) {
	return ExitMargin, d.EdgeLength() - 1 - ExitMargin
}

// BorderCell returns the tile coordinate of an opening at pos on edge d.
func (d Direction) BorderCell(pos int) Point {
	switch d {
	case North:
		return Point{X: pos, Y: 0}
	case South:
		return Point{X: pos, Y: ZoneHeight - 1}
	case East:
		return Point{X: ZoneWidth - 1, Y: pos}
	default:
		return Point{X: 0, Y: pos}
	}
}

// Chebyshev returns the chessboard distance of (x, y) from the origin.
func Chebyshev(x, y int) int {
	ax, ay := abs(x), abs(y)
	if ax > ay {
		return ax
	}
	return ay
}

// ZoneLevel derives the difficulty tier of the zone at (x, y).
func ZoneLevel(x, y int) int {
	level := MinZoneLevel + Chebyshev(x, y)
	if level > MaxZoneLevel {
		return MaxZoneLevel
	}
	return level
}

// Grid is a row-major tile array, indexed grid[y][x]
type Grid [][]int

// NewGrid creates a width x height grid filled with tile.
func NewGrid(width, height, fill int) Grid {
	g := make(Grid, height)
	for y := range g {
		g[y] = make([]int, width)
		for x := range g[y] {
			g[y][x] = fill
		}
	}
	return g
}

func (g Grid) Height() int { return len(g) }

func (g Grid) Width() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

func (g Grid) InBounds(x, y int) bool {
	return y >= 0 && y < len(g) && x >= 0 && x < len(g[y])
}

// Clone returns a deep copy of the grid.
func (g Grid) Clone() Grid {
	out := make(Grid, len(g))
	for y := range g {
		out[y] = append([]int(nil), g[y]...)
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func (d Dimension) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDimension, int(d))
	}
	return []byte(d.String()), nil
}

func (d *Dimension) UnmarshalText(text []byte) error {
	parsed, err := ParseDimension(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
