package generation

import (
	"fmt"

	"terminus-realm/zoneserver/models"
)

// structMargin keeps random structures clear of the border so corridors can
// always route around them.
const structMargin = 2

const maxEnemies = 20

// hubCells is the walkable area at the zone centre that every exit corridor
// reaches.
func hubCells() []models.Point {
	cx, cy := models.ZoneWidth/2, models.ZoneHeight/2
	var pts []models.Point
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			pts = append(pts, models.Point{X: cx + dx, Y: cy + dy})
		}
	}
	return pts
}

// builder holds the shared capability set of all procedural handlers.
type builder struct {
	in         Input
	grid       models.Grid
	reserved   [][]bool // exit corridors and hub, never obstructed
	blocked    [][]bool // structure footprints
	occupied   map[models.Point]bool
	structures []models.Structure
	enemies    []models.EnemyPlacement
	items      []models.ItemPlacement
}

func newBuilder(in Input, base int) *builder {
	b := &builder{
		in:       in,
		grid:     models.NewGrid(models.ZoneWidth, models.ZoneHeight, base),
		reserved: newMask(),
		blocked:  newMask(),
		occupied: make(map[models.Point]bool),
	}
	for _, p := range hubCells() {
		b.reserved[p.Y][p.X] = true
	}
	return b
}

func newMask() [][]bool {
	m := make([][]bool, models.ZoneHeight)
	for y := range m {
		m[y] = make([]bool, models.ZoneWidth)
	}
	return m
}

func onBorder(x, y int) bool {
	return x == 0 || y == 0 || x == models.ZoneWidth-1 || y == models.ZoneHeight-1
}

func (b *builder) fillBorder(tile int) {
	for y := 0; y < models.ZoneHeight; y++ {
		for x := 0; x < models.ZoneWidth; x++ {
			if onBorder(x, y) {
				b.grid[y][x] = tile
			}
		}
	}
}

// free reports whether obstacles may be placed at (x, y).
func (b *builder) free(x, y int) bool {
	return !onBorder(x, y) && !b.reserved[y][x] && !b.blocked[y][x]
}

// fits reports whether s lies inside the margins without touching the hub,
// a corridor or another structure (including a one-tile gap).
func (b *builder) fits(s models.Structure) bool {
	if s.X < structMargin || s.Y < structMargin ||
		s.X+s.Width > models.ZoneWidth-structMargin || s.Y+s.Height > models.ZoneHeight-structMargin {
		return false
	}
	for y := s.Y - 1; y <= s.Y+s.Height; y++ {
		for x := s.X - 1; x <= s.X+s.Width; x++ {
			if b.reserved[y][x] || b.blocked[y][x] {
				return false
			}
		}
	}
	return true
}

// drawStructure paints walls around a floor interior. With door set, one
// wall cell on the side facing the hub becomes a door.
func (b *builder) drawStructure(s models.Structure, wall, floor int, door bool) {
	for y := s.Y; y < s.Y+s.Height; y++ {
		for x := s.X; x < s.X+s.Width; x++ {
			edge := x == s.X || y == s.Y || x == s.X+s.Width-1 || y == s.Y+s.Height-1
			if edge {
				b.grid[y][x] = wall
			} else {
				b.grid[y][x] = floor
			}
			b.blocked[y][x] = true
		}
	}
	if door && s.Width >= 3 && s.Height >= 3 {
		d := doorCell(s)
		b.grid[d.Y][d.X] = models.TileDoor
	}
	b.structures = append(b.structures, s)
}

// doorCell picks the middle of the wall facing the zone centre.
func doorCell(s models.Structure) models.Point {
	cx, cy := models.ZoneWidth/2, models.ZoneHeight/2
	midX, midY := s.X+s.Width/2, s.Y+s.Height/2
	switch {
	case s.Y+s.Height <= cy:
		return models.Point{X: midX, Y: s.Y + s.Height - 1}
	case s.Y > cy:
		return models.Point{X: midX, Y: s.Y}
	case s.X+s.Width <= cx:
		return models.Point{X: s.X + s.Width - 1, Y: midY}
	default:
		return models.Point{X: s.X, Y: midY}
	}
}

// placeRandom tries to fit a template somewhere in the zone.
func (b *builder) placeRandom(t models.StructureTemplate, wall, floor int, door bool) bool {
	r := b.in.Rand
	maxX := models.ZoneWidth - structMargin - t.Width
	maxY := models.ZoneHeight - structMargin - t.Height
	if maxX < structMargin || maxY < structMargin {
		return false
	}
	for attempt := 0; attempt < 30; attempt++ {
		s := models.Structure{
			Kind:   t.Kind,
			X:      structMargin + r.Intn(maxX-structMargin+1),
			Y:      structMargin + r.Intn(maxY-structMargin+1),
			Width:  t.Width,
			Height: t.Height,
		}
		if b.fits(s) {
			b.drawStructure(s, wall, floor, door)
			return true
		}
	}
	return false
}

// carveExits routes a corridor from every declared opening to the hub and
// paints it walkable. Corridors route around structures; nothing placed
// later may cover them.
func (b *builder) carveExits(pathTile, exitTile int) {
	for _, p := range hubCells() {
		b.grid[p.Y][p.X] = pathTile
	}
	for _, d := range models.Directions {
		pos := b.in.Connections.Get(d)
		if pos == models.NoOpening {
			continue
		}
		start := d.BorderCell(pos)
		for _, p := range b.route(start) {
			b.reserved[p.Y][p.X] = true
			b.grid[p.Y][p.X] = pathTile
		}
		b.grid[start.Y][start.X] = exitTile
	}
}

// route finds a path from a border cell to the hub with a breadth-first
// search that avoids structures and the rest of the border. If none exists
// it falls back to an L-shaped path that cuts through anything in the way.
func (b *builder) route(start models.Point) []models.Point {
	hub := make(map[models.Point]bool)
	for _, p := range hubCells() {
		hub[p] = true
	}

	prev := map[models.Point]models.Point{start: start}
	queue := []models.Point{start}
	steps := []models.Point{{X: 0, Y: 1}, {X: 0, Y: -1}, {X: 1, Y: 0}, {X: -1, Y: 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if hub[cur] {
			var path []models.Point
			for p := cur; p != start; p = prev[p] {
				path = append(path, p)
			}
			return append(path, start)
		}
		for _, s := range steps {
			next := models.Point{X: cur.X + s.X, Y: cur.Y + s.Y}
			if !b.grid.InBounds(next.X, next.Y) || onBorder(next.X, next.Y) || b.blocked[next.Y][next.X] {
				continue
			}
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			queue = append(queue, next)
		}
	}
	return straightPath(start)
}

func straightPath(start models.Point) []models.Point {
	cx, cy := models.ZoneWidth/2, models.ZoneHeight/2
	path := []models.Point{start}
	x, y := start.X, start.Y
	for y != cy {
		y += sign(cy - y)
		path = append(path, models.Point{X: x, Y: y})
	}
	for x != cx {
		x += sign(cx - x)
		path = append(path, models.Point{X: x, Y: y})
	}
	return path
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// scatter places up to count single obstacles on free cells.
func (b *builder) scatter(tile, count int) {
	r := b.in.Rand
	for i := 0; i < count; i++ {
		x := 1 + r.Intn(models.ZoneWidth-2)
		y := 1 + r.Intn(models.ZoneHeight-2)
		if b.free(x, y) {
			b.grid[y][x] = tile
		}
	}
}

// cluster grows count blobs of tile by random walk, each about size cells.
func (b *builder) cluster(tile, count, size int) {
	r := b.in.Rand
	for i := 0; i < count; i++ {
		x := 1 + r.Intn(models.ZoneWidth-2)
		y := 1 + r.Intn(models.ZoneHeight-2)
		for step := 0; step < size; step++ {
			if b.grid.InBounds(x, y) && b.free(x, y) {
				b.grid[y][x] = tile
			}
			switch r.Intn(4) {
			case 0:
				x++
			case 1:
				x--
			case 2:
				y++
			default:
				y--
			}
		}
	}
}

// openCell finds a walkable, unoccupied interior cell.
func (b *builder) openCell() (models.Point, bool) {
	r := b.in.Rand
	for attempt := 0; attempt < 200; attempt++ {
		p := models.Point{X: 1 + r.Intn(models.ZoneWidth-2), Y: 1 + r.Intn(models.ZoneHeight-2)}
		if models.IsWalkable(b.grid[p.Y][p.X]) && !b.occupied[p] {
			return p, true
		}
	}
	return models.Point{}, false
}

func enemyCount(level int) int {
	n := 2 + level
	if n > maxEnemies {
		n = maxEnemies
	}
	return n
}

func itemCount(level int) int {
	return 1 + level/3
}

// populate scatters enemies and items scaled by zone level.
func (b *builder) populate(withEnemies bool) {
	in := b.in
	r := in.Rand

	if withEnemies {
		templates := in.Assets.EnemiesFor(in.Level, in.Key.Dimension)
		n := enemyCount(in.Level) + r.Intn(3) - 1
		for i := 0; i < n && len(templates) > 0; i++ {
			p, ok := b.openCell()
			if !ok {
				break
			}
			t := templates[r.Intn(len(templates))]
			b.occupied[p] = true
			b.enemies = append(b.enemies, models.EnemyPlacement{
				ID:      fmt.Sprintf("%s/enemy/%d", in.Key, i),
				Name:    t.Name,
				Char:    t.Char,
				X:       p.X,
				Y:       p.Y,
				HP:      t.BaseHP + in.Level*2,
				Attack:  t.Attack + in.Level/2,
				Defense: t.Defense + in.Level/3,
				Level:   in.Level,
			})
		}
	}

	var plain, narrative []models.ItemTemplate
	for _, t := range in.Assets.ItemsFor(in.Level) {
		if t.Narrative {
			narrative = append(narrative, t)
		} else {
			plain = append(plain, t)
		}
	}
	for i := 0; i < itemCount(in.Level) && len(plain) > 0; i++ {
		p, ok := b.openCell()
		if !ok {
			break
		}
		t := plain[r.Intn(len(plain))]
		b.occupied[p] = true
		b.items = append(b.items, models.ItemPlacement{
			ID:   fmt.Sprintf("%s/item/%d", in.Key, i),
			Name: t.Name,
			Char: t.Char,
			X:    p.X,
			Y:    p.Y,
		})
	}

	b.placeNarrative(narrative)
}

// placeNarrative leaves at most one note per zone carrying a message the
// session has not seen yet.
func (b *builder) placeNarrative(templates []models.ItemTemplate) {
	in := b.in
	if len(templates) == 0 || in.Rand.Float64() >= 0.5 {
		return
	}
	unused := in.Narrative.Unused(in.Assets.Messages)
	if len(unused) == 0 {
		return
	}
	p, ok := b.openCell()
	if !ok {
		return
	}
	msg := unused[in.Rand.Intn(len(unused))]
	t := templates[in.Rand.Intn(len(templates))]
	in.Narrative.MarkUsed(msg)
	b.occupied[p] = true
	b.items = append(b.items, models.ItemPlacement{
		ID:      fmt.Sprintf("%s/note", in.Key),
		Name:    t.Name,
		Char:    t.Char,
		X:       p.X,
		Y:       p.Y,
		Message: msg,
	})
}

func (b *builder) output() Output {
	return Output{
		Grid:       b.grid,
		Structures: b.structures,
		Enemies:    b.enemies,
		Items:      b.items,
	}
}
