package models

// EnemyTemplate describes an enemy type that procedural handlers can place.
type EnemyTemplate struct {
	Name       string      `json:"name"`
	Char       string      `json:"char"`
	BaseHP     int         `json:"base_hp"`
	Attack     int         `json:"attack"`
	Defense    int         `json:"defense"`
	MinLevel   int         `json:"min_level"`
	Dimensions []Dimension `json:"dimensions"`
}

type ItemTemplate struct {
	Name      string `json:"name"`
	Char      string `json:"char"`
	MinLevel  int    `json:"min_level"`
	Narrative bool   `json:"narrative"`
}

type StructureTemplate struct {
	Kind      string    `json:"kind"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Dimension Dimension `json:"dimension"`
}

// AssetPool is the catalogue generation draws enemies, items, structures and
// narrative text from.
type AssetPool struct {
	Enemies    []EnemyTemplate     `json:"enemies"`
	Items      []ItemTemplate      `json:"items"`
	Structures []StructureTemplate `json:"structures"`
	Messages   []string            `json:"messages"`
}

// EnemiesFor returns templates usable at the given level and dimension.
func (p *AssetPool) EnemiesFor(level int, dim Dimension) []EnemyTemplate {
	var out []EnemyTemplate
	for _, e := range p.Enemies {
		if e.MinLevel > level {
			continue
		}
		if len(e.Dimensions) > 0 && !containsDimension(e.Dimensions, dim) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (p *AssetPool) ItemsFor(level int) []ItemTemplate {
	var out []ItemTemplate
	for _, it := range p.Items {
		if it.MinLevel <= level {
			out = append(out, it)
		}
	}
	return out
}

func (p *AssetPool) StructuresFor(dim Dimension) []StructureTemplate {
	var out []StructureTemplate
	for _, s := range p.Structures {
		if s.Dimension == dim {
			out = append(out, s)
		}
	}
	return out
}

func containsDimension(dims []Dimension, d Dimension) bool {
	for _, x := range dims {
		if x == d {
			return true
		}
	}
	return false
}

// NarrativeState tracks which narrative messages a session has already shown.
// It is owned by the session and passed by pointer into generation.
type NarrativeState struct {
	used map[string]struct{}
}

func NewNarrativeState() *NarrativeState {
	return &NarrativeState{used: make(map[string]struct{})}
}

func (n *NarrativeState) Used(msg string) bool {
	_, ok := n.used[msg]
	return ok
}

func (n *NarrativeState) MarkUsed(msg string) {
	if n.used == nil {
		n.used = make(map[string]struct{})
	}
	n.used[msg] = struct{}{}
}

// Unused returns the messages from pool not yet shown, in pool order.
func (n *NarrativeState) Unused(pool []string) []string {
	var out []string
	for _, m := range pool {
		if !n.Used(m) {
			out = append(out, m)
		}
	}
	return out
}

func (n *NarrativeState) Len() int { return len(n.used) }

func (n *NarrativeState) Reset() {
	n.used = make(map[string]struct{})
}

// DefaultAssetPool returns the built-in catalogue.
func DefaultAssetPool() *AssetPool {
	return &AssetPool{
		Enemies: []EnemyTemplate{
			{Name: "Rat", Char: "r", BaseHP: 4, Attack: 1, Defense: 0, MinLevel: 1},
			{Name: "Wolf", Char: "w", BaseHP: 8, Attack: 3, Defense: 1, MinLevel: 2, Dimensions: []Dimension{Surface}},
			{Name: "Bandit", Char: "b", BaseHP: 10, Attack: 4, Defense: 2, MinLevel: 3, Dimensions: []Dimension{Surface, Interior}},
			{Name: "Cave Spider", Char: "s", BaseHP: 6, Attack: 4, Defense: 1, MinLevel: 2, Dimensions: []Dimension{Underground}},
			{Name: "Ghoul", Char: "g", BaseHP: 14, Attack: 5, Defense: 3, MinLevel: 5, Dimensions: []Dimension{Interior, Underground}},
			{Name: "Troll", Char: "T", BaseHP: 30, Attack: 8, Defense: 5, MinLevel: 8},
		},
		Items: []ItemTemplate{
			{Name: "Bread", Char: "%", MinLevel: 1},
			{Name: "Healing Potion", Char: "!", MinLevel: 1},
			{Name: "Torn Note", Char: "?", MinLevel: 1, Narrative: true},
			{Name: "Iron Sword", Char: "/", MinLevel: 3},
			{Name: "Chain Mail", Char: "[", MinLevel: 5},
			{Name: "Scroll of Return", Char: "?", MinLevel: 4},
		},
		Structures: []StructureTemplate{
			{Kind: "ruin", Width: 6, Height: 5, Dimension: Surface},
			{Kind: "camp", Width: 4, Height: 3, Dimension: Surface},
			{Kind: "room", Width: 8, Height: 6, Dimension: Interior},
			{Kind: "closet", Width: 4, Height: 4, Dimension: Interior},
			{Kind: "pillar", Width: 2, Height: 2, Dimension: Underground},
		},
		Messages: []string{
			"The road home runs west of the old well.",
			"They sealed the mines after the third collapse.",
			"Do not trust the lights below.",
			"The caravan never came back from the eastern dunes.",
			"Someone has scratched a map into the wall. Most of it is gone.",
		},
	}
}
