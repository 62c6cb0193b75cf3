package models

import "time"

type Player struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Zone       ZoneKey   `json:"zone"`
	X          int       `json:"x"`
	Y          int       `json:"y"`
	Icon       string    `json:"icon"`
	HP         int       `json:"hp"`
	MaxHP      int       `json:"max_hp"`
	Level      int       `json:"level"`
	Experience int       `json:"experience"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Structure is a building or landmark occupying a rectangle of a zone
type Structure struct {
	Kind   string `json:"kind"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Contains reports whether the tile (x, y) lies inside the footprint.
func (s Structure) Contains(x, y int) bool {
	return x >= s.X && x < s.X+s.Width && y >= s.Y && y < s.Y+s.Height
}

type EnemyPlacement struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Char    string `json:"char"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	HP      int    `json:"hp"`
	Attack  int    `json:"attack"`
	Defense int    `json:"defense"`
	Level   int    `json:"level"`
}

type ItemPlacement struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Char    string `json:"char"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Message string `json:"message,omitempty"` // narrative text for notes and signs
}

type Position struct {
	Zone ZoneKey `json:"zone"`
	X    int     `json:"x"`
	Y    int     `json:"y"`
}
