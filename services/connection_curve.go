package services

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidConfiguration = errors.New("invalid configuration")

// ConnectionCurve maps the distance of a zone border from the origin to the
// probability that the border has an opening. Implementations must be
// monotonically non-increasing in distance.
type ConnectionCurve interface {
	Probability(distance int) float64
}

// CurveFunc adapts a plain function to ConnectionCurve.
type CurveFunc func(distance int) float64

func (f CurveFunc) Probability(distance int) float64 { return f(distance) }

// ExponentialCurve decays from Base by a factor of Decay per zone of
// distance, never dropping below Floor.
type ExponentialCurve struct {
	Base  float64
	Decay float64
	Floor float64
}

// DefaultConnectionCurve connects the origin almost certainly and leaves far
// zones sparse.
func DefaultConnectionCurve() ExponentialCurve {
	return ExponentialCurve{Base: 0.95, Decay: 0.8, Floor: 0.15}
}

func (c ExponentialCurve) Probability(distance int) float64 {
	if distance < 0 {
		distance = 0
	}
	p := c.Base * math.Pow(c.Decay, float64(distance))
	if p < c.Floor {
		return c.Floor
	}
	return p
}

func (c ExponentialCurve) Validate() error {
	switch {
	case c.Base <= 0 || c.Base > 1:
		return fmt.Errorf("%w: curve base %v outside (0,1]", ErrInvalidConfiguration, c.Base)
	case c.Decay <= 0 || c.Decay > 1:
		return fmt.Errorf("%w: curve decay %v outside (0,1]", ErrInvalidConfiguration, c.Decay)
	case c.Floor < 0 || c.Floor > c.Base:
		return fmt.Errorf("%w: curve floor %v outside [0,base]", ErrInvalidConfiguration, c.Floor)
	}
	return nil
}

// checkCurve samples a curve and rejects values outside [0,1] or any increase
// with distance.
func checkCurve(c ConnectionCurve) error {
	if v, ok := c.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	prev := math.Inf(1)
	for d := 0; d <= 64; d++ {
		p := c.Probability(d)
		if math.IsNaN(p) || p < 0 || p > 1 {
			return fmt.Errorf("%w: probability %v at distance %d", ErrInvalidConfiguration, p, d)
		}
		if p > prev {
			return fmt.Errorf("%w: probability rises at distance %d", ErrInvalidConfiguration, d)
		}
		prev = p
	}
	return nil
}
