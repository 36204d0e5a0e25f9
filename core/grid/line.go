package grid

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kilianp07/gridsim/core/logger"
)

// minReportedLoss is the lower bound of sampled reported losses.
const minReportedLoss = 0.01

// LossSampler draws the loss factor reported for display. It never affects
// the delivered power.
type LossSampler interface {
	Sample(lossFactor float64) float64
}

// UniformLossSampler samples uniformly in [0.01, lossFactor].
type UniformLossSampler struct {
	src rand.Source
}

func NewUniformLossSampler(src rand.Source) *UniformLossSampler {
	return &UniformLossSampler{src: src}
}

func (s *UniformLossSampler) Sample(lossFactor float64) float64 {
	if lossFactor <= minReportedLoss {
		return lossFactor
	}
	return distuv.Uniform{Min: minReportedLoss, Max: lossFactor, Src: s.src}.Rand()
}

// Transmission is the outcome of sending power down a line.
type Transmission struct {
	Sent         float64
	Delivered    float64
	Lost         float64
	ReportedLoss float64
}

// Line is a lossy transmission line. It holds no state across steps.
type Line struct {
	id         string
	lossFactor float64
	sampler    LossSampler
	log        logger.Logger
}

// NewLine returns a line losing lossFactor of what it carries. sampler may be
// nil, in which case the reported loss equals lossFactor.
func NewLine(id string, lossFactor float64, sampler LossSampler, log logger.Logger) (*Line, error) {
	if id == "" {
		return nil, fmt.Errorf("line: empty id")
	}
	if !finite(lossFactor) || lossFactor < 0 || lossFactor >= 1 {
		return nil, fmt.Errorf("line %s: loss factor %v outside [0,1)", id, lossFactor)
	}
	return &Line{id: id, lossFactor: lossFactor, sampler: sampler, log: logger.OrNop(log)}, nil
}

func (l *Line) ID() string { return l.id }

func (l *Line) LossFactor() float64 { return l.lossFactor }

// Transmit returns what survives the line.
func (l *Line) Transmit(power float64) Transmission {
	if power < 0 {
		power = 0
	}
	delivered := floorWh(power * (1 - l.lossFactor))
	t := Transmission{
		Sent:         power,
		Delivered:    delivered,
		Lost:         power - delivered,
		ReportedLoss: l.lossFactor,
	}
	if l.sampler != nil {
		t.ReportedLoss = l.sampler.Sample(l.lossFactor)
	}
	l.log.Debugf("%s transmitted %.0f Wh, delivered %.0f Wh (loss %.2f%%)", l.id, power, delivered, t.ReportedLoss*100)
	return t
}
