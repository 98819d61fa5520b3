package gateway

import (
	"math"
	"sync"

	"github.com/mcoot/tagmatch/internal/dependencies/random"
	"github.com/mcoot/tagmatch/internal/model"
)

// SpawnProvider hands out spawn positions for approved connections
type SpawnProvider interface {
	Next() model.SpawnPoint
}

// BagSpawnProvider draws points without replacement from a shuffled bag,
// refilling it once every point has been handed out
type BagSpawnProvider struct {
	points []model.SpawnPoint
	random random.Random

	mu  sync.Mutex
	bag []int
}

// NewBagSpawnProvider creates a provider over points.
// With no points it falls back to DefaultSpawnPoints(8, 10).
func NewBagSpawnProvider(points []model.SpawnPoint, rng random.Random) *BagSpawnProvider {
	if len(points) == 0 {
		points = DefaultSpawnPoints(8, 10)
	}
	return &BagSpawnProvider{
		points: points,
		random: rng,
	}
}

// Next returns the next spawn point
func (p *BagSpawnProvider) Next() model.SpawnPoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.bag) == 0 {
		p.bag = p.random.Perm(len(p.points))
	}
	idx := p.bag[0]
	p.bag = p.bag[1:]
	return p.points[idx]
}

// DefaultSpawnPoints places n points evenly on a ring of the given radius
func DefaultSpawnPoints(n int, radius float64) []model.SpawnPoint {
	points := make([]model.SpawnPoint, n)
	for i := range points {
		angle := 2 * math.Pi * float64(i) / float64(n)
		points[i] = model.SpawnPoint{
			X: math.Round(radius*math.Cos(angle)*100) / 100,
			Z: math.Round(radius*math.Sin(angle)*100) / 100,
		}
	}
	return points
}
