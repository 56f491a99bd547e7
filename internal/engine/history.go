package engine

import "papertrader/internal/models"

// priceRing is a fixed-capacity window of price points. Pushing past
// capacity evicts the oldest point.
type priceRing struct {
	points []models.PricePoint
	start  int
	size   int
}

func newPriceRing(capacity int) *priceRing {
	return &priceRing{points: make([]models.PricePoint, capacity)}
}

func (r *priceRing) push(p models.PricePoint) {
	capacity := len(r.points)
	if r.size < capacity {
		r.points[(r.start+r.size)%capacity] = p
		r.size++
		return
	}
	r.points[r.start] = p
	r.start = (r.start + 1) % capacity
}

// snapshot returns the window oldest first.
func (r *priceRing) snapshot() []models.PricePoint {
	out := make([]models.PricePoint, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.points[(r.start+i)%len(r.points)]
	}
	return out
}

func (r *priceRing) len() int { return r.size }
