// Package aggregate groups retained Sales by (cardId, bucket) and computes
// the rolling median price for each group (spec.md §4.11). The sort-then-
// take-middle median calculation is grounded on the teacher's
// internal/fusion/resolver.go resolveMedian and
// internal/marketplace/provider.go GetPriceDistribution.
package aggregate

import (
	"math"
	"sort"

	"github.com/guarzo/pkmcatalog/internal/model"
)

// ByCard is the in-memory shape of prices.json's byCard map.
type ByCard map[string]map[model.Bucket]model.PriceAggregate

// Build groups sales by cardId then bucket and computes each group's
// median. Every card that has at least one retained sale gets all six
// canonical buckets present, empty ones as {median_eur: null, n: 0}. The
// transient graad_unknown bucket is dropped before grouping, since it must
// never be persisted.
func Build(sales []model.Sale) ByCard {
	grouped := make(map[string]map[model.Bucket][]float64)

	for _, sale := range sales {
		if sale.Bucket == model.BucketUnknown {
			continue
		}
		if math.IsNaN(sale.PriceEur) || math.IsInf(sale.PriceEur, 0) {
			continue
		}
		byBucket, ok := grouped[sale.CardID]
		if !ok {
			byBucket = make(map[model.Bucket][]float64)
			grouped[sale.CardID] = byBucket
		}
		byBucket[sale.Bucket] = append(byBucket[sale.Bucket], sale.PriceEur)
	}

	result := make(ByCard, len(grouped))
	for cardID, byBucket := range grouped {
		buckets := make(map[model.Bucket]model.PriceAggregate, len(model.CanonicalBuckets))
		for _, bucket := range model.CanonicalBuckets {
			buckets[bucket] = medianOf(byBucket[bucket])
		}
		result[cardID] = buckets
	}
	return result
}

// medianOf computes {medianEur, n} for one (card, bucket) sample set: sort
// ascending, take the middle element, or the mean of the two middles for an
// even-length sample. An empty sample yields {null, 0}.
func medianOf(prices []float64) model.PriceAggregate {
	n := len(prices)
	if n == 0 {
		return model.PriceAggregate{MedianEur: nil, N: 0}
	}

	sorted := make([]float64, n)
	copy(sorted, prices)
	sort.Float64s(sorted)

	var median float64
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	} else {
		median = sorted[n/2]
	}
	return model.PriceAggregate{MedianEur: &median, N: n}
}
