package services

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"sales-insight-api/pkg/models"
)

const (
	// DefaultClusterCount is the number of spend segments produced by default.
	DefaultClusterCount = 10
	// DefaultClusterSeed fixes the k-means++ seeding for reproducible output.
	DefaultClusterSeed = 42
)

// ClusterOptions configures ClusterCustomers.
type ClusterOptions struct {
	K       int
	Seed    uint64
	NInit   int
	MaxIter int
}

// DefaultClusterOptions returns k=10, seed 42, 10 restarts and 300 iterations.
func DefaultClusterOptions() ClusterOptions {
	return ClusterOptions{K: DefaultClusterCount, Seed: DefaultClusterSeed, NInit: 10, MaxIter: 300}
}

// KMeans partitions points into K clusters with k-means++ seeding and Lloyd iterations.
// Each of NInit restarts draws from one seeded PCG source; the lowest-inertia run wins.
type KMeans struct {
	K       int
	Seed    uint64
	NInit   int
	MaxIter int
	Tol     float64
}

// KMeansResult holds the labels and centroids of the best run.
type KMeansResult struct {
	Labels    []int
	Centroids [][]float64
	Inertia   float64
}

// Fit clusters points. It requires at least K points.
func (km KMeans) Fit(points [][]float64) (*KMeansResult, error) {
	if km.K < 1 {
		return nil, &ConfigurationError{Field: "k", Reason: fmt.Sprintf("must be at least 1, got %d", km.K)}
	}
	if len(points) < km.K {
		return nil, &ConfigurationError{Field: "k", Reason: fmt.Sprintf("%d clusters requested but only %d entities available", km.K, len(points))}
	}
	nInit := max(km.NInit, 1)
	maxIter := km.MaxIter
	if maxIter <= 0 {
		maxIter = 300
	}
	tol := km.Tol
	if tol <= 0 {
		tol = 1e-4
	}

	rng := rand.New(rand.NewPCG(km.Seed, km.Seed^0x9e3779b97f4a7c15))
	var best *KMeansResult
	for run := 0; run < nInit; run++ {
		centroids := kmeansPlusPlus(points, km.K, rng)
		res := lloyd(points, centroids, maxIter, tol)
		if best == nil || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best, nil
}

// kmeansPlusPlus picks the first centroid uniformly and each next one with
// probability proportional to the squared distance to the nearest chosen centroid.
func kmeansPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clonePoint(points[rng.IntN(len(points))]))

	dist := make([]float64, len(points))
	for len(centroids) < k {
		var total float64
		for i, p := range points {
			dist[i] = nearestDistance(p, centroids)
			total += dist[i]
		}
		if total == 0 {
			// 全点が既存の重心と一致
			centroids = append(centroids, clonePoint(points[rng.IntN(len(points))]))
			continue
		}
		target := rng.Float64() * total
		chosen := len(points) - 1
		var acc float64
		for i, d := range dist {
			acc += d
			if acc >= target && d > 0 {
				chosen = i
				break
			}
		}
		centroids = append(centroids, clonePoint(points[chosen]))
	}
	return centroids
}

func lloyd(points [][]float64, centroids [][]float64, maxIter int, tol float64) *KMeansResult {
	k := len(centroids)
	dim := len(points[0])
	labels := make([]int, len(points))

	for iter := 0; iter < maxIter; iter++ {
		for i, p := range points {
			labels[i] = nearestCentroid(p, centroids)
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, p := range points {
			c := labels[i]
			counts[c]++
			for d := range p {
				sums[c][d] += p[d]
			}
		}

		var shift float64
		for c := 0; c < k; c++ {
			var next []float64
			if counts[c] == 0 {
				far := farthestPoint(points, labels, centroids)
				next = clonePoint(points[far])
				labels[far] = c
			} else {
				next = make([]float64, dim)
				for d := range next {
					next[d] = sums[c][d] / float64(counts[c])
				}
			}
			shift += squaredDistance(next, centroids[c])
			centroids[c] = next
		}
		if shift <= tol {
			break
		}
	}

	var inertia float64
	for i, p := range points {
		labels[i] = nearestCentroid(p, centroids)
		inertia += squaredDistance(p, centroids[labels[i]])
	}
	return &KMeansResult{Labels: labels, Centroids: centroids, Inertia: inertia}
}

// farthestPoint returns the point with the largest distance to its own centroid.
func farthestPoint(points [][]float64, labels []int, centroids [][]float64) int {
	best, bestDist := 0, -1.0
	for i, p := range points {
		if d := squaredDistance(p, centroids[labels[i]]); d > bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func nearestCentroid(p []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := squaredDistance(p, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func nearestDistance(p []float64, centroids [][]float64) float64 {
	return squaredDistance(p, centroids[nearestCentroid(p, centroids)])
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func clonePoint(p []float64) []float64 {
	return append([]float64(nil), p...)
}

// clusteringRules returns the cleaning rules of the clustering pipeline.
func clusteringRules(cols models.ColumnMap) ([]ColumnRule, []string) {
	rules := []ColumnRule{
		{Column: cols.EntityName, Transform: TrimText},
		{Column: cols.Quantity, Transform: ParseNumber},
		{Column: cols.UnitPrice, Transform: ParseNumber},
		{Column: cols.Amount, Transform: ParseNumber},
	}
	return rules, []string{cols.EntityName, cols.Quantity, cols.UnitPrice, cols.Amount}
}

// AggregateCustomers sums Amount and Qty and averages the unit price per entity.
// The result is ordered by entity name.
func AggregateCustomers(rows []models.SalesRow) []models.CustomerAggregate {
	type acc struct {
		amount, qty, price float64
		n                  int
	}
	byName := make(map[string]*acc)
	for _, r := range rows {
		a, ok := byName[r.EntityName]
		if !ok {
			a = &acc{}
			byName[r.EntityName] = a
		}
		a.amount += r.Amount
		a.qty += r.Quantity
		a.price += r.UnitPrice
		a.n++
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]models.CustomerAggregate, 0, len(names))
	for _, name := range names {
		a := byName[name]
		out = append(out, models.CustomerAggregate{
			Name:       name,
			Amount:     a.amount,
			Qty:        a.qty,
			SalesPrice: a.price / float64(a.n),
		})
	}
	return out
}

// ClusterCustomers segments customers by standardized total spend.
// Quantity, unit price and amount are aggregated per customer; only the amount
// feeds the partitioning. Fewer distinct customers than opts.K is a ConfigurationError.
func ClusterCustomers(table models.RawTable, cols models.ColumnMap, opts ClusterOptions) (*models.ClusterResult, error) {
	if opts.K < 1 {
		return nil, &ConfigurationError{Field: "k", Reason: fmt.Sprintf("must be at least 1, got %d", opts.K)}
	}

	rules, required := clusteringRules(cols)
	frame, err := Clean(table, rules, required)
	if err != nil {
		return nil, err
	}

	customers := AggregateCustomers(frame.SalesRows(cols))
	if len(customers) < opts.K {
		return nil, &ConfigurationError{Field: "k", Reason: fmt.Sprintf("%d clusters requested but only %d customers available", opts.K, len(customers))}
	}

	amounts := make([]float64, len(customers))
	for i, c := range customers {
		amounts[i] = c.Amount
	}
	scaled := standardize(amounts)
	points := make([][]float64, len(scaled))
	for i, v := range scaled {
		points[i] = []float64{v}
	}

	km := KMeans{K: opts.K, Seed: opts.Seed, NInit: opts.NInit, MaxIter: opts.MaxIter}
	fit, err := km.Fit(points)
	if err != nil {
		return nil, err
	}

	membership := make(map[int][]string, opts.K)
	for i := range customers {
		customers[i].ScaledAmount = scaled[i]
		customers[i].Cluster = fit.Labels[i]
		membership[fit.Labels[i]] = append(membership[fit.Labels[i]], customers[i].Name)
	}

	return &models.ClusterResult{
		K:           opts.K,
		Customers:   customers,
		Summary:     summarizeClusters(customers, opts.K),
		Membership:  membership,
		Inertia:     fit.Inertia,
		DroppedRows: frame.Dropped,
	}, nil
}

// summarizeClusters averages each numeric aggregate per populated cluster, ordered by id.
func summarizeClusters(customers []models.CustomerAggregate, k int) []models.ClusterSummary {
	sums := make([]models.ClusterSummary, k)
	for i := range sums {
		sums[i].Cluster = i
	}
	for _, c := range customers {
		s := &sums[c.Cluster]
		s.Members++
		s.Amount += c.Amount
		s.Qty += c.Qty
		s.SalesPrice += c.SalesPrice
	}

	out := make([]models.ClusterSummary, 0, k)
	for _, s := range sums {
		if s.Members == 0 {
			continue
		}
		n := float64(s.Members)
		s.Amount /= n
		s.Qty /= n
		s.SalesPrice /= n
		out = append(out, s)
	}
	return out
}
