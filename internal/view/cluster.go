package view

import (
	"math"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// DefaultClusterRadius is the grid cell edge in screen pixels.
const DefaultClusterRadius = 40

// clusterNamespace seeds name-based cluster ids.
var clusterNamespace = uuid.MustParse("5b0e3f7e-6a43-4f0c-9a55-2d0c8f1b7e21")

// Viewport is the size of the drawing surface in pixels.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Cluster is a group of two or more points drawn as one marker.
type Cluster struct {
	// ID is derived from the sorted member ids, so the same members always
	// give the same cluster.
	ID        string     `json:"id"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Count     int        `json:"count"`
	Points    []MapPoint `json:"points"`
}

// ClusterResult splits points into clusters and points drawn on their own.
type ClusterResult struct {
	Clusters []Cluster  `json:"clusters"`
	Singles  []MapPoint `json:"singles"`
}

type cell struct{ x, y int64 }

// ClusterPoints buckets points into a pixel grid over region with cells of
// radiusPx. Cells holding more than one point become a cluster positioned at
// the members' centroid. Output order follows the first appearance of each
// cell in points. A non-positive radius or viewport disables clustering.
func ClusterPoints(points []MapPoint, region Region, vp Viewport, radiusPx float64) ClusterResult {
	res := ClusterResult{Clusters: []Cluster{}, Singles: []MapPoint{}}
	if radiusPx <= 0 || vp.Width <= 0 || vp.Height <= 0 ||
		region.LatitudeDelta <= 0 || region.LongitudeDelta <= 0 {
		res.Singles = append(res.Singles, points...)
		return res
	}

	west := region.Longitude - region.LongitudeDelta/2
	north := region.Latitude + region.LatitudeDelta/2
	pxPerLon := vp.Width / region.LongitudeDelta
	pxPerLat := vp.Height / region.LatitudeDelta

	var order []cell
	buckets := make(map[cell][]MapPoint)
	for _, p := range points {
		x := (p.Longitude - west) * pxPerLon
		y := (north - p.Latitude) * pxPerLat
		k := cell{int64(math.Floor(x / radiusPx)), int64(math.Floor(y / radiusPx))}
		if _, seen := buckets[k]; !seen {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], p)
	}

	for _, k := range order {
		members := buckets[k]
		if len(members) == 1 {
			res.Singles = append(res.Singles, members[0])
			continue
		}
		res.Clusters = append(res.Clusters, newCluster(members))
	}
	return res
}

func newCluster(members []MapPoint) Cluster {
	ids := make([]string, len(members))
	var lat, lon float64
	for i, p := range members {
		ids[i] = p.ID
		lat += p.Latitude
		lon += p.Longitude
	}
	slices.Sort(ids)
	n := float64(len(members))
	return Cluster{
		ID:        uuid.NewSHA1(clusterNamespace, []byte(strings.Join(ids, "\x00"))).String(),
		Latitude:  lat / n,
		Longitude: lon / n,
		Count:     len(members),
		Points:    members,
	}
}

// ZoomToCluster centres on c and halves the current span.
func ZoomToCluster(c *Cluster, current Region) Region {
	return Region{
		Latitude:       c.Latitude,
		Longitude:      c.Longitude,
		LatitudeDelta:  current.LatitudeDelta / 2,
		LongitudeDelta: current.LongitudeDelta / 2,
	}
}
