package metrics

import "hawkview/internal/models"

type Kind int

const (
	Gauge Kind = iota
	Counter
	CounterRate
)

func (k Kind) String() string {
	switch k {
	case Gauge:
		return "gauge"
	case Counter:
		return "counter"
	case CounterRate:
		return "counter-rate"
	default:
		return "unknown"
	}
}

const BytesToMB = 1.0 / 1024 / 1024

// Chart groups.
const (
	GroupHeap    = "heap"
	GroupNonHeap = "nonHeap"
	GroupGC      = "gcDuration"
)

// Stream is one named metric series of a resource.
type Stream struct {
	Name  string
	Group string
	Kind  Kind
	Color models.SeriesColor
	// Scale multiplies every value of the series; zero means unscaled.
	Scale float64
}

// JVMStreams is the memory catalogue of an application server.
var JVMStreams = []Stream{
	{Name: "Heap Committed", Group: GroupHeap, Kind: Gauge, Color: models.ColorCommitted, Scale: BytesToMB},
	{Name: "Heap Used", Group: GroupHeap, Kind: Gauge, Color: models.ColorUsed, Scale: BytesToMB},
	{Name: "Heap Max", Group: GroupHeap, Kind: Gauge, Color: models.ColorMaximum, Scale: BytesToMB},
	{Name: "NonHeap Committed", Group: GroupNonHeap, Kind: Gauge, Color: models.ColorCommitted, Scale: BytesToMB},
	{Name: "NonHeap Used", Group: GroupNonHeap, Kind: Gauge, Color: models.ColorUsed, Scale: BytesToMB},
	{Name: "Accumulated GC Duration", Group: GroupGC, Kind: CounterRate},
}

// MetricID formats the backend id of a resource's memory metric.
func MetricID(resourceID, name string) string {
	return "MI~R~[" + resourceID + "~~]~MT~WildFly Memory Metrics~" + name
}

func scale(points []models.BucketPoint, factor float64) []models.BucketPoint {
	out := make([]models.BucketPoint, len(points))
	for i, p := range points {
		if factor != 0 && !p.Empty {
			p.Min *= factor
			p.Max *= factor
			p.Avg *= factor
		}
		out[i] = p
	}
	return out
}
