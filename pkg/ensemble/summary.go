package ensemble

import (
	"github.com/naveedhsk/finops-ai-observability-poc/pkg/detectors"
)

// GroupSummary is the per-group slice of a Summary.
type GroupSummary struct {
	TotalRecords int     `json:"total_records"`
	AnomalyCount int     `json:"anomaly_count"`
	AnomalyRate  float64 `json:"anomaly_rate"`
}

// Summary aggregates a detection run.
type Summary struct {
	TotalRecords int     `json:"total_records"`
	AnomalyCount int     `json:"anomaly_count"`
	AnomalyRate  float64 `json:"anomaly_rate"`
	TotalCost    float64 `json:"total_cost"`
	AnomalyCost  float64 `json:"anomaly_cost"`
	// MethodsUsed counts the rows each method flagged. Every method is
	// present, with zero for methods that did not run.
	MethodsUsed map[detectors.Method]int `json:"methods_used"`
	// ByService is nil when the records carry no group column.
	ByService map[string]GroupSummary `json:"by_service,omitempty"`
}

// Summarize builds the Summary of annotated records. It never divides by
// zero: rates of empty sets are 0.
func Summarize(records []AnnotatedRecord, grouped bool) Summary {
	s := Summary{
		TotalRecords: len(records),
		MethodsUsed:  make(map[detectors.Method]int, len(detectors.Methods)),
	}
	for _, m := range detectors.Methods {
		s.MethodsUsed[m] = 0
	}
	if grouped {
		s.ByService = make(map[string]GroupSummary)
	}

	for _, r := range records {
		s.TotalCost += r.Amount
		for _, m := range detectors.Methods {
			if r.Flag(m) {
				s.MethodsUsed[m]++
			}
		}
		if r.IsAnomaly {
			s.AnomalyCount++
			s.AnomalyCost += r.Amount
		}
		if grouped {
			g := s.ByService[r.Group]
			g.TotalRecords++
			if r.IsAnomaly {
				g.AnomalyCount++
			}
			s.ByService[r.Group] = g
		}
	}

	s.AnomalyRate = rate(s.AnomalyCount, s.TotalRecords)
	for name, g := range s.ByService {
		g.AnomalyRate = rate(g.AnomalyCount, g.TotalRecords)
		s.ByService[name] = g
	}
	return s
}

func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}
