package ui

import "strings"

// sparkRunes are the block characters for sparkline cells, lowest to
// highest.
var sparkRunes = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline keeps a ring of recent throughput samples and renders
// them as a row of block characters.
type Sparkline struct {
	samples []float64
	head    int
	count   int
	max     float64
}

// NewSparkline creates a sparkline holding up to capacity samples.
func NewSparkline(capacity int) *Sparkline {
	if capacity <= 0 {
		capacity = 60
	}
	return &Sparkline{samples: make([]float64, capacity)}
}

// Add appends one sample, evicting the oldest when full.
func (s *Sparkline) Add(value float64) {
	s.samples[s.head] = value
	s.head = (s.head + 1) % len(s.samples)
	s.count++

	if value > s.max {
		s.max = value
	}
	// Re-derive the scale once per full revolution so evicted peaks
	// stop squashing the chart.
	if s.count%len(s.samples) == 0 {
		s.rescale()
	}
}

func (s *Sparkline) rescale() {
	s.max = 0
	for _, v := range s.samples {
		if v > s.max {
			s.max = v
		}
	}
}

// Render draws the newest samples right-aligned into width cells,
// padding the left with spaces until the ring fills.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = len(s.samples)
	}
	stored := min(s.count, len(s.samples))
	shown := min(stored, width)

	var b strings.Builder
	b.Grow(width * 3)
	if pad := width - shown; pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}

	start := s.head - shown
	if start < 0 {
		start += len(s.samples)
	}
	for i := 0; i < shown; i++ {
		v := s.samples[(start+i)%len(s.samples)]
		idx := 0
		if s.max > 0 {
			idx = int(v / s.max * float64(len(sparkRunes)-1))
			if idx < 0 {
				idx = 0
			}
			if idx >= len(sparkRunes) {
				idx = len(sparkRunes) - 1
			}
		}
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}

// Clear resets the sparkline to empty.
func (s *Sparkline) Clear() {
	for i := range s.samples {
		s.samples[i] = 0
	}
	s.head = 0
	s.count = 0
	s.max = 0
}

// Count returns the number of samples added since creation or Clear.
func (s *Sparkline) Count() int {
	return s.count
}
