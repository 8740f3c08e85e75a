package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"mktmetrics/internal/application/port"
	"mktmetrics/internal/application/usecase/monitor"
	"mktmetrics/internal/domain"
)

// Sink prints every stored sample as one line.
type Sink struct {
	mu  sync.Mutex
	out io.Writer
	fmt *monitor.Formatter
}

func NewSink(color bool) *Sink { return NewSinkTo(os.Stdout, color) }

func NewSinkTo(w io.Writer, color bool) *Sink {
	return &Sink{out: w, fmt: monitor.NewFormatter(color)}
}

func (s *Sink) Publish(ctx context.Context, m *domain.MarketMetrics) error {
	line := s.fmt.RenderSample(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.out, line)
	return err
}

func (s *Sink) Close() error { return nil }

var _ port.MetricsSink = (*Sink)(nil)
