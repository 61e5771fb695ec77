package qpsearch

import (
	"context"
	"errors"
	"testing"
)

// qp = base - bitrate/div; an integer div keeps the sample points exact.
type linearMeasurer struct {
	base  float64
	div   float64
	calls []int
}

func (m *linearMeasurer) MeasureQP(_ context.Context, bitrateK int) (float64, error) {
	m.calls = append(m.calls, bitrateK)
	return m.base - float64(bitrateK)/m.div, nil
}

func TestSearch_ConvergesOnLinearCurve(t *testing.T) {
	m := &linearMeasurer{base: 40, div: 500}
	res, err := Search(context.Background(), m, DefaultParams())
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !res.Converged {
		t.Fatalf("expected convergence, got %+v", res)
	}
	if res.BitrateK < 8750 || res.BitrateK > 9250 {
		t.Fatalf("expected bitrate near 9000k, got %dk", res.BitrateK)
	}
	if len(res.Probes) != 2 {
		t.Fatalf("expected only the two bound probes, got %d", len(res.Probes))
	}
	if len(res.Iterations) != 1 {
		t.Fatalf("expected one interpolation step, got %d", len(res.Iterations))
	}
	it := res.Iterations[0]
	if it.Lower.BitrateK != 4000 || it.Upper.BitrateK != 15000 || it.Slope >= 0 {
		t.Fatalf("unexpected iteration record: %+v", it)
	}
}

func TestSearch_RaisesUpperBound(t *testing.T) {
	m := &linearMeasurer{base: 60, div: 500}
	res, err := Search(context.Background(), m, DefaultParams())
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	// 15000k gives QP 30; 19000k is the first step at or below 22.
	last := res.Probes[len(res.Probes)-1]
	if last.BitrateK != 19000 {
		t.Fatalf("expected upper bound raised to 19000k, got %dk", last.BitrateK)
	}
	if len(res.Probes) != 10 {
		t.Fatalf("expected 2 bound probes + 8 raises, got %d", len(res.Probes))
	}
	if !res.Converged {
		t.Fatalf("expected convergence, got %+v", res)
	}
	for _, it := range res.Iterations {
		if it.Candidate.BitrateK <= it.Lower.BitrateK || it.Candidate.BitrateK >= it.Upper.BitrateK {
			t.Fatalf("candidate escaped bracket: %+v", it)
		}
	}
}

type stepMeasurer struct{}

func (stepMeasurer) MeasureQP(_ context.Context, bitrateK int) (float64, error) {
	if bitrateK < 10000 {
		return 30, nil
	}
	return 10, nil
}

func TestSearch_StopsAtMaxIterations(t *testing.T) {
	p := DefaultParams()
	p.MaxIter = 4
	res, err := Search(context.Background(), stepMeasurer{}, p)
	if err != nil {
		t.Fatal(err)
	}
	if res.Converged {
		t.Fatalf("step curve cannot converge, got %+v", res)
	}
	if len(res.Iterations) != 4 {
		t.Fatalf("expected exactly MaxIter iterations, got %d", len(res.Iterations))
	}
	for i, it := range res.Iterations {
		if it.Number != i+1 {
			t.Fatalf("iterations out of order: %+v", res.Iterations)
		}
	}
}

type failingMeasurer struct{}

func (failingMeasurer) MeasureQP(context.Context, int) (float64, error) {
	return 0, errors.New("encoder crashed")
}

func TestSearch_PropagatesMeasureErrors(t *testing.T) {
	if _, err := Search(context.Background(), failingMeasurer{}, DefaultParams()); err == nil {
		t.Fatal("expected measure error")
	}
}

func TestSearch_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := &linearMeasurer{base: 40, div: 500}
	if _, err := Search(ctx, m, DefaultParams()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(m.calls) != 0 {
		t.Fatalf("expected no measurements after cancel, got %v", m.calls)
	}
}

func TestParamsValidate(t *testing.T) {
	p := DefaultParams()
	p.UpperK = p.LowerK
	if err := p.Validate(); err == nil {
		t.Fatal("expected invalid bounds to fail")
	}
}
