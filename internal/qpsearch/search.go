package qpsearch

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Measurer encodes at a bitrate (kbit/s) and reports the average QP.
type Measurer interface {
	MeasureQP(ctx context.Context, bitrateK int) (float64, error)
}

type Params struct {
	TargetQP  float64
	Tolerance float64
	LowerK    int
	UpperK    int
	StepK     int
	MarginK   int
	MaxIter   int
}

func DefaultParams() Params {
	return Params{
		TargetQP:  22,
		Tolerance: 0.5,
		LowerK:    4000,
		UpperK:    15000,
		StepK:     500,
		MarginK:   100,
		MaxIter:   10,
	}
}

func (p Params) Validate() error {
	switch {
	case p.TargetQP <= 0:
		return errors.New("target QP must be > 0")
	case p.Tolerance < 0:
		return errors.New("tolerance must be >= 0")
	case p.LowerK <= 0 || p.UpperK <= p.LowerK:
		return errors.New("bounds must satisfy 0 < lower < upper")
	case p.StepK <= 0:
		return errors.New("step must be > 0")
	case p.MarginK < 0:
		return errors.New("margin must be >= 0")
	case p.MaxIter <= 0:
		return errors.New("max iterations must be > 0")
	}
	return nil
}

type Measurement struct {
	BitrateK int     `json:"bitrate_k"`
	QP       float64 `json:"qp"`
}

// Iteration records one interpolation step. Values are copied into the
// result and never updated afterwards.
type Iteration struct {
	Number    int         `json:"number"`
	Lower     Measurement `json:"lower"`
	Upper     Measurement `json:"upper"`
	Slope     float64     `json:"slope"`
	Intercept float64     `json:"intercept"`
	Candidate Measurement `json:"candidate"`
}

type Result struct {
	BitrateK   int           `json:"bitrate_k"`
	QP         float64       `json:"qp"`
	Converged  bool          `json:"converged"`
	Probes     []Measurement `json:"probes"`
	Iterations []Iteration   `json:"iterations"`
}

// Search looks for the bitrate whose measured average QP lands within
// Tolerance of TargetQP. The upper bound is first raised by StepK until it
// reaches the target, then the bracket is narrowed by linear interpolation.
func Search(ctx context.Context, m Measurer, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	res := Result{}
	measure := func(bitrateK int) (Measurement, error) {
		if err := ctx.Err(); err != nil {
			return Measurement{}, err
		}
		qp, err := m.MeasureQP(ctx, bitrateK)
		if err != nil {
			return Measurement{}, fmt.Errorf("measure %dk: %w", bitrateK, err)
		}
		return Measurement{BitrateK: bitrateK, QP: qp}, nil
	}

	lower, err := measure(p.LowerK)
	if err != nil {
		return res, err
	}
	res.Probes = append(res.Probes, lower)
	upper, err := measure(p.UpperK)
	if err != nil {
		return res, err
	}
	res.Probes = append(res.Probes, upper)

	for i := 0; upper.QP > p.TargetQP && i < p.MaxIter; i++ {
		upper, err = measure(upper.BitrateK + p.StepK)
		if err != nil {
			return res, err
		}
		res.Probes = append(res.Probes, upper)
	}

	var candidate Measurement
	for i := 0; i < p.MaxIter; i++ {
		if upper.BitrateK == lower.BitrateK {
			candidate = lower
			break
		}
		slope := (upper.QP - lower.QP) / float64(upper.BitrateK-lower.BitrateK)
		intercept := lower.QP - slope*float64(lower.BitrateK)

		next := (lower.BitrateK + upper.BitrateK) / 2
		if slope != 0 && !math.IsNaN(slope) {
			predicted := (p.TargetQP - intercept) / slope
			if !math.IsInf(predicted, 0) && !math.IsNaN(predicted) {
				next = int(predicted)
			}
		}
		if next <= lower.BitrateK {
			next = lower.BitrateK + p.MarginK
		} else if next >= upper.BitrateK {
			next = upper.BitrateK - p.MarginK
		}

		candidate, err = measure(next)
		if err != nil {
			return res, err
		}
		res.Iterations = append(res.Iterations, Iteration{
			Number:    i + 1,
			Lower:     lower,
			Upper:     upper,
			Slope:     slope,
			Intercept: intercept,
			Candidate: candidate,
		})

		if math.Abs(candidate.QP-p.TargetQP) <= p.Tolerance {
			res.Converged = true
			break
		}
		if candidate.QP > p.TargetQP {
			lower = candidate
		} else {
			upper = candidate
		}
	}

	res.BitrateK = candidate.BitrateK
	res.QP = candidate.QP
	if !res.Converged && math.Abs(candidate.QP-p.TargetQP) <= p.Tolerance {
		res.Converged = true
	}
	return res, nil
}
