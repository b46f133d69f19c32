package align

// Least-squares transform estimation from the per-cell offset field,
// with greedy one-at-a-time outlier rejection: fit, score every
// sample by squared residual, and while the median residual is over
// the limit keep evicting the single worst offender and refitting.
// Deterministic, and always removes exactly one sample per round.

import(
	"fmt"
	"log"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"framecal/pkg/fmath"
)

type Kind int

const (
	Similarity Kind = iota // uniform scale + rotation + translation
	Affine
)

func KindFromString(s string) (Kind, error) {
	switch s {
	case "", "similarity":
		return Similarity, nil
	case "affine":
		return Affine, nil
	}
	return Similarity, fmt.Errorf("no transform kind named '%s'", s)
}

// A Sample is one tracker measurement: a grid anchor and where its
// content was found, both in mosaic-pattern units.
type Sample struct {
	GY, GX float64
	MY, MX float64
}

// A Transform maps grid coordinates to measured positions:
// x' = A*x + B*y + TX, y' = C*x + D*y + TY. Immutable once fitted.
type Transform struct {
	A, B, TX float64
	C, D, TY float64
}

func IdentityTransform() Transform {
	return Transform{A: 1, D: 1}
}

func (t Transform)Apply(x, y float64) (float64, float64) {
	return t.A*x + t.B*y + t.TX, t.C*x + t.D*y + t.TY
}

func (t Transform)Translation() (ty, tx float64) { return t.TY, t.TX }

func (t Transform)Scale() float64 {
	return math.Sqrt(math.Abs(t.A*t.D - t.B*t.C))
}

func (t Transform)RotationDeg() float64 {
	return math.Atan2(t.C, t.A) * 180.0 / math.Pi
}

func (t Transform)Aff3() fmath.Aff3 {
	return fmath.Aff3{t.A, t.B, t.TX, t.C, t.D, t.TY}
}

func (t Transform)String() string {
	return fmt.Sprintf("XForm[scale %.4f, rot %5.2fdeg, trans (%6.2f,%6.2f)]",
		t.Scale(), t.RotationDeg(), t.TY, t.TX)
}

// fitTransform solves the overdetermined linear system mapping grid
// anchors onto measured positions, via QR.
func fitTransform(kind Kind, samples []Sample) (Transform, error) {
	n := len(samples)

	switch kind {

	case Similarity:
		// Unknowns [a, b, tx, ty]: x' = a*x - b*y + tx, y' = b*x + a*y + ty
		if n < 2 {
			return Transform{}, fmt.Errorf("similarity fit needs 2 samples, got %d", n)
		}
		A := mat.NewDense(n*2, 4, nil)
		B := mat.NewVecDense(n*2, nil)
		for i, s := range samples {
			A.Set(i*2, 0, s.GX)
			A.Set(i*2, 1, -s.GY)
			A.Set(i*2, 2, 1)
			B.SetVec(i*2, s.MX)

			A.Set(i*2+1, 0, s.GY)
			A.Set(i*2+1, 1, s.GX)
			A.Set(i*2+1, 3, 1)
			B.SetVec(i*2+1, s.MY)
		}

		params, err := solveQR(A, B, 4)
		if err != nil {
			return Transform{}, err
		}
		a, b := params.AtVec(0), params.AtVec(1)
		return Transform{A: a, B: -b, TX: params.AtVec(2), C: b, D: a, TY: params.AtVec(3)}, nil

	case Affine:
		// Unknowns [a, b, tx, c, d, ty]
		if n < 3 {
			return Transform{}, fmt.Errorf("affine fit needs 3 samples, got %d", n)
		}
		A := mat.NewDense(n*2, 6, nil)
		B := mat.NewVecDense(n*2, nil)
		for i, s := range samples {
			A.Set(i*2, 0, s.GX)
			A.Set(i*2, 1, s.GY)
			A.Set(i*2, 2, 1)
			B.SetVec(i*2, s.MX)

			A.Set(i*2+1, 3, s.GX)
			A.Set(i*2+1, 4, s.GY)
			A.Set(i*2+1, 5, 1)
			B.SetVec(i*2+1, s.MY)
		}

		params, err := solveQR(A, B, 6)
		if err != nil {
			return Transform{}, err
		}
		return Transform{
			A: params.AtVec(0), B: params.AtVec(1), TX: params.AtVec(2),
			C: params.AtVec(3), D: params.AtVec(4), TY: params.AtVec(5),
		}, nil
	}

	return Transform{}, fmt.Errorf("unknown transform kind %d", kind)
}

func solveQR(A *mat.Dense, B *mat.VecDense, nParams int) (*mat.VecDense, error) {
	var qr mat.QR
	qr.Factorize(A)

	params := mat.NewVecDense(nParams, nil)
	if err := qr.SolveVecTo(params, false, B); err != nil {
		return nil, fmt.Errorf("transform fit: %v", err)
	}
	return params, nil
}

// residualsSq returns the squared error of each sample under t.
func residualsSq(t Transform, samples []Sample) []float64 {
	rs := make([]float64, len(samples))
	for i, s := range samples {
		px, py := t.Apply(s.GX, s.GY)
		rs[i] = (px-s.MX)*(px-s.MX) + (py-s.MY)*(py-s.MY)
	}
	return rs
}

func medianResidual(rs []float64) float64 {
	sorted := append([]float64{}, rs...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// FitRobust runs the outlier-rejection loop. Returns the fitted
// transform, the samples that survived, and whether the fit
// converged; fewer than 4 surviving samples is a rejection.
func FitRobust(kind Kind, samples []Sample, limit float64) (Transform, []Sample, bool) {
	samples = append([]Sample{}, samples...)

	for {
		if len(samples) < 4 {
			log.Printf("Can't remove any more grid points\n")
			return Transform{}, nil, false
		}

		t, err := fitTransform(kind, samples)
		if err != nil {
			log.Printf("Transform fit failed: %v\n", err)
			return Transform{}, nil, false
		}

		rs := residualsSq(t, samples)
		med := medianResidual(rs)
		log.Printf("Median shift error: %.3f\n", med)

		if med <= limit {
			return t, samples, true
		}

		// Pick the worst and get it out of the way
		worst := 0
		for i, r := range rs {
			if r > rs[worst] {
				worst = i
			}
		}
		samples = append(samples[:worst], samples[worst+1:]...)
	}
}
