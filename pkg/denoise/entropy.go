package denoise

import(
	"gonum.org/v1/gonum/stat"

	"framecal/pkg/frame"
)

// Entropy scores a candidate dark weight kNum/kDenom against a light
// frame: subtract the weighed dark, take the residual magnitudes,
// and compute the Shannon entropy of their exact count histogram.
// The better the dark cancels the sensor noise, the more the residual
// concentrates around pure photon noise, and the lower the entropy.
//
// Note there is no clamping here - the objective sees signed
// residuals folded by abs(), clamping only happens when a finalized
// weight is applied.
func Entropy(light, dark *frame.Frame, kNum, kDenom int) float64 {
	counts := make([]float64, 65536)

	lp, dp := light.Raw.Pix, dark.Raw.Pix
	for i := range lp {
		dw := int64(dp[i]) * int64(kNum) / int64(kDenom)
		r := int64(lp[i]) - dw
		if r < 0 {
			r = -r
		}
		counts[r]++
	}

	total := float64(len(lp))
	probs := make([]float64, 0, 1024)
	for _, c := range counts {
		if c != 0 {
			probs = append(probs, c/total)
		}
	}

	return stat.Entropy(probs)
}
