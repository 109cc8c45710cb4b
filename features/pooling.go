package features

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// poolFlatten reduces the spatial dimensions of a batch of activations with a
// square window of size k and stride k, then flattens each sample into one
// row. Output spatial sizing is floor((dim-k)/k)+1, so trailing positions
// that do not fill a window are dropped.
func poolFlatten(data []float64, n, c, h, w, k int, kind PoolKind) *mat.Dense {
	ho := (h-k)/k + 1
	wo := (w-k)/k + 1
	out := mat.NewDense(n, c*ho*wo, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < c; j++ {
			base := (i*c + j) * h * w
			for y := 0; y < ho; y++ {
				for x := 0; x < wo; x++ {
					v := window(data, base, w, y*k, x*k, k, kind)
					out.Set(i, (j*ho+y)*wo+x, v)
				}
			}
		}
	}
	return out
}

// window reduces one kxk patch starting at (y0, x0) of a h*w plane.
func window(data []float64, base, rowStride, y0, x0, k int, kind PoolKind) float64 {
	if kind == PoolMax {
		m := math.Inf(-1)
		for dy := 0; dy < k; dy++ {
			row := base + (y0+dy)*rowStride + x0
			for dx := 0; dx < k; dx++ {
				if v := data[row+dx]; v > m {
					m = v
				}
			}
		}
		return m
	}
	sum := 0.0
	for dy := 0; dy < k; dy++ {
		row := base + (y0+dy)*rowStride + x0
		for dx := 0; dx < k; dx++ {
			sum += data[row+dx]
		}
	}
	return sum / float64(k*k)
}
