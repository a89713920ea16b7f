package revenue

import "math"

// Transform maps revenue to the training scale, log(1 + y).
func Transform(y float64) float64 { return math.Log1p(y) }

// Inverse maps a training-scale value back to revenue, exp(z) - 1.
func Inverse(z float64) float64 { return math.Expm1(z) }

// Evaluation is the held-out report of a fitted model.
type Evaluation struct {
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
	R2Log     float64 `json:"r2_log"`
	R2        float64 `json:"r2"`
	MAE       float64 `json:"mae"`
	RMSE      float64 `json:"rmse"`
}

// R2 is the coefficient of determination. A constant truth scores 1 when
// matched exactly and 0 otherwise.
func R2(truth, pred []float64) float64 {
	if len(truth) == 0 {
		return 0
	}
	var mean float64
	for _, v := range truth {
		mean += v
	}
	mean /= float64(len(truth))
	var ssRes, ssTot float64
	for i, v := range truth {
		ssRes += (v - pred[i]) * (v - pred[i])
		ssTot += (v - mean) * (v - mean)
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// MAE is the mean absolute error.
func MAE(truth, pred []float64) float64 {
	if len(truth) == 0 {
		return 0
	}
	var s float64
	for i, v := range truth {
		s += math.Abs(v - pred[i])
	}
	return s / float64(len(truth))
}

// RMSE is the root mean squared error.
func RMSE(truth, pred []float64) float64 {
	if len(truth) == 0 {
		return 0
	}
	var s float64
	for i, v := range truth {
		s += (v - pred[i]) * (v - pred[i])
	}
	return math.Sqrt(s / float64(len(truth)))
}
