// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package inference

import (
	"math"
	"sort"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/model"
	"gonum.org/v1/gonum/floats"
)

// Softmax turns raw logits into probabilities that sum to one.
func Softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(out) == 0 {
		return out
	}
	for i, v := range logits {
		out[i] = float64(v)
	}
	// Shift by the max so Exp cannot overflow.
	floats.AddConst(-floats.Max(out), out)
	for i := range out {
		out[i] = math.Exp(out[i])
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

// TopK returns the k most probable classes, highest first. Ties keep the lower
// class index first. Scores are not rounded.
func TopK(probs []float64, classes []string, k int) []model.Prediction {
	n := len(probs)
	if len(classes) < n {
		n = len(classes)
	}
	if k > n {
		k = n
	}
	if k <= 0 {
		return []model.Prediction{}
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })

	out := make([]model.Prediction, 0, k)
	for _, i := range idx[:k] {
		out = append(out, model.Prediction{Label: classes[i], Score: probs[i]})
	}
	return out
}
