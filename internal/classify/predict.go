package classify

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Prediction is one ranked class.
type Prediction struct {
	Index int
	Prob  float32
	Label string
}

// Softmax returns the normalized exponentials of logits.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	hi := logits[0]
	for _, v := range logits[1:] {
		if v > hi {
			hi = v
		}
	}
	out := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - hi))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// TopK returns the k most probable classes, highest first. Ties keep index
// order. labels may be shorter than probs or nil.
func TopK(probs []float32, k int, labels []string) []Prediction {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })
	if k > len(idx) {
		k = len(idx)
	}
	if k < 0 {
		k = 0
	}

	out := make([]Prediction, k)
	for i := 0; i < k; i++ {
		p := Prediction{Index: idx[i], Prob: probs[idx[i]]}
		if idx[i] < len(labels) {
			p.Label = labels[idx[i]]
		}
		out[i] = p
	}
	return out
}

// LoadLabels reads class names. A .json file is a torchvision class index
// ({"0": ["n01440764", "tench"], ...}); anything else has one label per line.
func LoadLabels(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return parseIndexJSON(b)
	}

	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return lines, nil
}

func parseIndexJSON(b []byte) ([]string, error) {
	var raw map[string][]string
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse class index: %w", err)
	}
	labels := make([]string, len(raw))
	for k, v := range raw {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(labels) {
			return nil, fmt.Errorf("class index key %q out of range", k)
		}
		switch len(v) {
		case 0:
		case 1:
			labels[i] = v[0]
		default:
			labels[i] = v[1]
		}
	}
	return labels, nil
}
