package linker

import (
	"sort"
	"strings"

	"github.com/soundprediction/go-servicegraph/pkg/types"
	"github.com/soundprediction/go-servicegraph/pkg/utils"
)

// DistinctValues returns the non-empty values of in, trimmed, in first-seen
// order.
func DistinctValues(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SimilarityMatrix computes all pairwise cosine similarities. It is O(n²) in
// time and memory, which bounds how many distinct values one label can hold.
func SimilarityMatrix(vectors [][]float32) [][]float64 {
	n := len(vectors)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		m[i][i] = utils.CosineSimilarity(vectors[i], vectors[i])
		for j := i + 1; j < n; j++ {
			s := utils.CosineSimilarity(vectors[i], vectors[j])
			m[i][j] = s
			m[j][i] = s
		}
	}
	return m
}

// SelectNeighbors picks, for each text, up to TopK other texts whose
// similarity is at least Threshold. Ties keep the earlier text first. The
// stored score is rounded to ScorePrecision decimals. With Symmetric set,
// the reverse of every selected edge is added too, outside the TopK bound.
func SelectNeighbors(label types.NodeLabel, texts []string, sim [][]float64, config Config) []types.SimilarEdge {
	type candidate struct {
		idx   int
		score float64
	}
	type pair struct{ from, to int }

	var pairs []pair
	scores := make(map[pair]float64)
	add := func(p pair, score float64) {
		if _, ok := scores[p]; ok {
			return
		}
		scores[p] = score
		pairs = append(pairs, p)
	}

	for i := range texts {
		cands := make([]candidate, 0, len(texts))
		for j := range texts {
			if i == j {
				continue
			}
			if sim[i][j] >= config.Threshold {
				cands = append(cands, candidate{idx: j, score: sim[i][j]})
			}
		}
		sort.SliceStable(cands, func(a, b int) bool { return cands[a].score > cands[b].score })
		if len(cands) > config.TopK {
			cands = cands[:config.TopK]
		}
		for _, c := range cands {
			add(pair{i, c.idx}, utils.Round(c.score, ScorePrecision))
		}
	}

	if config.Symmetric {
		for _, p := range append([]pair(nil), pairs...) {
			add(pair{p.to, p.from}, scores[p])
		}
	}

	edges := make([]types.SimilarEdge, len(pairs))
	for i, p := range pairs {
		edges[i] = types.SimilarEdge{Label: label, Source: texts[p.from], Target: texts[p.to], Score: scores[p]}
	}
	return edges
}
