package reasoning

import (
	"strings"
	"unicode"
)

// Words splits s into lowercase word tokens. Apostrophes stay inside words so
// "don't" is one token.
func Words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// WordSet returns the distinct lowercase words of s.
func WordSet(s string) map[string]struct{} {
	words := Words(s)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Jaccard returns |A∩B| / |A∪B| over the word sets of a and b. Two texts
// with no words are identical; one empty text shares nothing.
func Jaccard(a, b string) float64 {
	return jaccardSets(WordSet(a), WordSet(b))
}

func jaccardSets(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for w := range small {
		if _, ok := large[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// consensus is the voting outcome over a set of paths.
type consensus struct {
	similarities [][]float64
	cluster      []int
	inCluster    []bool
	selected     int
	score        float64
}

// vote clusters paths by conclusion similarity and picks the winner.
//
// Two paths agree when their similarity is at least threshold. The plurality
// cluster is the agreement neighbourhood of the path with the most agreeing
// peers. The selected path is the cluster member with the highest
// confidence × mean similarity to the cluster.
func vote(paths []Path, threshold float64) consensus {
	n := len(paths)
	sets := make([]map[string]struct{}, n)
	for i, p := range paths {
		sets[i] = WordSet(p.Conclusion)
	}

	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
		sim[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := jaccardSets(sets[i], sets[j])
			sim[i][j], sim[j][i] = s, s
		}
	}

	center, best := 0, -1
	for i := 0; i < n; i++ {
		peers := 0
		for j := 0; j < n; j++ {
			if j != i && sim[i][j] >= threshold {
				peers++
			}
		}
		if peers > best {
			center, best = i, peers
		}
	}

	inCluster := make([]bool, n)
	cluster := make([]int, 0, n)
	for j := 0; j < n; j++ {
		if j == center || sim[center][j] >= threshold {
			inCluster[j] = true
			cluster = append(cluster, j)
		}
	}

	selected, bestScore := cluster[0], -1.0
	for _, i := range cluster {
		var total float64
		for _, m := range cluster {
			total += sim[i][m]
		}
		score := paths[i].Confidence * (total / float64(len(cluster)))
		if score > bestScore {
			selected, bestScore = i, score
		}
	}

	return consensus{
		similarities: sim,
		cluster:      cluster,
		inCluster:    inCluster,
		selected:     selected,
		score:        float64(len(cluster)) / float64(n),
	}
}
