package pipeline

import (
	"sort"
	"strings"

	"loteiro/internal"
	"loteiro/internal/util"
)

// Similarity estimates how likely two free-text names refer to the same
// entity. Tiers: exact normalized match, containment, token overlap, then a
// positional character fallback gated by length distance.
func Similarity(a, b string) float64 {
	na := util.NormalizeName(a)
	nb := util.NormalizeName(b)

	if na == "" || nb == "" {
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) && strings.TrimSpace(a) != "" {
			return 1
		}
		return 0
	}
	if na == nb {
		return 1
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.85
	}

	tokensA := util.Tokenize(a)
	tokensB := util.Tokenize(b)
	overlap := 0
	for _, ta := range tokensA {
		for _, tb := range tokensB {
			if strings.Contains(ta, tb) || strings.Contains(tb, ta) {
				overlap++
				break
			}
		}
	}
	if overlap > 0 {
		maxTokens := len(tokensA)
		if len(tokensB) > maxTokens {
			maxTokens = len(tokensB)
		}
		return 0.6 + 0.3*float64(overlap)/float64(maxTokens)
	}

	runesA := []rune(na)
	runesB := []rune(nb)
	delta := len(runesA) - len(runesB)
	if delta < 0 {
		delta = -delta
	}
	if delta > 5 {
		return 0
	}

	longer := len(runesA)
	if len(runesB) > longer {
		longer = len(runesB)
	}
	same := 0
	for i := 0; i < len(runesA) && i < len(runesB); i++ {
		if runesA[i] == runesB[i] {
			same++
		}
	}
	return float64(same) / float64(longer)
}

// DistinctValues collects the distinct non-blank raw values of the mapped
// column across all rows, in first-seen order.
func DistinctValues(rows []internal.RawRow, mapping internal.ColumnMapping, field internal.FieldID) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, row := range rows {
		value := strings.TrimSpace(mapping.Cell(row, field))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

// ProposeResolutions scores every distinct value against the reference list
// and proposes the best candidate when it clears the threshold. Purely
// advisory; the caller may override any entry before freezing.
func ProposeResolutions(values []string, entities []internal.RefEntity, threshold float64) map[string]*internal.ValueResolution {
	out := make(map[string]*internal.ValueResolution, len(values))
	for _, value := range values {
		res := &internal.ValueResolution{SourceText: value, SuggestedName: value}

		bestScore := 0.0
		var bestID *int64
		for _, entity := range entities {
			score := Similarity(value, entity.Nome)
			if score > bestScore {
				bestScore = score
				id := entity.ID
				bestID = &id
			}
		}

		res.Similarity = bestScore
		if bestID != nil && bestScore > threshold {
			res.MatchedID = bestID
		}
		out[value] = res
	}
	return out
}

// ResolvedID maps a raw cell value through the frozen resolutions. Nil for
// blank text, ignored values and anything still unmatched.
func ResolvedID(resolutions map[string]*internal.ValueResolution, raw string) *int64 {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	res, ok := resolutions[value]
	if !ok || res.Ignore {
		return nil
	}
	return res.MatchedID
}

// SortedResolutions returns the resolutions in source-text order for
// deterministic display and logging.
func SortedResolutions(resolutions map[string]*internal.ValueResolution) []*internal.ValueResolution {
	out := make([]*internal.ValueResolution, 0, len(resolutions))
	for _, res := range resolutions {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceText < out[j].SourceText })
	return out
}
