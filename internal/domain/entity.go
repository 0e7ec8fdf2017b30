package domain

import (
	"sort"
	"strings"
	"unicode"
)

// CanonicalEntity title-cases every word of an entity's text: the first
// letter of each run of word characters is upper-cased and the rest of the
// run lower-cased. "IBM CORP", "ibm corp" and "IBM Corp" all become
// "Ibm Corp". Non-word characters are kept as they are.
func CanonicalEntity(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inWord := false
	for _, r := range text {
		if !isWordRune(r) {
			inWord = false
			b.WriteRune(r)
			continue
		}
		if inWord {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(unicode.ToUpper(r))
			inWord = true
		}
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// FoldEntities maps canonical entity text to the signed scores contributed by
// the articles, one score per mention: score × sentiment sign.
func FoldEntities(articles []Article) map[string][]float64 {
	out := make(map[string][]float64)
	for _, a := range articles {
		for _, m := range a.Entities {
			key := CanonicalEntity(m.Text)
			if key == "" {
				continue
			}
			out[key] = append(out[key], m.Score*m.Sentiment.Sign())
		}
	}
	return out
}

// SummarizeEntities reduces articles to per-entity counts and average signed
// sentiment, sorted by count descending.
func SummarizeEntities(articles []Article) []EntitySummary {
	folded := FoldEntities(articles)
	out := make([]EntitySummary, 0, len(folded))
	for text, scores := range folded {
		var sum float64
		for _, s := range scores {
			sum += s
		}
		out = append(out, EntitySummary{
			Text:             text,
			Count:            len(scores),
			AverageSentiment: sum / float64(len(scores)),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Text < out[j].Text
	})
	return out
}
