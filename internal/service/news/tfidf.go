package news

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Sentence refinement and scoring rules tuned for Brazilian Portuguese.
// All comparisons run on normalized text: lowercased, diacritics stripped.

var ptStopwords = []string{
	"a", "o", "os", "as", "um", "uma", "uns", "umas",
	"de", "do", "da", "dos", "das",
	"em", "no", "na", "nos", "nas",
	"por", "para", "com", "sem",
	"e", "ou", "mas", "que",
	"é", "foi", "são", "ser",
	"ao", "aos", "à", "às",
	"como", "mais", "menos",
	"isso", "esse", "essa", "este", "esta",
	"já", "também", "sobre", "entre",
}

// weakWords carry opinion or degree, not facts; they are pruned before a
// clause can count as a factual sub-sentence.
var weakWords = map[string]struct{}{
	"acha": {}, "pensa": {}, "acredita": {}, "opina": {},
	"expressa": {}, "demonstra": {}, "critica": {},
	"adora": {}, "odeia": {}, "gosta": {},
	"sua": {}, "seu": {}, "dele": {}, "dela": {},
	"muito": {}, "pouco": {}, "grande": {}, "pequeno": {},
	"promete": {}, "prometendo": {},
}

// stopwordSet holds the stopwords normalized the same way as scored text,
// so "são" matches the stripped "sao".
var stopwordSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(ptStopwords))
	for _, w := range ptStopwords {
		set[normalize(w)] = struct{}{}
	}
	return set
}()

var (
	wordRe        = regexp.MustCompile(`[\p{L}\p{N}_][\p{L}\p{N}_]+`)
	sentenceEndRe = regexp.MustCompile(`[.!?]\s+`)
	clauseEndRe   = regexp.MustCompile(`[.!?]`)
	conjunctionRe = regexp.MustCompile(`\b(?:que|mas|onde|porque|pois|quando|enquanto)\b`)
)

// normalize lowercases and strips combining marks, so "São Paulo" and
// "sao paulo" compare equal.
func normalize(text string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, strings.ToLower(text))
	if err != nil {
		return strings.ToLower(text)
	}
	return out
}

// splitSentences breaks normalized text on sentence punctuation, keeping
// only fragments long enough to score.
func splitSentences(text string) []string {
	parts := sentenceEndRe.Split(strings.TrimSpace(text), -1)
	var out []string
	for _, p := range parts {
		if utf8.RuneCountInString(p) > 10 {
			out = append(out, p)
		}
	}
	return out
}

// extractKeywords builds the search query: the first five normalized words
// longer than three characters that are not stopwords.
func extractKeywords(text string) string {
	var keywords []string
	for _, w := range strings.Fields(normalize(text)) {
		if _, stop := stopwordSet[w]; stop {
			continue
		}
		if utf8.RuneCountInString(w) <= 3 {
			continue
		}
		keywords = append(keywords, w)
		if len(keywords) == 5 {
			break
		}
	}
	return strings.Join(keywords, " ")
}

// splitUserSentence converts narrative input into factual sub-sentences:
// split on sentence punctuation and subordinating conjunctions, prune
// stopwords, weak words and short words, keep clauses with at least three
// content words left.
func splitUserSentence(text string) []string {
	var refined []string
	for _, part := range clauseEndRe.Split(normalize(text), -1) {
		for _, clause := range conjunctionRe.Split(part, -1) {
			var words []string
			for _, w := range strings.Fields(clause) {
				if _, stop := stopwordSet[w]; stop {
					continue
				}
				if _, weak := weakWords[w]; weak {
					continue
				}
				if utf8.RuneCountInString(w) <= 3 {
					continue
				}
				words = append(words, w)
			}
			if len(words) >= 3 {
				refined = append(refined, strings.Join(words, " "))
			}
		}
	}
	return refined
}

// ngrams tokenizes normalized text into words of two or more characters,
// drops stopwords, and returns the remaining unigrams plus bigrams.
func ngrams(text string) []string {
	tokens := wordRe.FindAllString(text, -1)
	var kept []string
	for _, tok := range tokens {
		if _, stop := stopwordSet[tok]; !stop {
			kept = append(kept, tok)
		}
	}
	terms := make([]string, 0, len(kept)*2)
	terms = append(terms, kept...)
	for i := 0; i+1 < len(kept); i++ {
		terms = append(terms, kept[i]+" "+kept[i+1])
	}
	return terms
}

// maxCosine fits a small TF-IDF model over the query plus the sentences
// and returns the highest cosine similarity between the query and any
// sentence. Smoothed idf, l2-normalized rows.
func maxCosine(query string, sentences []string) float64 {
	docs := make([][]string, 0, len(sentences)+1)
	docs = append(docs, ngrams(query))
	for _, s := range sentences {
		docs = append(docs, ngrams(s))
	}

	df := make(map[string]int)
	for _, terms := range docs {
		seen := make(map[string]struct{}, len(terms))
		for _, t := range terms {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				df[t]++
			}
		}
	}
	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for t, d := range df {
		idf[t] = math.Log((1+n)/(1+float64(d))) + 1
	}

	vectors := make([]map[string]float64, len(docs))
	for i, terms := range docs {
		counts := make(map[string]float64, len(terms))
		for _, t := range terms {
			counts[t]++
		}
		vec := make(map[string]float64, len(counts))
		var length float64
		for t, c := range counts {
			w := c * idf[t]
			vec[t] = w
			length += w * w
		}
		if length > 0 {
			length = math.Sqrt(length)
			for t := range vec {
				vec[t] /= length
			}
		}
		vectors[i] = vec
	}

	best := 0.0
	queryVec := vectors[0]
	for _, vec := range vectors[1:] {
		small, large := queryVec, vec
		if len(vec) < len(queryVec) {
			small, large = vec, queryVec
		}
		dot := 0.0
		for t, w := range small {
			if w2, ok := large[t]; ok {
				dot += w * w2
			}
		}
		if dot > best {
			best = dot
		}
	}
	return best
}

// scoreArticle returns the best similarity between any refined candidate
// sub-sentence and any sentence of the article's title plus description.
func scoreArticle(candidates []string, title, description string) float64 {
	sentences := splitSentences(normalize(title + ". " + description))
	if len(sentences) == 0 {
		return 0
	}
	best := 0.0
	for _, candidate := range candidates {
		if score := maxCosine(candidate, sentences); score > best {
			best = score
		}
	}
	return best
}
