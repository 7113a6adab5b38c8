// Package classify flags developer-focused articles with a two-stage check:
// direct keyword matching first, TF-IDF cosine similarity as the fallback.
package classify

import (
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
)

// tokenPattern keeps words of two or more characters, matching how the
// keyword vocabulary was originally built.
var tokenPattern = regexp.MustCompile(`\b\w\w+\b`)

// Classifier scores text against a fixed keyword list. The vocabulary and
// the keyword vectors are built once at construction; classification itself
// is read-only and safe for concurrent use.
type Classifier struct {
	keywords    []string
	lowered     []string
	vocabulary  map[string]int
	idf         []float64
	keywordVecs [][]float64
	threshold   float64
}

// NewClassifier fits a TF-IDF vocabulary on the keyword list. An article is
// developer-focused when any keyword appears verbatim in its text, or when
// the best cosine similarity against a keyword exceeds threshold.
func NewClassifier(keywords []string, threshold float64) *Classifier {
	c := &Classifier{
		keywords:  keywords,
		lowered:   make([]string, len(keywords)),
		threshold: threshold,
	}

	docs := make([][]string, len(keywords))
	df := make(map[string]int)
	for i, kw := range keywords {
		c.lowered[i] = strings.ToLower(kw)
		docs[i] = tokenize(kw)
		for _, tok := range uniqueTokens(docs[i]) {
			df[tok]++
		}
	}

	tokens := make([]string, 0, len(df))
	for tok := range df {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)

	c.vocabulary = make(map[string]int, len(tokens))
	for i, tok := range tokens {
		c.vocabulary[tok] = i
	}

	// Smoothed inverse document frequency over the keyword list.
	n := float64(len(keywords))
	c.idf = make([]float64, len(tokens))
	for i, tok := range tokens {
		c.idf[i] = math.Log((1+n)/(1+float64(df[tok]))) + 1
	}

	c.keywordVecs = make([][]float64, len(keywords))
	for i := range docs {
		c.keywordVecs[i] = c.vectorize(docs[i])
	}

	slog.Info("Loaded keyword vectors for developer-focus filtering",
		"keywords", len(keywords), "vocabulary", len(tokens), "threshold", threshold)
	return c
}

// DeveloperFocus reports whether text reads as developer-focused.
func (c *Classifier) DeveloperFocus(text string) bool {
	lowered := strings.ToLower(text)

	for i, kw := range c.lowered {
		if kw != "" && strings.Contains(lowered, kw) {
			slog.Debug("Keyword found in text", "keyword", c.keywords[i])
			return true
		}
	}

	doc := c.vectorize(tokenize(lowered))
	var best float64
	for _, kv := range c.keywordVecs {
		if sim := dot(doc, kv); sim > best {
			best = sim
		}
	}
	slog.Debug("Max cosine similarity with keywords", "similarity", best)
	return best > c.threshold
}

// vectorize maps tokens onto the vocabulary as an L2-normalized TF-IDF
// vector. Tokens outside the vocabulary are ignored; a document sharing no
// vocabulary stays the zero vector and scores 0 against everything.
func (c *Classifier) vectorize(tokens []string) []float64 {
	vec := make([]float64, len(c.idf))
	for _, tok := range tokens {
		if idx, ok := c.vocabulary[tok]; ok {
			vec[idx] += c.idf[idx]
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func tokenize(s string) []string {
	return tokenPattern.FindAllString(strings.ToLower(s), -1)
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
