package gaps

import (
	"sort"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "for": true, "in": true,
	"on": true, "to": true, "and": true, "or": true, "its": true, "their": true,
	"with": true, "per": true, "by": true, "at": true, "from": true, "is": true,
	"are": true, "overall": true, "total": true,
}

// synonyms fold common wordings of one attribute onto a single token
var synonyms = map[string]string{
	"price":        "cost",
	"pricing":      "cost",
	"expense":      "cost",
	"spend":        "cost",
	"spending":     "cost",
	"tco":          "cost",
	"perf":         "performance",
	"speed":        "performance",
	"uptime":       "reliability",
	"availability": "reliability",
	"stability":    "reliability",
	"scalability":  "scale",
	"scaling":      "scale",
	"secure":       "security",
	"delay":        "latency",
	"lag":          "latency",
}

// TopicKey derives the partition key of a claim from its subject and
// attribute: both are lower-cased, stripped of punctuation and stopwords,
// lightly stemmed, synonym-folded and token-sorted, so "Pricing of Postgres"
// and "postgres price" meet. A claim without subject or attribute has no
// topic and takes part in no conflict.
func TopicKey(subject, attribute string) string {
	s := normalizePhrase(subject)
	a := normalizePhrase(attribute)
	if s == "" || a == "" {
		return ""
	}
	return s + "|" + a
}

func normalizePhrase(phrase string) string {
	fields := strings.FieldsFunc(strings.ToLower(phrase), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if stopwords[f] {
			continue
		}
		t := stem(f)
		if syn, ok := synonyms[t]; ok {
			t = syn
		} else if syn, ok := synonyms[f]; ok {
			t = syn
		}
		if !seen[t] {
			seen[t] = true
			tokens = append(tokens, t)
		}
	}

	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// stem strips English plural endings
func stem(word string) string {
	switch {
	case len(word) > 4 && strings.HasSuffix(word, "ies"):
		return word[:len(word)-3] + "y"
	case len(word) > 4 && (strings.HasSuffix(word, "ches") || strings.HasSuffix(word, "shes") ||
		strings.HasSuffix(word, "sses") || strings.HasSuffix(word, "xes")):
		return word[:len(word)-2]
	case len(word) > 3 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") &&
		!strings.HasSuffix(word, "us") && !strings.HasSuffix(word, "is"):
		return word[:len(word)-1]
	}
	return word
}

var unitAliases = map[string]string{
	"percent":      "%",
	"percentage":   "%",
	"pct":          "%",
	"millisecond":  "ms",
	"milliseconds": "ms",
	"msec":         "ms",
	"second":       "s",
	"seconds":      "s",
	"sec":          "s",
	"$":            "usd",
	"dollar":       "usd",
	"dollars":      "usd",
	"us$":          "usd",
	"x":            "times",
	"fold":         "times",
}

// normalizeUnit makes units of one quantity comparable
func normalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if alias, ok := unitAliases[u]; ok {
		return alias
	}
	return u
}
