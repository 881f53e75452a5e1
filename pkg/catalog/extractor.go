package catalog

import (
	"sort"
	"strings"
	"unicode"
)

// stopwords excluded from keyword extraction: English filler plus JSON schema
// vocabulary that would otherwise match every tool.
var stopwords = map[string]struct{}{
	// articles, pronouns, conjunctions, prepositions
	"a": {}, "an": {}, "the": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"it": {}, "its": {}, "you": {}, "your": {}, "we": {}, "our": {}, "they": {}, "their": {},
	"and": {}, "or": {}, "but": {}, "nor": {}, "so": {}, "yet": {},
	"of": {}, "in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "with": {}, "by": {},
	"from": {}, "as": {}, "into": {}, "onto": {}, "about": {}, "over": {}, "under": {},
	"between": {}, "through": {}, "during": {}, "before": {}, "after": {}, "above": {}, "below": {},
	// common verbs
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"has": {}, "have": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"can": {}, "could": {}, "will": {}, "would": {}, "should": {}, "may": {}, "might": {}, "must": {},
	"use": {}, "uses": {}, "used": {}, "using": {}, "get": {}, "gets": {}, "set": {}, "sets": {},
	"show": {}, "shows": {}, "display": {}, "displays": {}, "render": {}, "renders": {},
	"allow": {}, "allows": {}, "make": {}, "makes": {}, "when": {}, "where": {}, "which": {},
	"what": {}, "how": {}, "if": {}, "then": {}, "else": {}, "not": {}, "no": {}, "all": {},
	"any": {}, "each": {}, "other": {}, "such": {}, "only": {}, "same": {}, "also": {}, "more": {},
	// JSON schema vocabulary
	"object": {}, "string": {}, "number": {}, "boolean": {}, "array": {}, "null": {},
	"true": {}, "false": {}, "optional": {}, "required": {}, "default": {}, "value": {}, "type": {},
}

// ExtractKeywords derives the deterministic, sorted keyword set for one tool
// from its name, description and input schema. Every keyword is lowercase,
// at least two characters, not a stopword and not purely numeric.
func ExtractKeywords(name, description string, inputSchema map[string]any) []string {
	seen := make(map[string]struct{})

	addToken := func(tok string) {
		tok = strings.ToLower(tok)
		if len(tok) < 2 {
			return
		}
		if _, stop := stopwords[tok]; stop {
			return
		}
		if isNumeric(tok) {
			return
		}
		seen[tok] = struct{}{}
	}

	for _, tok := range TokenizeName(name) {
		addToken(tok)
	}
	for _, tok := range TokenizeText(description) {
		addToken(tok)
	}
	extractSchemaTokens(inputSchema, addToken)

	keywords := make([]string, 0, len(seen))
	for kw := range seen {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)
	return keywords
}

// TokenizeName splits an identifier on underscores, hyphens and case
// boundaries. A run of uppercase letters followed by a lowercase letter
// splits before the final uppercase, so "HTTPClient" yields "HTTP", "Client".
func TokenizeName(name string) []string {
	var tokens []string
	for _, part := range strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	}) {
		tokens = append(tokens, splitCamel(part)...)
	}
	return tokens
}

func splitCamel(s string) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	var tokens []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		switch {
		case unicode.IsLower(prev) && unicode.IsUpper(cur):
			tokens = append(tokens, string(runes[start:i]))
			start = i
		case unicode.IsUpper(prev) && unicode.IsUpper(cur) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			// End of an acronym run: split before the uppercase that starts
			// the next word.
			tokens = append(tokens, string(runes[start:i]))
			start = i
		}
	}
	tokens = append(tokens, string(runes[start:]))
	return tokens
}

// TokenizeText lowercases free text, strips punctuation and splits on
// whitespace. Used for descriptions and search queries.
func TokenizeText(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return strings.Fields(cleaned)
}

// extractSchemaTokens walks a JSON schema collecting description text, enum
// string values, property names and item schemas.
func extractSchemaTokens(schema map[string]any, addToken func(string)) {
	if schema == nil {
		return
	}

	if desc, ok := schema["description"].(string); ok {
		for _, tok := range TokenizeText(desc) {
			addToken(tok)
		}
	}

	if enum, ok := schema["enum"].([]any); ok {
		for _, v := range enum {
			if s, ok := v.(string); ok && len(s) >= 2 {
				addToken(s)
			}
		}
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		// Sort property names so extraction order never depends on map
		// iteration.
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for _, tok := range TokenizeName(name) {
				addToken(tok)
			}
			if sub, ok := props[name].(map[string]any); ok {
				extractSchemaTokens(sub, addToken)
			}
		}
	}

	if items, ok := schema["items"].(map[string]any); ok {
		extractSchemaTokens(items, addToken)
	}
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
