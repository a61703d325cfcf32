package context

import (
	"path"
	"strings"
)

// manifestLanguages maps root-level build files to the language they imply.
var manifestLanguages = map[string]string{
	"go.mod":           "Go",
	"package.json":     "Node",
	"pyproject.toml":   "Python",
	"requirements.txt": "Python",
	"setup.py":         "Python",
	"Pipfile":          "Python",
	"Cargo.toml":       "Rust",
	"pom.xml":          "Java",
	"build.gradle":     "Java",
	"Gemfile":          "Ruby",
	"composer.json":    "PHP",
}

var extLanguages = map[string]string{
	".py":   "Python",
	".go":   "Go",
	".js":   "Node",
	".mjs":  "Node",
	".jsx":  "Node",
	".ts":   "Node",
	".tsx":  "Node",
	".rs":   "Rust",
	".java": "Java",
	".kt":   "Java",
	".rb":   "Ruby",
	".php":  "PHP",
	".c":    "C",
	".cpp":  "C++",
	".cc":   "C++",
	".cs":   "C#",
}

// LanguageHint guesses the primary language from a rendered file tree. A
// root-level manifest decides it; otherwise the most common source extension
// does. It returns "" when nothing is recognised or the leaders tie.
func LanguageHint(tree string) string {
	counts := make(map[string]int)
	for _, line := range strings.Split(tree, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		if name == line {
			if lang, ok := manifestLanguages[name]; ok {
				return lang
			}
		}
		if lang, ok := extLanguages[strings.ToLower(path.Ext(name))]; ok {
			counts[lang]++
		}
	}

	best, bestN, tie := "", 0, false
	for lang, n := range counts {
		switch {
		case n > bestN:
			best, bestN, tie = lang, n, false
		case n == bestN:
			tie = true
		}
	}
	if tie {
		return ""
	}
	return best
}
