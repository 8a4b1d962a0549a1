package sandbox

import (
	"sort"
	"strings"
)

// Language describes how to run a snippet written in one language.
type Language struct {
	Name      string
	Extension string
	// Compiled languages run through a shell chain that builds a binary
	// next to the source file and then executes it.
	Compiled bool
	command  func(src, bin string) []string
}

// Command returns the argv that runs the snippet stored at src.
func (l Language) Command(src string) []string {
	return l.command(src, strings.TrimSuffix(src, l.Extension))
}

func interpreted(name, ext string, argv ...string) Language {
	return Language{
		Name:      name,
		Extension: ext,
		command: func(src, _ string) []string {
			return append(append([]string{}, argv...), src)
		},
	}
}

func compiled(name, ext, compiler string) Language {
	return Language{
		Name:      name,
		Extension: ext,
		Compiled:  true,
		command: func(src, bin string) []string {
			script := compiler + " " + shellQuote(src) + " -o " + shellQuote(bin) + " && " + shellQuote(bin)
			return []string{"sh", "-c", script}
		},
	}
}

var languages = map[string]Language{
	"python":     interpreted("python", ".py", "python3"),
	"javascript": interpreted("javascript", ".js", "node"),
	"typescript": interpreted("typescript", ".ts", "npx", "--yes", "tsx"),
	"ruby":       interpreted("ruby", ".rb", "ruby"),
	"perl":       interpreted("perl", ".pl", "perl"),
	"php":        interpreted("php", ".php", "php"),
	"lua":        interpreted("lua", ".lua", "lua"),
	"bash":       interpreted("bash", ".sh", "bash"),
	"sh":         interpreted("sh", ".sh", "sh"),
	"go":         interpreted("go", ".go", "go", "run"),
	"c":          compiled("c", ".c", "cc"),
	"cpp":        compiled("cpp", ".cpp", "c++"),
	"rust":       compiled("rust", ".rs", "rustc"),
}

var aliases = map[string]string{
	"py":      "python",
	"python3": "python",
	"js":      "javascript",
	"node":    "javascript",
	"ts":      "typescript",
	"rb":      "ruby",
	"shell":   "sh",
	"zsh":     "bash",
	"golang":  "go",
	"c++":     "cpp",
	"cxx":     "cpp",
	"rs":      "rust",
}

// Lookup resolves a language tag, case-insensitively and through aliases.
func Lookup(tag string) (Language, bool) {
	key := strings.ToLower(strings.TrimSpace(tag))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	l, ok := languages[key]
	return l, ok
}

// Languages returns the canonical names of every supported language.
func Languages() []string {
	names := make([]string, 0, len(languages))
	for name := range languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
