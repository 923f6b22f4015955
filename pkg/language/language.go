package language

import (
	"errors"
	"fmt"
)

// ErrUnknownLanguage is returned when a language id is not registered.
var ErrUnknownLanguage = errors.New("unknown language")

// Language describes a supported source language.
type Language struct {
	// ID is the stable key sent to the execution backend (e.g. "python").
	ID string `json:"id"`
	// DisplayName is the human readable name (e.g. "C++").
	DisplayName string `json:"display_name"`
	// DefaultSource is the starter template for fresh files.
	DefaultSource string `json:"default_source"`
	// Extension is the conventional file extension, used for labels only.
	Extension string `json:"extension,omitempty"`
}

// Registry is an immutable, ordered catalog of languages.
type Registry struct {
	languages []Language
	byID      map[string]int
}

// NewRegistry builds a registry from the supplied languages, keeping their order.
func NewRegistry(langs ...Language) (*Registry, error) {
	if len(langs) == 0 {
		return nil, fmt.Errorf("at least one language must be registered")
	}

	r := &Registry{
		languages: make([]Language, 0, len(langs)),
		byID:      make(map[string]int, len(langs)),
	}
	for _, l := range langs {
		if l.ID == "" {
			return nil, fmt.Errorf("language %q is missing an id", l.DisplayName)
		}
		if _, exists := r.byID[l.ID]; exists {
			return nil, fmt.Errorf("duplicate language %q", l.ID)
		}
		r.byID[l.ID] = len(r.languages)
		r.languages = append(r.languages, l)
	}
	return r, nil
}

// Default returns the built-in catalog: Python, Java and C++.
func Default() *Registry {
	r, err := NewRegistry(
		Language{
			ID:            "python",
			DisplayName:   "Python",
			DefaultSource: "# Python code\nprint(\"Hello, Python!\")\n",
			Extension:     ".py",
		},
		Language{
			ID:            "java",
			DisplayName:   "Java",
			DefaultSource: "// Java code\npublic class Main {\n    public static void main(String[] args) {\n        System.out.println(\"Hello, Java!\");\n    }\n}",
			Extension:     ".java",
		},
		Language{
			ID:            "cpp",
			DisplayName:   "C++",
			DefaultSource: "// C++ code\n#include <iostream>\nusing namespace std;\n\nint main() {\n    cout << \"Hello, C++!\" << endl;\n    return 0;\n}",
			Extension:     ".cpp",
		},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// List returns the languages in registration order.
func (r *Registry) List() []Language {
	out := make([]Language, len(r.languages))
	copy(out, r.languages)
	return out
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.languages))
	for i, l := range r.languages {
		ids[i] = l.ID
	}
	return ids
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Lookup returns the language registered under id.
func (r *Registry) Lookup(id string) (Language, error) {
	i, ok := r.byID[id]
	if !ok {
		return Language{}, fmt.Errorf("%w: %q", ErrUnknownLanguage, id)
	}
	return r.languages[i], nil
}

// DefaultSourceFor returns the starter template of language id.
func (r *Registry) DefaultSourceFor(id string) (string, error) {
	l, err := r.Lookup(id)
	if err != nil {
		return "", err
	}
	return l.DefaultSource, nil
}

// Next returns the language that follows id in registration order, wrapping around.
func (r *Registry) Next(id string) (Language, error) {
	i, ok := r.byID[id]
	if !ok {
		return Language{}, fmt.Errorf("%w: %q", ErrUnknownLanguage, id)
	}
	return r.languages[(i+1)%len(r.languages)], nil
}
