// Package workspace holds the editable state of a code workspace: the set of
// named files, the active file bound to the editor, and the active language.
//
// The editor buffer is the value currently shown by the editing widget. Every
// transition that changes the active file commits the buffer into the
// outgoing file first, so no two files ever share an uncommitted buffer.
package workspace

import (
	"fmt"
	"strings"

	"github.com/mariozechner/bytebox/pkg/language"
)

// Binding is what the editing widget sees: a value and a change callback.
type Binding struct {
	Value    string
	OnChange func(string)
}

// Workspace is the controller for files, the active file and the active language.
// It is not safe for concurrent use; callers serialise access.
type Workspace struct {
	languages      *language.Registry
	files          *Store
	activeFile     string
	activeLanguage string
	buffer         string
}

// New creates a workspace containing an empty main file, with languageID active.
func New(languages *language.Registry, languageID string) (*Workspace, error) {
	if !languages.Has(languageID) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, languageID)
	}
	files := NewStore()
	if _, err := files.Create(MainFile, ""); err != nil {
		return nil, err
	}
	return &Workspace{
		languages:      languages,
		files:          files,
		activeFile:     MainFile,
		activeLanguage: languageID,
	}, nil
}

// Languages returns the registry the workspace validates against.
func (w *Workspace) Languages() *language.Registry {
	return w.languages
}

// ActiveFile returns the name of the file bound to the editor.
func (w *Workspace) ActiveFile() string {
	return w.activeFile
}

// ActiveLanguage returns the id of the selected language.
func (w *Workspace) ActiveLanguage() string {
	return w.activeLanguage
}

// Buffer returns the editor buffer of the active file.
func (w *Workspace) Buffer() string {
	return w.buffer
}

// Read returns the content of a file. The active file reads from the buffer.
func (w *Workspace) Read(name string) (string, error) {
	if name == w.activeFile {
		return w.buffer, nil
	}
	return w.files.Read(name)
}

// FileNames returns the file names in creation order.
func (w *Workspace) FileNames() []string {
	return w.files.Names()
}

// Files returns every file in creation order, with the active file's buffer as its content.
func (w *Workspace) Files() []File {
	names := w.files.Names()
	out := make([]File, 0, len(names))
	for _, name := range names {
		content, _ := w.Read(name)
		out = append(out, File{Name: name, Content: content})
	}
	return out
}

// EditActiveFile replaces the active file's content. Any text is accepted.
func (w *Workspace) EditActiveFile(content string) {
	w.buffer = content
	// The active file always exists.
	_ = w.files.Write(w.activeFile, content)
}

// Editor returns the binding for the editing widget.
func (w *Workspace) Editor() Binding {
	return Binding{Value: w.buffer, OnChange: w.EditActiveFile}
}

// Mount hands the current binding to a freshly mounted editing widget.
func (w *Workspace) Mount(fn func(Binding)) {
	if fn != nil {
		fn(w.Editor())
	}
}

// SwitchLanguage selects a new language. If the active file is empty or still
// holds the previous language's template, it is re-templated for the new one;
// customised content is left untouched.
func (w *Workspace) SwitchLanguage(id string) error {
	next, err := w.languages.DefaultSourceFor(id)
	if err != nil {
		return err
	}
	prev, err := w.languages.DefaultSourceFor(w.activeLanguage)
	if err != nil {
		return err
	}

	if w.buffer == "" || w.buffer == prev {
		w.EditActiveFile(next)
	}
	w.activeLanguage = id
	return nil
}

// SwitchFile commits the buffer into the active file, then binds name to the editor.
func (w *Workspace) SwitchFile(name string) error {
	content, err := w.files.Read(name)
	if err != nil {
		return err
	}
	if name == w.activeFile {
		return nil
	}
	w.commit()
	w.activeFile = name
	w.buffer = content
	return nil
}

// CreateFile adds a file seeded with the active language's template and makes it active.
func (w *Workspace) CreateFile(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	if w.files.Has(name) {
		return fmt.Errorf("%w: %q", ErrDuplicateFile, name)
	}
	template, err := w.languages.DefaultSourceFor(w.activeLanguage)
	if err != nil {
		return err
	}

	w.commit()
	if _, err := w.files.Create(name, template); err != nil {
		return err
	}
	w.activeFile = name
	w.buffer = template
	return nil
}

// DeleteFile removes a file. Deleting the active file falls back to main.
func (w *Workspace) DeleteFile(name string) error {
	if err := w.files.Delete(name); err != nil {
		return err
	}
	if name == w.activeFile {
		w.activeFile = MainFile
		w.buffer, _ = w.files.Read(MainFile)
	}
	return nil
}

func (w *Workspace) commit() {
	_ = w.files.Write(w.activeFile, w.buffer)
}
