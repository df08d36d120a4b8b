// Package devsim fakes the tablet's USB web interface for development and
// tests: the same three endpoints, the same JSON shape (including the
// firmware's VissibleName spelling), and the same stateful upload quirk
// where documents land in whichever folder was listed last.
package devsim

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Entry mirrors one element of the firmware's listing response. The JSON
// tags reproduce the device wire format verbatim; they are the contract
// the client is tested against.
type Entry struct {
	ID           string `json:"ID"`
	Parent       string `json:"Parent"`
	VissibleName string `json:"VissibleName"`
	Type         string `json:"Type"`
	FileType     string `json:"fileType,omitempty"`
}

const (
	typeCollection = "CollectionType"
	typeDocument   = "DocumentType"

	// rootID is the implicit id of the device root.
	rootID = ""
)

// Store is the in-memory document tree behind the simulator. It also
// tracks the "current" folder the way the firmware does: every listing
// moves it, and uploads land there.
type Store struct {
	mu          sync.RWMutex
	entries     map[string]*Entry
	children    map[string][]string // parent id -> ordered child ids
	lastVisited string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		entries:  make(map[string]*Entry),
		children: make(map[string][]string),
	}
}

// AddFolder creates a collection under parentID and returns its id.
func (s *Store) AddFolder(parentID, name string) (string, error) {
	return s.add(parentID, &Entry{
		VissibleName: name,
		Type:         typeCollection,
	})
}

// AddDocument creates a document under parentID and returns its id.
func (s *Store) AddDocument(parentID, name, fileType string) (string, error) {
	return s.add(parentID, &Entry{
		VissibleName: name,
		Type:         typeDocument,
		FileType:     fileType,
	})
}

func (s *Store) add(parentID string, e *Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if parentID != rootID {
		parent, ok := s.entries[parentID]
		if !ok || parent.Type != typeCollection {
			return "", fmt.Errorf("devsim: no such folder %q", parentID)
		}
	}

	e.ID = uuid.NewString()
	e.Parent = parentID
	s.entries[e.ID] = e
	s.children[parentID] = append(s.children[parentID], e.ID)
	return e.ID, nil
}

// List returns the direct children of folderID in insertion order. ok is
// false when folderID names nothing or names a document.
func (s *Store) List(folderID string) ([]Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if folderID != rootID {
		e, found := s.entries[folderID]
		if !found || e.Type != typeCollection {
			return nil, false
		}
	}

	ids := s.children[folderID]
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.entries[id])
	}
	return out, true
}

// Visit records folderID as the current folder, like the firmware does on
// every listing.
func (s *Store) Visit(folderID string) {
	s.mu.Lock()
	s.lastVisited = folderID
	s.mu.Unlock()
}

// LastVisited returns the folder uploads currently land in.
func (s *Store) LastVisited() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastVisited
}

// PlaceUpload files an uploaded document into the current folder and
// returns the created entry. The displayed name is the filename without
// its extension, which is how the device presents uploads.
func (s *Store) PlaceUpload(fileName string) (Entry, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	name := strings.TrimSuffix(fileName, filepath.Ext(fileName))

	s.mu.RLock()
	target := s.lastVisited
	s.mu.RUnlock()

	id, err := s.add(target, &Entry{
		VissibleName: name,
		Type:         typeDocument,
		FileType:     ext,
	})
	if err != nil {
		return Entry{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.entries[id], nil
}

// Len returns the number of entries in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// FixtureNode seeds one entry; folders nest.
type FixtureNode struct {
	Name      string        `yaml:"name"`
	Type      string        `yaml:"type,omitempty"` // document file type, e.g. pdf
	Folders   []FixtureNode `yaml:"folders,omitempty"`
	Documents []FixtureNode `yaml:"documents,omitempty"`
}

// Fixture is the YAML shape cmd/devsim loads a library from.
type Fixture struct {
	Folders   []FixtureNode `yaml:"folders"`
	Documents []FixtureNode `yaml:"documents"`
}

// LoadFixture reads a YAML library description and builds a seeded store.
func LoadFixture(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}

	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", filepath.Base(path), err)
	}
	return BuildStore(&fx)
}

// BuildStore seeds a store from a fixture.
func BuildStore(fx *Fixture) (*Store, error) {
	s := NewStore()
	if err := seedLevel(s, rootID, fx.Folders, fx.Documents); err != nil {
		return nil, err
	}
	return s, nil
}

func seedLevel(s *Store, parentID string, folders, documents []FixtureNode) error {
	for _, f := range folders {
		if f.Name == "" {
			return fmt.Errorf("devsim: fixture folder without a name under %q", parentID)
		}
		id, err := s.AddFolder(parentID, f.Name)
		if err != nil {
			return err
		}
		if err := seedLevel(s, id, f.Folders, f.Documents); err != nil {
			return err
		}
	}
	for _, d := range documents {
		if d.Name == "" {
			return fmt.Errorf("devsim: fixture document without a name under %q", parentID)
		}
		fileType := d.Type
		if fileType == "" {
			fileType = "pdf"
		}
		if _, err := s.AddDocument(parentID, d.Name, fileType); err != nil {
			return err
		}
	}
	return nil
}
