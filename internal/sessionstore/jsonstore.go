// Package sessionstore persists one JSON file per session. The core
// server consumes sessions through the Store loader interface and never
// parses JSON itself; this package is the concrete loader, shipped so the
// daemon is runnable standalone, but kept behind Store so internal/server
// never imports encoding/json directly.
package sessionstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chriswa/ptymuxd/internal/session"
)

// Store is the loader interface the core server consumes sessions through.
type Store interface {
	Load(name string) (session.Session, error)
	Save(sess session.Session) error
	Rename(oldName, newName string) error
	Delete(name string) error
	List() ([]string, error)

	// SetActiveTab and SetChildRatio patch a single field in place, for
	// the high-frequency case of a tab switch or an interactive split
	// resize, without round-tripping the whole document.
	SetActiveTab(name string, activeTabOneBased int) error
	SetChildRatio(name string, tabIndex, childIndex int, ratio float64) error
}

// JSONStore persists sessions as one file per session under dir.
type JSONStore struct {
	dir string
}

// New returns a JSONStore rooted at dir, creating it if necessary.
func New(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("sessionstore: %w", err)
	}
	return &JSONStore{dir: dir}, nil
}

// StateDir returns the default session directory for a daemon profile
// named profileName: $HOME/.local/state/<name>/sessions.
func StateDir(profileName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("sessionstore: %w", err)
	}
	return filepath.Join(home, ".local", "state", profileName, "sessions"), nil
}

func (s *JSONStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Dir returns the directory sessions are stored under, for a Watcher to
// watch.
func (s *JSONStore) Dir() string {
	return s.dir
}

// jsonNode mirrors the layout Node union on disk: {type:"pane", ...} or
// {type:"split", ...}.
type jsonNode struct {
	Type      string     `json:"type"`
	PtyID     int64      `json:"pty_id,omitempty"`
	Cwd       string     `json:"cwd,omitempty"`
	Direction string     `json:"direction,omitempty"`
	Children  []jsonNode `json:"children,omitempty"`
	Ratio     float64    `json:"ratio,omitempty"`
}

type jsonTab struct {
	Root jsonNode `json:"root"`
}

type jsonSession struct {
	ActiveTab int       `json:"active_tab"` // 1-based on disk
	Tabs      []jsonTab `json:"tabs"`
}

// Load reads and parses the session file for name.
func (s *JSONStore) Load(name string) (session.Session, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return session.Session{}, fmt.Errorf("sessionstore: load %q: %w", name, err)
	}
	var doc jsonSession
	if err := json.Unmarshal(data, &doc); err != nil {
		return session.Session{}, fmt.Errorf("sessionstore: load %q: %w", name, err)
	}
	return fromJSON(name, doc)
}

// Save writes sess to disk, overwriting any existing file.
func (s *JSONStore) Save(sess session.Session) error {
	doc := toJSON(sess)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("sessionstore: save %q: %w", sess.Name, err)
	}
	tmp := s.path(sess.Name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("sessionstore: save %q: %w", sess.Name, err)
	}
	return os.Rename(tmp, s.path(sess.Name))
}

// Rename moves a session file to a new name.
func (s *JSONStore) Rename(oldName, newName string) error {
	if err := os.Rename(s.path(oldName), s.path(newName)); err != nil {
		return fmt.Errorf("sessionstore: rename %q to %q: %w", oldName, newName, err)
	}
	return nil
}

// Delete removes a session file.
func (s *JSONStore) Delete(name string) error {
	if err := os.Remove(s.path(name)); err != nil {
		return fmt.Errorf("sessionstore: delete %q: %w", name, err)
	}
	return nil
}

// List returns the names of every session file in the store directory.
func (s *JSONStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: list: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".json" {
			continue
		}
		names = append(names, e.Name()[:len(e.Name())-len(ext)])
	}
	return names, nil
}

func fromJSON(name string, doc jsonSession) (session.Session, error) {
	if doc.ActiveTab < 1 || doc.ActiveTab > len(doc.Tabs) {
		return session.Session{}, fmt.Errorf("sessionstore: %q: active_tab %d out of range for %d tabs", name, doc.ActiveTab, len(doc.Tabs))
	}
	tabs := make([]session.Tab, len(doc.Tabs))
	for i, t := range doc.Tabs {
		node, err := nodeFromJSON(t.Root)
		if err != nil {
			return session.Session{}, fmt.Errorf("sessionstore: %q: tab %d: %w", name, i, err)
		}
		tabs[i] = session.Tab{Root: node}
	}
	return session.Session{
		Name:      name,
		Tabs:      tabs,
		ActiveTab: doc.ActiveTab - 1,
	}, nil
}

func nodeFromJSON(n jsonNode) (session.Node, error) {
	switch n.Type {
	case "pane":
		return session.NewPane(n.PtyID, n.Cwd), nil
	case "split":
		var dir session.SplitDirection
		switch n.Direction {
		case "row":
			dir = session.SplitRow
		case "col":
			dir = session.SplitCol
		default:
			return session.Node{}, fmt.Errorf("unknown split direction %q", n.Direction)
		}
		children := make([]session.Node, len(n.Children))
		ratios := make([]float64, len(n.Children))
		for i, c := range n.Children {
			child, err := nodeFromJSON(c)
			if err != nil {
				return session.Node{}, err
			}
			children[i] = child
			ratios[i] = c.Ratio
		}
		split := &session.SplitNode{Direction: dir, Children: children, Ratios: ratios}
		split.NormalizeRatios() // handles a missing/zero ratio (all-zero -> even split) and rounding drift
		return session.Node{Split: split}, nil
	default:
		return session.Node{}, fmt.Errorf("unknown node type %q", n.Type)
	}
}

func toJSON(sess session.Session) jsonSession {
	doc := jsonSession{
		ActiveTab: sess.ActiveTab + 1,
		Tabs:      make([]jsonTab, len(sess.Tabs)),
	}
	for i, t := range sess.Tabs {
		doc.Tabs[i] = jsonTab{Root: nodeToJSON(t.Root)}
	}
	return doc
}

func nodeToJSON(n session.Node) jsonNode {
	if n.Pane != nil {
		return jsonNode{Type: "pane", PtyID: n.Pane.PtyID, Cwd: n.Pane.Cwd}
	}
	s := n.Split
	children := make([]jsonNode, len(s.Children))
	for i, c := range s.Children {
		child := nodeToJSON(c)
		if i < len(s.Ratios) {
			child.Ratio = s.Ratios[i]
		}
		children[i] = child
	}
	return jsonNode{Type: "split", Direction: s.Direction.String(), Children: children}
}
