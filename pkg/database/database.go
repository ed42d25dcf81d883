// Package database reads and writes the persisted treatment-planning
// objects. The store is a folder hierarchy of compact JSON documents keyed
// by id:
//
//	<root>/protocols/<id>.json
//	<root>/transducers/<id>.json
//	<root>/subjects/<subject>/subject.json
//	<root>/subjects/<subject>/volumes/<volume_id>.<ext>
//	<root>/subjects/<subject>/sessions/<id>/session.json
//	<root>/subjects/<subject>/sessions/<id>/solutions/<id>.json
//	<root>/subjects/<subject>/sessions/<id>/runs/<id>.json
//
// Volume files are matched by stem so the on-disk format extension can vary;
// resolution must be unique, and zero or multiple candidates is an error
// rather than a silent pick.
package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lifuplan/internal/models"
)

var (
	// ErrNotFound is returned when a requested object does not exist.
	ErrNotFound = errors.New("object not found in database")

	// ErrVolumeResolution is returned when a session's volume file cannot
	// be uniquely resolved.
	ErrVolumeResolution = errors.New("volume file resolution ambiguous")
)

// Database is a handle to one database root directory.
type Database struct {
	root string
}

// Open validates that the root directory exists and returns a handle.
func Open(root string) (*Database, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening database: %s is not a directory", root)
	}
	return &Database{root: root}, nil
}

// Root returns the database root directory.
func (d *Database) Root() string { return d.root }

func (d *Database) subjectDir(subjectID string) string {
	return filepath.Join(d.root, "subjects", subjectID)
}

func (d *Database) sessionDir(subjectID, sessionID string) string {
	return filepath.Join(d.subjectDir(subjectID), "sessions", sessionID)
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// listIDs returns the sorted ids found in a directory, either as .json file
// stems or as subdirectory names.
func listIDs(dir string, wantDirs bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var ids []string
	for _, entry := range entries {
		if wantDirs {
			if entry.IsDir() {
				ids = append(ids, entry.Name())
			}
			continue
		}
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// SubjectIDs lists all subject ids.
func (d *Database) SubjectIDs() ([]string, error) {
	return listIDs(filepath.Join(d.root, "subjects"), true)
}

// LoadSubject reads one subject.
func (d *Database) LoadSubject(subjectID string) (*models.Subject, error) {
	var subject models.Subject
	if err := readJSON(filepath.Join(d.subjectDir(subjectID), "subject.json"), &subject); err != nil {
		return nil, err
	}
	return &subject, nil
}

// WriteSubject persists one subject.
func (d *Database) WriteSubject(subject *models.Subject) error {
	return writeJSON(filepath.Join(d.subjectDir(subject.ID), "subject.json"), subject)
}

// SessionIDs lists the session ids for a subject.
func (d *Database) SessionIDs(subjectID string) ([]string, error) {
	return listIDs(filepath.Join(d.subjectDir(subjectID), "sessions"), true)
}

// LoadSession reads one session definition.
func (d *Database) LoadSession(subjectID, sessionID string) (*models.Session, error) {
	var session models.Session
	if err := readJSON(filepath.Join(d.sessionDir(subjectID, sessionID), "session.json"), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// WriteSession persists one session definition.
func (d *Database) WriteSession(session *models.Session) error {
	return writeJSON(filepath.Join(d.sessionDir(session.SubjectID, session.ID), "session.json"), session)
}

// LoadTransducer reads one transducer definition.
func (d *Database) LoadTransducer(id string) (*models.Transducer, error) {
	var transducer models.Transducer
	if err := readJSON(filepath.Join(d.root, "transducers", id+".json"), &transducer); err != nil {
		return nil, err
	}
	return &transducer, nil
}

// WriteTransducer persists one transducer definition.
func (d *Database) WriteTransducer(t *models.Transducer) error {
	return writeJSON(filepath.Join(d.root, "transducers", t.ID+".json"), t)
}

// LoadProtocol reads one protocol definition.
func (d *Database) LoadProtocol(id string) (*models.Protocol, error) {
	var protocol models.Protocol
	if err := readJSON(filepath.Join(d.root, "protocols", id+".json"), &protocol); err != nil {
		return nil, err
	}
	return &protocol, nil
}

// WriteProtocol persists one protocol definition.
func (d *Database) WriteProtocol(p *models.Protocol) error {
	return writeJSON(filepath.Join(d.root, "protocols", p.ID+".json"), p)
}

// ResolveVolumeFile finds the unique file under the subject's volumes
// directory whose stem is the volume id. Zero candidates and multiple
// candidates are both errors; the caller never gets a silent pick.
func (d *Database) ResolveVolumeFile(subjectID, volumeID string) (string, error) {
	dir := filepath.Join(d.subjectDir(subjectID), "volumes")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: no volumes directory for subject %q", ErrVolumeResolution, subjectID)
	}
	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		stem := strings.SplitN(name, ".", 2)[0]
		if stem == volumeID {
			candidates = append(candidates, filepath.Join(dir, name))
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no volume file for id %q, subject %q", ErrVolumeResolution, volumeID, subjectID)
	}
	if len(candidates) > 1 {
		return "", fmt.Errorf("%w: %d candidate files for id %q, subject %q", ErrVolumeResolution, len(candidates), volumeID, subjectID)
	}
	return candidates[0], nil
}

// LoadVolume reads a volume file produced by WriteVolume.
func (d *Database) LoadVolume(path string) (*models.Volume, error) {
	var volume models.Volume
	if err := readJSON(path, &volume); err != nil {
		return nil, err
	}
	if err := volume.Field.Validate(); err != nil {
		return nil, fmt.Errorf("volume %s: %w", path, err)
	}
	return &volume, nil
}

// WriteVolume persists a volume for a subject.
func (d *Database) WriteVolume(subjectID string, volume *models.Volume) error {
	path := filepath.Join(d.subjectDir(subjectID), "volumes", volume.ID+".json")
	return writeJSON(path, volume)
}

// WriteSolution persists a solution keyed by the session that produced it.
func (d *Database) WriteSolution(subjectID, sessionID string, solution *models.Solution) error {
	path := filepath.Join(d.sessionDir(subjectID, sessionID), "solutions", solution.ID+".json")
	return writeJSON(path, solution)
}

// WriteRun persists a run record keyed by the session that produced it.
func (d *Database) WriteRun(subjectID, sessionID string, run *models.Run) error {
	path := filepath.Join(d.sessionDir(subjectID, sessionID), "runs", run.ID+".json")
	return writeJSON(path, run)
}
