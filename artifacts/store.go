package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/corvata/gleaner/config"
	"github.com/corvata/gleaner/errors"
	"github.com/corvata/gleaner/logger"
)

// Store reads and writes document artifact directories under one
// output root. All JSON writes go through a temp file and rename, so a
// crash mid-write can leave stale artifacts but never torn ones.
type Store struct {
	outputDir string
	log       *zap.SugaredLogger
}

func NewStore(outputDir string) *Store {
	return &Store{
		outputDir: outputDir,
		log:       logger.ComponentLogger("artifacts"),
	}
}

// OutputDir returns the root every document directory lives under.
func (s *Store) OutputDir() string {
	return s.outputDir
}

// DocDir returns the directory owned by one document.
func (s *Store) DocDir(key string) string {
	return filepath.Join(s.outputDir, key)
}

// ImageDir returns where a document's rendered page JPEGs live.
func (s *Store) ImageDir(key string) string {
	return filepath.Join(s.outputDir, key, PagesDir)
}

// HasPages reports whether a pages.json already exists for the key.
// It says nothing about schema compatibility; ReadPages decides that.
func (s *Store) HasPages(key string) bool {
	_, err := os.Stat(filepath.Join(s.DocDir(key), PagesName))
	return err == nil
}

// WritePages publishes the document's extracted text.
func (s *Store) WritePages(p *PagesFile) error {
	p.SchemaVersion = SchemaVersion
	return s.writeJSON(p.Key, PagesName, p)
}

// WriteMeta publishes the document's extraction metadata.
func (s *Store) WriteMeta(m *Meta) error {
	m.SchemaVersion = SchemaVersion
	return s.writeJSON(m.Key, MetaName, m)
}

// WriteLayout publishes the document's page geometry.
func (s *Store) WriteLayout(l *Layout) error {
	l.SchemaVersion = SchemaVersion
	return s.writeJSON(l.Key, LayoutName, l)
}

// ReadPages loads a document's extracted text. ErrNotFound when the
// document has no artifacts; ErrSchemaIncompatible when they were
// written by a different major schema version.
func (s *Store) ReadPages(key string) (*PagesFile, error) {
	var p PagesFile
	if err := s.readJSON(key, PagesName, &p); err != nil {
		return nil, err
	}
	if err := CheckSchema(p.SchemaVersion); err != nil {
		return nil, errors.Wrapf(err, "pages.json for %s", key)
	}
	return &p, nil
}

// ReadMeta loads a document's extraction metadata with the same schema
// gate as ReadPages.
func (s *Store) ReadMeta(key string) (*Meta, error) {
	var m Meta
	if err := s.readJSON(key, MetaName, &m); err != nil {
		return nil, err
	}
	if err := CheckSchema(m.SchemaVersion); err != nil {
		return nil, errors.Wrapf(err, "meta.json for %s", key)
	}
	return &m, nil
}

// ReadLayout loads a document's page geometry.
func (s *Store) ReadLayout(key string) (*Layout, error) {
	var l Layout
	if err := s.readJSON(key, LayoutName, &l); err != nil {
		return nil, err
	}
	if err := CheckSchema(l.SchemaVersion); err != nil {
		return nil, errors.Wrapf(err, "layout.json for %s", key)
	}
	return &l, nil
}

func (s *Store) writeJSON(key, name string, v interface{}) error {
	dir := s.DocDir(key)
	if err := os.MkdirAll(dir, config.DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "create artifact dir %s", dir)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "marshal %s for %s", name, key)
	}
	data = append(data, '\n')

	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "publish %s", path)
	}
	s.log.Debugw("artifact written", logger.FieldDocKey, key, logger.FieldFile, name)
	return nil
}

func (s *Store) readJSON(key, name string, v interface{}) error {
	path := filepath.Join(s.DocDir(key), name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundError("no %s for document %s", name, key)
		}
		return errors.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	return nil
}
