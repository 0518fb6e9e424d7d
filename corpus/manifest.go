package corpus

import (
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/corvata/gleaner/errors"
)

// Manifest is the decoded corpus manifest. Order of [[document]] blocks is
// preserved; Keys() sorts for deterministic display.
type Manifest struct {
	Documents []Document `toml:"document"`

	byKey map[string]int
}

// LoadManifest reads and validates a corpus manifest file.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, errors.AsConfig(errors.Wrapf(err, "failed to parse manifest %s", path))
	}

	if err := m.validate(); err != nil {
		return nil, errors.AsConfig(errors.Wrapf(err, "invalid manifest %s", path))
	}

	m.index()
	return &m, nil
}

func (m *Manifest) validate() error {
	if len(m.Documents) == 0 {
		return errors.New("manifest names no documents")
	}

	seen := make(map[string]bool, len(m.Documents))
	for i, doc := range m.Documents {
		if doc.Key == "" {
			return errors.Newf("document %d has no key", i)
		}
		if !ValidKey(doc.Key) {
			return errors.Newf("document key %q is not a valid slug (lowercase alphanumerics, dots, dashes)", doc.Key)
		}
		if seen[doc.Key] {
			return errors.Newf("duplicate document key %q", doc.Key)
		}
		seen[doc.Key] = true

		if doc.File == "" && doc.SourceURL == "" {
			return errors.Newf("document %q names neither a file nor a source_url", doc.Key)
		}
		switch doc.DocType {
		case "", DocTypeDigital, DocTypeScanned, DocTypeUnknown:
		default:
			return errors.Newf("document %q has unknown doc_type %q", doc.Key, doc.DocType)
		}
	}
	return nil
}

func (m *Manifest) index() {
	m.byKey = make(map[string]int, len(m.Documents))
	for i, doc := range m.Documents {
		m.byKey[doc.Key] = i
	}
}

// Get returns the document for key.
func (m *Manifest) Get(key string) (Document, bool) {
	i, ok := m.byKey[key]
	if !ok {
		return Document{}, false
	}
	return m.Documents[i], true
}

// Keys returns all document keys, sorted.
func (m *Manifest) Keys() []string {
	keys := make([]string, 0, len(m.Documents))
	for _, doc := range m.Documents {
		keys = append(keys, doc.Key)
	}
	sort.Strings(keys)
	return keys
}

// Select returns the documents for the requested keys, erroring on unknowns.
// An empty request selects the whole manifest.
func (m *Manifest) Select(keys []string) ([]Document, error) {
	if len(keys) == 0 {
		out := make([]Document, len(m.Documents))
		copy(out, m.Documents)
		return out, nil
	}

	out := make([]Document, 0, len(keys))
	for _, key := range keys {
		doc, ok := m.Get(key)
		if !ok {
			return nil, errors.Mark(errors.Newf("key %q not in manifest", key), errors.ErrNotFound)
		}
		out = append(out, doc)
	}
	return out, nil
}
