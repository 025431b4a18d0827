// Package metadata reads and writes the update center properties files.
//
// A properties file describes one plugin: its currently public version, the
// archived versions and per release facts keyed by "<version>.<field>".
package metadata

import (
	"bytes"
	"fmt"
	"os"

	"github.com/magiconair/properties"
)

const (
	KeyPublicVersions   = "publicVersions"
	KeyArchivedVersions = "archivedVersions"
	KeyMavenArtifactID  = "defaults.mavenArtifactId"

	// Separator joins multiple versions in publicVersions and archivedVersions.
	Separator = ","
)

const (
	FieldDescription  = "description"
	FieldSQVersions   = "sqVersions"
	FieldDate         = "date"
	FieldChangelogURL = "changelogUrl"
	FieldDownloadURL  = "downloadUrl"
)

func ReleaseKey(version, field string) string {
	return fmt.Sprintf("%s.%s", version, field)
}

func newLoader() *properties.Loader {
	return &properties.Loader{
		Encoding:         properties.UTF8,
		DisableExpansion: true,
	}
}

func Load(path string) (*properties.Properties, error) {
	p, err := newLoader().LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load properties file %s: %w", path, err)
	}
	return p, nil
}

func Parse(data []byte) (*properties.Properties, error) {
	return newLoader().LoadBytes(data)
}

func MustParse(data string) *properties.Properties {
	p, err := Parse([]byte(data))
	if err != nil {
		panic(err)
	}
	return p
}

// Encode renders p as key=value lines, keeping comments and key order.
func Encode(p *properties.Properties) ([]byte, error) {
	p.WriteSeparator = "="
	var buf bytes.Buffer
	if _, err := p.WriteComment(&buf, "# ", properties.UTF8); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Write(p *properties.Properties, path string) error {
	data, err := Encode(p)
	if err != nil {
		return fmt.Errorf("failed to encode properties file %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write properties file %s: %w", path, err)
	}
	return nil
}

// Clone returns a deep copy of p. Modifying the copy never affects p.
func Clone(p *properties.Properties) *properties.Properties {
	cp := properties.NewProperties()
	cp.DisableExpansion = true
	cp.WriteSeparator = p.WriteSeparator
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		// expansion is disabled, Set cannot fail
		_, _, _ = cp.Set(k, v)
		if comments := p.GetComments(k); len(comments) > 0 {
			cp.SetComments(k, append([]string(nil), comments...))
		}
	}
	return cp
}
