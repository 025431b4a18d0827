package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testPropertiesFile = `# plugin metadata
category=External Analysers
description=SpotBugs, FindSecBugs and fb-contrib
defaults.mavenArtifactId=sonar-findbugs-plugin
publicVersions=4.0.0
archivedVersions=3.11.0
4.0.0.sqVersions=[7.9,LATEST]
4.0.0.homepageUrl=https://github.com/${owner}/sonar-findbugs
`

func TestParseKeepsValuesVerbatim(t *testing.T) {
	p := MustParse(testPropertiesFile)
	require.Equal(t, "4.0.0", p.GetString(KeyPublicVersions, ""))
	require.Equal(t, "sonar-findbugs-plugin", p.GetString(KeyMavenArtifactID, ""))
	require.Equal(t, "[7.9,LATEST]", p.GetString(ReleaseKey("4.0.0", FieldSQVersions), ""))
	require.Equal(t, "https://github.com/${owner}/sonar-findbugs", p.GetString("4.0.0.homepageUrl", ""))
}

func TestReleaseKey(t *testing.T) {
	require.Equal(t, "1.0.1.downloadUrl", ReleaseKey("1.0.1", FieldDownloadURL))
}

func TestClone(t *testing.T) {
	p := MustParse(testPropertiesFile)
	cp := Clone(p)
	require.Equal(t, p.Keys(), cp.Keys())
	require.Equal(t, []string{"plugin metadata"}, cp.GetComments("category"))

	_, _, err := cp.Set(KeyPublicVersions, "4.0.1")
	require.NoError(t, err)
	_, _, err = cp.Set("4.0.1.date", "2024-01-01")
	require.NoError(t, err)

	require.Equal(t, "4.0.0", p.GetString(KeyPublicVersions, ""))
	_, ok := p.Get("4.0.1.date")
	require.False(t, ok)
	require.Equal(t, p.Len()+1, cp.Len())
}

func TestWriteAndLoad(t *testing.T) {
	p := MustParse(testPropertiesFile)
	path := filepath.Join(t.TempDir(), "findbugs.properties")
	require.NoError(t, Write(p, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "publicVersions=4.0.0\n")
	require.Contains(t, string(raw), "# plugin metadata\n")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, p.Keys(), loaded.Keys())
	require.Equal(t, "[7.9,LATEST]", loaded.GetString(ReleaseKey("4.0.0", FieldSQVersions), ""))

	// writing an already formatted file is stable
	first, err := Encode(loaded)
	require.NoError(t, err)
	require.Equal(t, raw, first)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.properties"))
	require.ErrorContains(t, err, "failed to load properties file")
}
