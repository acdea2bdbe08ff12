package repoconfig

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestParseDirAppliesDefaultsAndRejectsMissingBaseurl(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/zypp/repos.d/oss.repo", []byte(`
[oss]
name=Main Repository (OSS)
enabled=1
autorefresh=0
baseurl=http://download.example.invalid/oss/
priority=50
type=rpm-md

[broken]
name=No baseurl here
enabled=1
`), 0644))

	records, err := ParseDir(fs, "/etc/zypp/repos.d")
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, "oss", rec.Alias())
	require.Equal(t, "http://download.example.invalid/oss/", rec.BaseURL)
	require.Equal(t, 50, rec.Priority)
	require.False(t, rec.AutoRefresh)
	require.Equal(t, TypeRPMMD, rec.Type)
	require.Equal(t, MetadataExpireDefault, rec.MetadataExpire)
}

func TestParseDirDefaultsPriorityAutorefreshAndType(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/zypp/repos.d/minimal.repo", []byte(`
[minimal]
baseurl=http://mirror.example.invalid/minimal/
`), 0644))

	records, err := ParseDir(fs, "/etc/zypp/repos.d")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 99, records[0].Priority)
	require.True(t, records[0].AutoRefresh)
	require.Equal(t, TypeRPMMD, records[0].Type)
}

func TestParseDirYast2Type(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/zypp/repos.d/suse.repo", []byte(`
[suse]
baseurl=http://mirror.example.invalid/suse/
type=yast2
`), 0644))

	records, err := ParseDir(fs, "/etc/zypp/repos.d")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, TypeYaST2, records[0].Type)
}

func TestSystemAndCommandlineRecordsAreMarkedCorrectly(t *testing.T) {
	sys := NewSystemRecord(nil)
	require.True(t, sys.IsSystem())
	require.Equal(t, ".System", sys.Alias())

	cmdline := NewCommandlineRecord(nil)
	require.False(t, cmdline.IsSystem())
	require.Equal(t, Type("@commandline"), cmdline.Type)
}
