package entity

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestBuildManifestAddsSeparator(t *testing.T) {
	m, err := BuildManifest("abc_12-00-00_01-January-2024", []string{"a.jpg", "b.png"})
	require.NoError(t, err)
	assert.Equal(t, "abc_12-00-00_01-January-2024/", m.Directory)
	assert.Equal(t, []string{"a.jpg", "b.png"}, m.Filenames)
}

func TestBuildManifestRejectsBadInput(t *testing.T) {
	_, err := BuildManifest("", []string{"a.jpg"})
	assert.ErrorIs(t, err, ErrManifestCorrupt)

	_, err = BuildManifest("dir/", []string{"../a.jpg"})
	assert.ErrorIs(t, err, ErrManifestCorrupt)
}

func TestLegacyRoundTrip(t *testing.T) {
	m, err := BuildManifest("dirA/", []string{"x.jpg", "y.png"})
	require.NoError(t, err)

	raw, err := m.MarshalLegacy()
	require.NoError(t, err)
	assert.JSONEq(t, `["dirA/","x.jpg","y.png"]`, string(raw))

	parsed, err := ParseManifest(raw)
	require.NoError(t, err)
	assert.Equal(t, m, parsed)
}

func TestParseManifestEmptyForms(t *testing.T) {
	for _, raw := range []string{"", "null", "[]", "  "} {
		m, err := ParseManifest([]byte(raw))
		require.NoError(t, err, raw)
		assert.True(t, m.IsEmpty(), raw)
	}

	raw, err := Manifest{}.MarshalLegacy()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestParseManifestCorrupt(t *testing.T) {
	for _, raw := range []string{`{"a":1}`, `[1,2]`, `["nodir","a.jpg"]`, `not json`} {
		_, err := ParseManifest([]byte(raw))
		assert.ErrorIs(t, err, ErrManifestCorrupt, raw)
	}
}

func TestResolveURLsCountAndDirectory(t *testing.T) {
	for n := 0; n <= 5; n++ {
		files := make([]string, n)
		for i := range files {
			files[i] = fmt.Sprintf("f%d.jpg", i)
		}
		m, err := BuildManifest("batch_10-11-12_03-March-2025/", files)
		require.NoError(t, err)

		urls := m.ResolveURLs("https://bucket.s3.amazonaws.com/", "media/property-images/")
		require.Len(t, urls, n)
		for i, u := range urls {
			assert.True(t, strings.Contains(u, "/batch_10-11-12_03-March-2025/"), u)
			assert.Equal(t, "https://bucket.s3.amazonaws.com/media/property-images/batch_10-11-12_03-March-2025/"+files[i], u)
		}
	}
}

func TestObjectPath(t *testing.T) {
	assert.Equal(t, "media/tmp/dir/a.jpg", ObjectPath("media/tmp/", "dir/", "a.jpg"))
	assert.Equal(t, "media/tmp/dir/a.jpg", ObjectPath("/media/tmp", "/dir", "/a.jpg"))
	assert.Equal(t, "dir/a.jpg", ObjectPath("", "dir/", "a.jpg"))
}

func TestImageBatchManifests(t *testing.T) {
	b := &ImageBatch{
		Directory:           "new/",
		Filenames:           datatypes.JSON(`["n1.jpg"]`),
		SupersedesDirectory: "old/",
		SupersedesFilenames: datatypes.JSON(`["o1.jpg","o2.jpg"]`),
	}

	m, err := b.Manifest()
	require.NoError(t, err)
	assert.Equal(t, Manifest{Directory: "new/", Filenames: []string{"n1.jpg"}}, m)

	old, err := b.Superseded()
	require.NoError(t, err)
	assert.Equal(t, []string{"o1.jpg", "o2.jpg"}, old.Filenames)

	b.SupersedesDirectory = ""
	old, err = b.Superseded()
	require.NoError(t, err)
	assert.True(t, old.IsEmpty())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("%w: timeout", ErrUpload)))
	assert.True(t, IsRetryable(fmt.Errorf("connection reset")))
	assert.False(t, IsRetryable(fmt.Errorf("%w: bad bytes", ErrUnsupportedImageFormat)))
	assert.False(t, IsRetryable(ErrStagingKeyNotFound))
	assert.False(t, IsRetryable(nil))
}

func TestImageRoleColumns(t *testing.T) {
	assert.Equal(t, "properties", ImageRoleListing.OwnerTable())
	assert.Equal(t, "photos", ImageRoleListing.ManifestColumn())
	assert.Equal(t, "users", ImageRoleProfile.OwnerTable())
	assert.Equal(t, "profile_photo", ImageRoleProfile.ManifestColumn())
	assert.Equal(t, "cover_photo", ImageRoleCover.ManifestColumn())
	assert.False(t, ImageRole("banner").Valid())
}
