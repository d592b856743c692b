package utils

import (
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-property-media/entity"
)

func TestValidateImageExtension(t *testing.T) {
	for name, want := range map[string]string{
		"photo.JPG":   ".jpg",
		"photo.jpeg":  ".jpeg",
		"a.b.c.png":   ".png",
		" spaced.Png": ".png",
	} {
		ext, err := ValidateImageExtension(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, ext)
	}

	for _, name := range []string{"evil.exe", "noext", "photo.gif", ".png.exe", ""} {
		_, err := ValidateImageExtension(name)
		assert.ErrorIs(t, err, entity.ErrUnsupportedImageFormat, name)
	}
}

func TestNewStagingKeyFormat(t *testing.T) {
	key, err := NewStagingKey("Holiday.JPEG")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{12}\.jpeg$`), key)
	assert.LessOrEqual(t, len(key), 17)

	_, err = NewStagingKey("evil.exe")
	assert.ErrorIs(t, err, entity.ErrUnsupportedImageFormat)
}

func TestNewBatchDirectoryFormat(t *testing.T) {
	orig := now
	now = func() time.Time { return time.Date(2024, time.March, 5, 14, 7, 9, 0, time.FixedZone("X", 3600)) }
	defer func() { now = orig }()

	dir := NewBatchDirectory("")
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{14}_13-07-09_05-March-2024/$`), dir)

	labelled := NewBatchDirectory("John Doe!")
	assert.Regexp(t, regexp.MustCompile(`^john-doe_[0-9a-f]{14}_13-07-09_05-March-2024/$`), labelled)
}

func TestStagingKeysAreUnique(t *testing.T) {
	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		key, err := NewStagingKey("a.png")
		require.NoError(t, err)
		seen[key] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestBatchDirectoriesAreUniqueWithFrozenClock(t *testing.T) {
	orig := now
	frozen := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	now = func() time.Time { return frozen }
	defer func() { now = orig }()

	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		seen[NewBatchDirectory("")] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestConcurrentBatchDirectories(t *testing.T) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		dirs = make(map[string]struct{})
	)
	for _, owner := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				d := NewBatchDirectory(owner)
				assert.True(t, strings.HasPrefix(d, owner+"_"), d)
				mu.Lock()
				dirs[d] = struct{}{}
				mu.Unlock()
			}
		}(owner)
	}
	wg.Wait()
	assert.Len(t, dirs, 1000)
}
