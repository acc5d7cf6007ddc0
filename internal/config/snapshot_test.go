package config

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHomepageFilenamePatterns(t *testing.T) {
	cases := []struct {
		pattern string
		custom  string
		want    string
		invalid bool
	}{
		{pattern: "", want: "index.md"},
		{pattern: "index.md", want: "index.md"},
		{pattern: "home.md", want: "home.md"},
		{pattern: "root.md", want: "root.md"},
		{pattern: "custom", custom: "about", want: "about.md"},
		{pattern: "custom", custom: "/welcome.md/", want: "welcome.md"},
		{pattern: "custom", custom: "", want: "index.md", invalid: true},
		{pattern: "custom", custom: "../etc/passwd", want: "index.md", invalid: true},
		{pattern: "custom", custom: "a/b", want: "index.md", invalid: true},
		{pattern: "landing.html", want: "index.md", invalid: true},
	}

	for _, tc := range cases {
		t.Run(tc.pattern+"/"+tc.custom, func(t *testing.T) {
			snap := NewSnapshot("https://example.com", MarkdownConfig{
				HomepagePattern:       tc.pattern,
				HomepagePatternCustom: tc.custom,
			})
			got, err := snap.HomepageFilename()
			assert.Equal(t, tc.want, got)
			if tc.invalid {
				assert.True(t, errors.Is(err, ErrConfigInvalid))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSnapshotTypeEnabledNormalizes(t *testing.T) {
	snap := NewSnapshot("https://example.com/", MarkdownConfig{EnabledTypes: []string{" Post ", "page", "post", ""}})
	assert.Equal(t, []string{"post", "page"}, snap.EnabledTypes)
	assert.True(t, snap.TypeEnabled("POST"))
	assert.False(t, snap.TypeEnabled("product"))
	assert.Equal(t, "https://example.com", snap.SiteURL)
}

func TestSettingsReplacePublishesSnapshot(t *testing.T) {
	settings := NewSettings(NewSnapshot("https://example.com", DefaultMarkdownConfig()))

	md := DefaultMarkdownConfig()
	md.EnableContentNegotiation = false
	md.HomepagePattern = HomepageCustom
	md.HomepagePatternCustom = ""

	next, err := settings.Replace(md)
	require.ErrorIs(t, err, ErrConfigInvalid)
	assert.False(t, settings.Snapshot().EnableContentNegotiation)
	assert.Equal(t, "https://example.com", next.SiteURL)

	name, _ := settings.Snapshot().HomepageFilename()
	assert.Equal(t, HomepageIndex, name)
}

func TestSettingsConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	settings := NewSettings(NewSnapshot("https://example.com", DefaultMarkdownConfig()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			md := DefaultMarkdownConfig()
			md.EnableDiscoveryTags = i%2 == 0
			md.EnablePreGeneration = i%2 == 0
			_, _ = settings.Replace(md)
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap := settings.Snapshot()
			assert.Equal(t, snap.EnableDiscoveryTags, snap.EnablePreGeneration)
		}()
	}
	wg.Wait()
}
