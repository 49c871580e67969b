package sprites

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/spritetalk/internal/lipsync"
)

const manifestYAML = `
default_style: girl
styles:
  girl:
    display_name: Girl
    image_pattern: "sprites/girl/%02d.png"
    frame_count: 9
    frames:
      0: [1]
      1: [2, 3, 4]
      5: [9]
  boy:
    frames:
      0: [1]
`

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "sprites.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(manifestYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"boy", "girl"}, m.StyleNames())

	girl, err := m.Style("")
	require.NoError(t, err)
	assert.Equal(t, "girl", girl.Name)
	assert.Equal(t, "sprites/girl/03.png", girl.ImagePath(3))

	fm := girl.FrameMap()
	assert.Equal(t, []int{2, 3, 4}, fm[lipsync.CategoryOpen])
	assert.Equal(t, []int{1}, fm.Candidates(lipsync.CategorySmile), "missing categories fall back to silence")

	_, err = m.Style("cat")
	assert.ErrorIs(t, err, ErrUnknownStyle)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"no styles":       `styles: {}`,
		"bad category":    "styles:\n  a:\n    frames:\n      9: [1]\n",
		"zero frame":      "styles:\n  a:\n    frames:\n      0: [0]\n",
		"over count":      "styles:\n  a:\n    frame_count: 2\n    frames:\n      0: [3]\n",
		"missing default": "default_style: b\nstyles:\n  a:\n    frames:\n      0: [1]\n",
		"not yaml":        "styles: [",
	}
	for name, src := range cases {
		_, err := Parse([]byte(src))
		assert.Error(t, err, name)
	}
}

func TestParse_DefaultStyleInferred(t *testing.T) {
	m, err := Parse([]byte("styles:\n  zed:\n    frames: {}\n  alpha:\n    frames: {}\n"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", m.DefaultStyle)
}

func TestDefaultManifestIsValid(t *testing.T) {
	m := Default()
	require.NoError(t, m.Validate())
	for _, name := range m.StyleNames() {
		style, err := m.Style(name)
		require.NoError(t, err)
		for _, c := range lipsync.Categories() {
			assert.NotEmpty(t, style.FrameMap().Candidates(c), "%s/%s", name, c)
		}
	}
}

func TestStore_BuiltIn(t *testing.T) {
	s, err := NewStore("", zerolog.Nop())
	require.NoError(t, err)

	fm, err := s.FrameMap("classic")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, fm[lipsync.CategoryOpen])

	assert.NoError(t, s.Reload())
	assert.Error(t, s.Watch(context.Background()))
}

func TestStore_ReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, manifestYAML)

	s, err := NewStore(path, zerolog.Nop())
	require.NoError(t, err)

	writeManifest(t, dir, "styles: [")
	assert.Error(t, s.Reload())
	assert.Equal(t, []string{"boy", "girl"}, s.Styles())
}

func TestStore_WatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, manifestYAML)

	s, err := NewStore(path, zerolog.Nop())
	require.NoError(t, err)

	reloaded := make(chan *Manifest, 8)
	s.OnReload(func(m *Manifest) {
		select {
		case reloaded <- m:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Watch(ctx))

	writeManifest(t, dir, "default_style: robot\nstyles:\n  robot:\n    frames:\n      0: [1]\n      1: [5]\n")

	require.Eventually(t, func() bool {
		return s.Manifest().DefaultStyle == "robot"
	}, 5*time.Second, 20*time.Millisecond)

	fm, err := s.FrameMap("")
	require.NoError(t, err)
	assert.Equal(t, []int{5}, fm[lipsync.CategoryOpen])
	assert.NotEmpty(t, reloaded)
}
