// Package sprites loads avatar sprite manifests: for each avatar style, the
// ordered sprite frames drawn for each viseme category.
package sprites

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/normanking/spritetalk/internal/lipsync"
)

// ErrUnknownStyle is returned for a style name the manifest does not define.
var ErrUnknownStyle = errors.New("unknown avatar style")

// Style is one avatar's sprite set.
type Style struct {
	Name         string        `yaml:"-" json:"name"`
	DisplayName  string        `yaml:"display_name" json:"displayName"`
	ImagePattern string        `yaml:"image_pattern" json:"imagePattern"`
	FrameCount   int           `yaml:"frame_count" json:"frameCount"`
	Frames       map[int][]int `yaml:"frames" json:"frames"`
}

// FrameMap converts the style's frame table for the lip-sync selector.
func (s *Style) FrameMap() lipsync.FrameMap {
	m := make(lipsync.FrameMap, len(s.Frames))
	for c, frames := range s.Frames {
		m[lipsync.Category(c)] = append([]int(nil), frames...)
	}
	return m
}

// ImagePath returns the asset path of a frame.
func (s *Style) ImagePath(frame int) string {
	if s.ImagePattern == "" {
		return ""
	}
	return fmt.Sprintf(s.ImagePattern, frame)
}

// Manifest is the top-level sprites file.
type Manifest struct {
	DefaultStyle string            `yaml:"default_style" json:"defaultStyle"`
	Styles       map[string]*Style `yaml:"styles" json:"styles"`
}

// Parse decodes and validates a YAML manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse sprite manifest: %w", err)
	}
	for name, style := range m.Styles {
		if style == nil {
			return nil, fmt.Errorf("style %q is empty", name)
		}
		style.Name = name
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sprite manifest %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks category keys and frame numbers.
func (m *Manifest) Validate() error {
	if len(m.Styles) == 0 {
		return errors.New("sprite manifest defines no styles")
	}
	if m.DefaultStyle == "" {
		m.DefaultStyle = m.StyleNames()[0]
	}
	if _, ok := m.Styles[m.DefaultStyle]; !ok {
		return fmt.Errorf("default style %q: %w", m.DefaultStyle, ErrUnknownStyle)
	}

	for name, style := range m.Styles {
		for c, frames := range style.Frames {
			if !lipsync.Category(c).Valid() {
				return fmt.Errorf("style %q: viseme category %d out of range 0-7", name, c)
			}
			for _, f := range frames {
				if f < 1 {
					return fmt.Errorf("style %q: frame %d must be positive", name, f)
				}
				if style.FrameCount > 0 && f > style.FrameCount {
					return fmt.Errorf("style %q: frame %d exceeds frame_count %d", name, f, style.FrameCount)
				}
			}
		}
	}
	return nil
}

// StyleNames returns the style names in sorted order.
func (m *Manifest) StyleNames() []string {
	names := make([]string, 0, len(m.Styles))
	for name := range m.Styles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Style looks up a style; an empty name selects the default style.
func (m *Manifest) Style(name string) (*Style, error) {
	if name == "" {
		name = m.DefaultStyle
	}
	style, ok := m.Styles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStyle, name)
	}
	return style, nil
}

// Default returns the manifest built into the application, used when no
// manifest file is configured.
func Default() *Manifest {
	return &Manifest{
		DefaultStyle: "classic",
		Styles: map[string]*Style{
			"classic": {
				Name:         "classic",
				DisplayName:  "Classic",
				ImagePattern: "sprites/classic/mouth_%02d.png",
				FrameCount:   11,
				Frames: map[int][]int{
					0: {1},
					1: {2, 3},
					2: {4},
					3: {5, 6},
					4: {7},
					5: {8},
					6: {9},
					7: {10, 11},
				},
			},
			"pixel": {
				Name:         "pixel",
				DisplayName:  "Pixel",
				ImagePattern: "sprites/pixel/frame_%d.png",
				FrameCount:   6,
				Frames: map[int][]int{
					0: {1},
					1: {2, 3},
					2: {4},
					3: {5},
					4: {5},
					5: {1},
					6: {6},
					7: {4},
				},
			},
		},
	}
}
