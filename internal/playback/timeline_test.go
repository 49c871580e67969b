package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/spritetalk/internal/lipsync"
)

func TestRenderTimeline(t *testing.T) {
	u := Utterance{
		ID: "t1",
		Visemes: lipsync.Sequence{
			{Category: lipsync.CategoryOpen, Start: 0, Duration: 0.5},
			{Category: lipsync.CategoryClosed, Start: 0.5, Duration: 0.5},
		},
	}

	updates, err := RenderTimeline(u, TimelineOptions{FPS: 10, Frames: testFrames})
	require.NoError(t, err)

	require.NotEmpty(t, updates)
	assert.Equal(t, StateLoading, updates[0].State)
	last := updates[len(updates)-1]
	assert.Equal(t, StateEnded, last.State)
	assert.Equal(t, 1, last.Frame)

	var playing []Update
	for _, up := range updates {
		if up.State == StatePlaying {
			playing = append(playing, up)
		}
	}
	require.Len(t, playing, 9)
	assert.InDelta(t, 0.1, playing[0].Time, 1e-9)
	assert.Equal(t, lipsync.CategoryOpen, playing[0].Viseme)
	assert.Equal(t, lipsync.CategoryClosed, playing[len(playing)-1].Viseme)
}

func TestRenderTimeline_RealDurationRescales(t *testing.T) {
	u := Utterance{
		ID: "t2",
		Visemes: lipsync.Sequence{
			{Category: lipsync.CategoryOpen, Start: 0, Duration: 0.5},
			{Category: lipsync.CategoryClosed, Start: 0.5, Duration: 0.5},
		},
	}

	updates, err := RenderTimeline(u, TimelineOptions{FPS: 10, Duration: 2, Frames: testFrames})
	require.NoError(t, err)

	byTime := map[int]lipsync.Category{}
	for _, up := range updates {
		if up.State == StatePlaying {
			byTime[int(up.Time*10+0.5)] = up.Viseme
		}
	}
	assert.Equal(t, lipsync.CategoryOpen, byTime[8], "0.8s is inside the stretched first event")
	assert.Equal(t, lipsync.CategoryClosed, byTime[12])
}

func TestRenderTimeline_NoDuration(t *testing.T) {
	_, err := RenderTimeline(Utterance{ID: "t3"}, TimelineOptions{})
	assert.Error(t, err)
}
