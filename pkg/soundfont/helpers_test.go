package soundfont_test

import "github.com/go-audio/audio"

func pcm(frames int) *audio.IntBuffer {
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 44100},
		Data:           make([]int, frames),
		SourceBitDepth: 16,
	}
}
