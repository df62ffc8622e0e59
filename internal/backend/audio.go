package backend

import (
	"bytes"
	"net/http"
	"path"
	"strings"
	"time"
)

// MPEG-1 Layer III, 128 kbit/s, 44.1 kHz, joint stereo, no CRC.
var silentFrameHeader = []byte{0xFF, 0xFB, 0x90, 0x64}

const silentFrameSize = 417

// SilentMP3 returns frames MP3 frames of silence, 1152 samples each.
func SilentMP3(frames int) []byte {
	var buf bytes.Buffer
	buf.Grow(frames * silentFrameSize)
	frame := make([]byte, silentFrameSize)
	copy(frame, silentFrameHeader)
	for i := 0; i < frames; i++ {
		buf.Write(frame)
	}
	return buf.Bytes()
}

// AudioHandler serves the same silent clip for every .mp3 name so the audio
// references the simulator hands out can be downloaded.
func AudioHandler(frames int) http.Handler {
	clip := SilentMP3(frames)
	started := time.Now()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Base(r.URL.Path)
		if !strings.HasSuffix(name, ".mp3") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		http.ServeContent(w, r, name, started, bytes.NewReader(clip))
	})
}
