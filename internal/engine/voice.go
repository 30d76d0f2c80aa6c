package engine

import (
	"fmt"
	"strings"
)

// Voice identifies one drum part. The enum order is the pattern row order.
type Voice int

const (
	Kick Voice = iota
	Snare
	Clap
	ClosedHat
	OpenHat
	UserSample
)

// NumVoices is the number of pattern rows.
const NumVoices = int(UserSample) + 1

var voiceNames = [NumVoices]string{"Kick", "Snare", "Clap", "Hat", "Open Hat", "Sample"}

// slotNames are the asset base names the auto-loader looks for.
var slotNames = [NumVoices]string{"kick", "snare", "clap", "hat", "openhat", "sample"}

// Voices returns every voice in row order.
func Voices() []Voice {
	vs := make([]Voice, NumVoices)
	for i := range vs {
		vs[i] = Voice(i)
	}
	return vs
}

func (v Voice) Valid() bool { return v >= 0 && int(v) < NumVoices }

func (v Voice) String() string {
	if !v.Valid() {
		return fmt.Sprintf("Voice(%d)", int(v))
	}
	return voiceNames[v]
}

// SlotName is the lowercase asset name bound to the voice's sample slot.
func (v Voice) SlotName() string {
	if !v.Valid() {
		return ""
	}
	return slotNames[v]
}

// ParseVoice accepts display names and slot names, case-insensitively.
func ParseVoice(s string) (Voice, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i := 0; i < NumVoices; i++ {
		if s == slotNames[i] || s == strings.ToLower(voiceNames[i]) {
			return Voice(i), nil
		}
	}
	switch s {
	case "closedhat", "closed hat", "ch":
		return ClosedHat, nil
	case "open hat", "oh":
		return OpenHat, nil
	case "user", "usersample":
		return UserSample, nil
	}
	return 0, fmt.Errorf("unknown voice %q", s)
}

var keyVoices = map[rune]Voice{
	'a': Kick,
	's': Snare,
	'd': Clap,
	'f': ClosedHat,
	't': OpenHat,
	'g': UserSample,
}

// VoiceForKey maps the live-play keyboard letters to voices.
func VoiceForKey(r rune) (Voice, bool) {
	if r >= 'A' && r <= 'Z' {
		r += 'a' - 'A'
	}
	v, ok := keyVoices[r]
	return v, ok
}

func KeyForVoice(v Voice) rune {
	for r, kv := range keyVoices {
		if kv == v {
			return r
		}
	}
	return 0
}
