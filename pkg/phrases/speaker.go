package phrases

import (
	"log/slog"
)

// Speaker turns phrase keys into reply text, choosing among alternatives
// with its Picker.
type Speaker struct {
	src    Source
	picker Picker
}

// NewSpeaker creates a speaker. A nil picker always picks the first phrase.
func NewSpeaker(src Source, picker Picker) *Speaker {
	if picker == nil {
		picker = FirstPicker{}
	}
	return &Speaker{src: src, picker: picker}
}

// Say picks a phrase for key and renders it with data. Unknown keys yield
// an empty string; render errors yield the raw phrase.
func (s *Speaker) Say(key string, data any) string {
	pool := s.src.Catalog().Pool(key)
	if len(pool) == 0 {
		slog.Warn("missing phrase", slog.String("key", key))
		return ""
	}

	i := s.picker.Pick(len(pool))
	if i < 0 || i >= len(pool) {
		i = 0
	}
	phrase := pool[i]
	out, err := Render(phrase, data)
	if err != nil {
		slog.Warn("phrase render failed",
			slog.String("key", key), slog.String("error", err.Error()))
		return phrase
	}
	return out
}

// Pool returns every alternative for key.
func (s *Speaker) Pool(key string) []string {
	return s.src.Catalog().Pool(key)
}
