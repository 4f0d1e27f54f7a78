package tts

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DefaultFallbackVoice is used when a language has no configured voice
const DefaultFallbackVoice = "en-US-AdamMultilingualNeural"

// Voice describes one selectable synthesizer voice
type Voice struct {
	ID     string `json:"voice"`
	Gender string `json:"gender"`
}

// VoiceTable maps target-language codes to a default voice
type VoiceTable struct {
	byLanguage map[string]string
	fallback   string
}

// NewVoiceTable creates a table with the built-in defaults
func NewVoiceTable(fallback string) *VoiceTable {
	if fallback == "" {
		fallback = DefaultFallbackVoice
	}
	return &VoiceTable{
		byLanguage: map[string]string{
			"en": "en-GB-ThomasNeural",
			"ru": "ru-RU-DmitryNeural",
			"hy": "hy-AM-AnahitNeural",
			"es": "es-ES-AlvaroNeural",
			"fr": "fr-FR-HenriNeural",
			"de": "de-DE-ConradNeural",
		},
		fallback: fallback,
	}
}

// Lookup tries the exact code, then its base language, then the fallback voice
func (t *VoiceTable) Lookup(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if v, ok := t.byLanguage[lang]; ok {
		return v
	}
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		if v, ok := t.byLanguage[lang[:i]]; ok {
			return v
		}
	}
	return t.fallback
}

// Resolve prefers an explicitly requested voice over the table
func (t *VoiceTable) Resolve(requested, language string) string {
	if r := strings.TrimSpace(requested); r != "" {
		return r
	}
	return t.Lookup(language)
}

// TargetLanguages maps supported language codes to their voice locale prefix
var TargetLanguages = map[string]string{
	"ru": "ru-RU",
	"en": "en-US",
	"es": "es-ES",
	"fr": "fr-FR",
	"de": "de-DE",
	"hy": "hy-AM",
}

// LanguageVoices groups the voices of one supported language
type LanguageVoices struct {
	Locale string  `json:"locale"`
	Voices []Voice `json:"voices"`
}

// VoiceLister enumerates every voice an engine offers
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

var builtinVoices = []Voice{
	{ID: "ru-RU-DmitryNeural", Gender: "Male"},
	{ID: "ru-RU-SvetlanaNeural", Gender: "Female"},
	{ID: "en-US-AdamMultilingualNeural", Gender: "Male"},
	{ID: "en-US-AriaNeural", Gender: "Female"},
	{ID: "en-US-GuyNeural", Gender: "Male"},
	{ID: "en-US-JennyNeural", Gender: "Female"},
	{ID: "es-ES-AlvaroNeural", Gender: "Male"},
	{ID: "es-ES-ElviraNeural", Gender: "Female"},
	{ID: "fr-FR-DeniseNeural", Gender: "Female"},
	{ID: "fr-FR-HenriNeural", Gender: "Male"},
	{ID: "de-DE-ConradNeural", Gender: "Male"},
	{ID: "de-DE-KatjaNeural", Gender: "Female"},
	{ID: "hy-AM-AnahitNeural", Gender: "Female"},
	{ID: "hy-AM-HaykNeural", Gender: "Male"},
}

// Catalog lists voices for the supported target languages. The engine's own
// list is loaded once and the built-in list is used when it is unavailable.
type Catalog struct {
	logger *zap.Logger
	lister VoiceLister

	once   sync.Once
	voices []Voice
}

// NewCatalog creates a new Catalog instance; lister may be nil
func NewCatalog(logger *zap.Logger, lister VoiceLister) *Catalog {
	return &Catalog{
		logger: logger.With(zap.String("component", "tts")),
		lister: lister,
	}
}

func (c *Catalog) load(ctx context.Context) []Voice {
	c.once.Do(func() {
		c.voices = builtinVoices
		if c.lister == nil {
			return
		}
		listed, err := c.lister.ListVoices(ctx)
		if err != nil || len(listed) == 0 {
			c.logger.Warn("using built-in voice list", zap.Error(err))
			return
		}
		c.voices = listed
	})
	return c.voices
}

// ForLanguage returns the voices of a supported language, or false when unsupported
func (c *Catalog) ForLanguage(ctx context.Context, language string) ([]Voice, bool) {
	prefix, ok := TargetLanguages[language]
	if !ok {
		return nil, false
	}
	matching := []Voice{}
	for _, v := range c.load(ctx) {
		if strings.HasPrefix(v.ID, prefix) {
			matching = append(matching, v)
		}
	}
	return matching, true
}

// All returns up to perLanguage voices for every supported language that has any
func (c *Catalog) All(ctx context.Context, perLanguage int) []LanguageVoices {
	languages := make([]string, 0, len(TargetLanguages))
	for lang := range TargetLanguages {
		languages = append(languages, lang)
	}
	sort.Strings(languages)

	result := []LanguageVoices{}
	for _, lang := range languages {
		voices, _ := c.ForLanguage(ctx, lang)
		if len(voices) == 0 {
			continue
		}
		if perLanguage > 0 && len(voices) > perLanguage {
			voices = voices[:perLanguage]
		}
		result = append(result, LanguageVoices{Locale: lang, Voices: voices})
	}
	return result
}
