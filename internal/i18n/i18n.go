// Package i18n selects the message printer for CLI output from the locale
// environment.
package i18n

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang is the fallback language
var DefaultLang = language.English

// SupportedLangs are the languages we support
var SupportedLangs = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(SupportedLangs)

func init() {
	for key, msg := range german {
		message.SetString(language.German, key, msg)
	}
}

var german = map[string]string{
	"Configuration valid!\n": "Konfiguration gültig!\n",
	"No changes detected.": "Keine Änderungen gefunden.",
	"No runs recorded.": "Keine Läufe aufgezeichnet.",
	"Sample configuration written to %s\n": "Beispielkonfiguration nach %s geschrieben\n",
	"warning: interface %s does not exist on this host\n": "Warnung: Schnittstelle %s existiert auf diesem Host nicht\n",
}

// MatchLanguage returns the best matching supported language for a list of
// tags such as "de-DE,de;q=0.9".
func MatchLanguage(tags string) language.Tag {
	parsed, _, _ := language.ParseAcceptLanguage(tags)
	tag, _, _ := matcher.Match(parsed...)
	return tag
}

// NewPrinter returns a message printer for the given language
func NewPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

// NewCLIPrinter returns a printer for the system's locale (from env vars)
func NewCLIPrinter() *message.Printer {
	return message.NewPrinter(localeTag(os.Getenv("LC_ALL"), os.Getenv("LANG")))
}

// localeTag maps POSIX locale values like "de_DE.UTF-8" to a supported tag.
func localeTag(values ...string) language.Tag {
	lang := ""
	for _, v := range values {
		if v != "" {
			lang = v
			break
		}
	}
	if lang == "" || lang == "C" || lang == "POSIX" {
		return DefaultLang
	}

	// Strip encoding (e.g. .UTF-8) and modifier (@euro)
	if i := strings.IndexAny(lang, ".@"); i != -1 {
		lang = lang[:i]
	}
	lang = strings.ReplaceAll(lang, "_", "-")

	tag, err := language.Parse(lang)
	if err != nil {
		return MatchLanguage(lang)
	}
	tag, _, _ = matcher.Match(tag)
	return tag
}
