package format

import (
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ParseResult contains plain text and message entities
type ParseResult struct {
	Text     string
	Entities []tgbotapi.MessageEntity
}

var (
	boldRe = regexp.MustCompile(`\*\*(.+?)\*\*`)
	codeRe = regexp.MustCompile("`([^`]+?)`")
)

// UTF16Len calculates the UTF-16 length of a string.
// Telegram counts entity offsets/lengths in UTF-16 code units.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// ParseMarkdown converts **bold** and `code` markers into Telegram entities.
// Reminder texts never need more than that.
func ParseMarkdown(text string) ParseResult {
	var entities []tgbotapi.MessageEntity
	result := text

	for _, m := range []struct {
		re   *regexp.Regexp
		kind string
	}{{boldRe, "bold"}, {codeRe, "code"}} {
		for {
			loc := m.re.FindStringSubmatchIndex(result)
			if loc == nil {
				break
			}
			inner := result[loc[2]:loc[3]]
			start := UTF16Len(result[:loc[0]])
			innerLen := UTF16Len(inner)
			opening := UTF16Len(result[loc[0]:loc[2]])
			closing := UTF16Len(result[loc[3]:loc[1]])

			// Entities found by an earlier pattern shift left once the
			// markers in front of them are removed
			for i := range entities {
				if entities[i].Offset > start {
					entities[i].Offset -= opening
					if entities[i].Offset > start+innerLen {
						entities[i].Offset -= closing
					}
				}
			}
			entities = append(entities, tgbotapi.MessageEntity{
				Type:   m.kind,
				Offset: start,
				Length: innerLen,
			})
			result = result[:loc[0]] + inner + result[loc[1]:]
		}
	}

	// Telegram requires entities sorted by offset
	for i := 1; i < len(entities); i++ {
		for j := i; j > 0 && entities[j].Offset < entities[j-1].Offset; j-- {
			entities[j], entities[j-1] = entities[j-1], entities[j]
		}
	}

	return ParseResult{
		Text:     strings.TrimRight(result, " \n"),
		Entities: entities,
	}
}

// Reminder renders a notification as a bold title line followed by the body.
func Reminder(title, body string) ParseResult {
	text := "⏰ **" + escapeMarkers(title) + "**"
	if body = strings.TrimSpace(body); body != "" {
		text += "\n\n" + escapeMarkers(body)
	}
	return ParseMarkdown(text)
}

// escapeMarkers drops characters that would be read as formatting.
func escapeMarkers(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "`", "'")
	return strings.ToValidUTF8(s, "")
}
