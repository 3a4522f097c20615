package usecase

import (
	"fmt"
	"unicode/utf8"
)

const maxClassifierBodyChars = 2000

func truncateRunes(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}

func buildEmailClassificationPrompt(sender, subject, body string) string {
	return fmt.Sprintf(`Analyze this email and determine:
1. Is this related to a job application? (yes/no)
2. If yes, what stage? (applied/rejected/interview/offer/assessment/other)
3. Company name (if identifiable)
4. Position title (if mentioned)

Email:
From: %s
Subject: %s
Body: %s

Respond in JSON format:
{
	"is_application": boolean,
	"stage": "string or null",
	"company": "string or null",
	"position": "string or null",
	"confidence": "high/medium/low"
}
`, sender, subject, truncateRunes(body, maxClassifierBodyChars))
}
