package generator

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/kursgen/internal/models"
)

// chunkSeparator joins retrieved curriculum passages in the user message.
const chunkSeparator = "\n---\n"

// Dedupe removes repeated chunks, keeping first-occurrence order.
func Dedupe(chunks []string) []string {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// SystemPrompt returns the classroom instructor persona with the exact requested counts.
func SystemPrompt(req models.ActivityRequest) string {
	return fmt.Sprintf(`Du är en inspirerande och pedagogisk lärare som hjälper elever att bemästra skolämnen enligt den svenska läroplanen (Lgr22).

DINA TVÅ KÄLLOR:
1. LÄROPLANEN (hämtade textavsnitt): Använd den ENDAST för att kalibrera nivån (årskurs) och för att se vilka centrala begrepp eleven förväntas lära sig.
2. DIN EXPERTKUNSKAP: Använd din egen kunskap för att förklara själva ämnesinnehållet (t.ex. fysik, biologi, historia).

STRÄNGA INSTRUKTIONER:
- FRÅGEFOKUS: Quizza ALDRIG på läroplanens formella text (t.ex. "vad står i betygskriterierna"). Quizza på ÄMNET (t.ex. "Vad är en foton?") på den nivå läroplanen anger.
- PEDAGOGIK: Förklara svåra begrepp med liknelser som passar en elev i den aktuella årskursen.
- JSON-FORMAT: Leverera ALLTID strikt JSON enligt schemat.
- BILDER: 'image_generation_prompt' ska vara en kort, beskrivande och visuellt inriktad fras på engelska.

MÅL:
- Skapa exakt %d quiz-frågor om ämnet.
- Skapa exakt %d flashcards om ämnet.`, req.QuizQuestions, req.FlashcardItems)
}

// UserMessage embeds the deduplicated curriculum text, the counts and the
// raw user query.
func UserMessage(chunks []string, req models.ActivityRequest) string {
	return fmt.Sprintf(`Generera följande aktiviteter med svårighetsgrad baserad på den hämtade läroplanstexten:

- Antal QUIZ-frågor: %d
- Antal FLASHCARDS: %d

HÄMTAD KÄLLTEXT:
---
%s
---

Användarens önskemål/fokus: %q

Viktigt: Leverera svaret i det strikta JSON-formatet. Om en aktivitet inte efterfrågas, sätt dess sektion till null.`,
		req.QuizQuestions, req.FlashcardItems, strings.Join(Dedupe(chunks), chunkSeparator), req.Query)
}
