package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"doc-chat/internal/domain"
)

var (
	fenceStartRe = regexp.MustCompile("(?is)^\\s*```(?:json)?\\s*")
	fenceEndRe   = regexp.MustCompile("(?is)\\s*```\\s*$")
	htmlMarkerRe = regexp.MustCompile("(?i)html")
)

// ParseQuiz interpreta la respuesta del asistente como una pregunta de opcion
// multiple. Acepta fences de markdown y texto alrededor del objeto JSON.
func ParseQuiz(raw string) (domain.QuizQuestion, error) {
	candidates := []string{stripCodeFence(raw)}
	if obj, ok := firstJSONObject(raw); ok {
		candidates = append(candidates, obj)
	}

	var lastErr error
	for _, candidate := range candidates {
		var wire quizWire
		if err := json.Unmarshal([]byte(candidate), &wire); err != nil {
			lastErr = err
			continue
		}
		quiz := wire.toDomain()
		if err := validateQuiz(quiz); err != nil {
			return domain.QuizQuestion{}, err
		}
		return quiz, nil
	}
	return domain.QuizQuestion{}, fmt.Errorf("%w: %v", ErrInvalidQuiz, lastErr)
}

func validateQuiz(q domain.QuizQuestion) error {
	if strings.TrimSpace(q.Question.Text) == "" {
		return fmt.Errorf("%w: missing question text", ErrInvalidQuiz)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: expected at least two options", ErrInvalidQuiz)
	}
	if _, ok := q.CorrectOption(); !ok {
		return fmt.Errorf("%w: no correct option", ErrInvalidQuiz)
	}
	return nil
}

// cleanSummaryReply quita backticks y marcadores "html" de los resumenes.
func cleanSummaryReply(reply string) string {
	reply = strings.ReplaceAll(reply, "`", "")
	reply = htmlMarkerRe.ReplaceAllString(reply, "")
	return strings.TrimSpace(reply)
}

func stripCodeFence(raw string) string {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "\uFEFF")
	s = fenceStartRe.ReplaceAllString(s, "")
	s = fenceEndRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// firstJSONObject devuelve el primer objeto {...} balanceado, ignorando llaves
// dentro de strings.
func firstJSONObject(input string) (string, bool) {
	start := strings.IndexByte(input, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(input); i++ {
		ch := input[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return input[start : i+1], true
			}
		}
	}
	return "", false
}

type quizWire struct {
	Question struct {
		ID   looseString `json:"id"`
		Text string      `json:"text"`
		Type string      `json:"type"`
	} `json:"question"`
	Options []struct {
		ID        looseString `json:"id"`
		Text      string      `json:"text"`
		IsCorrect bool        `json:"isCorrect"`
	} `json:"options"`
}

func (w quizWire) toDomain() domain.QuizQuestion {
	q := domain.QuizQuestion{
		Question: domain.QuizPrompt{
			ID:   string(w.Question.ID),
			Text: strings.TrimSpace(w.Question.Text),
			Type: w.Question.Type,
		},
		Options: make([]domain.QuizOption, 0, len(w.Options)),
	}
	if q.Question.Type == "" {
		q.Question.Type = "multiple-choice"
	}
	for i, opt := range w.Options {
		id := string(opt.ID)
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		q.Options = append(q.Options, domain.QuizOption{
			ID:        id,
			Text:      strings.TrimSpace(opt.Text),
			IsCorrect: opt.IsCorrect,
		})
	}
	return q
}

// looseString acepta ids como string o numero.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = looseString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = looseString(num.String())
	return nil
}
