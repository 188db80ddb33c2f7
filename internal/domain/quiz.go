package domain

// QuizQuestion es la pregunta de opcion multiple que genera el asistente.
type QuizQuestion struct {
	Question QuizPrompt   `json:"question"`
	Options  []QuizOption `json:"options"`
}

type QuizPrompt struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Type string `json:"type"`
}

type QuizOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// CorrectOption devuelve la primera opcion marcada como correcta.
func (q QuizQuestion) CorrectOption() (QuizOption, bool) {
	for _, opt := range q.Options {
		if opt.IsCorrect {
			return opt, true
		}
	}
	return QuizOption{}, false
}
