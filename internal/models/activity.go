// Package models defines the data structures shared by the activity pipeline.
package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxActivityItems is the upper bound for quiz questions and flashcards per request.
const MaxActivityItems = 5

// ActivityRequest is a client request for generated learning activities.
type ActivityRequest struct {
	Query          string `json:"query" validate:"required"`
	QuizQuestions  int    `json:"quiz_questions" validate:"min=0,max=5"`
	FlashcardItems int    `json:"flashcard_items" validate:"min=0,max=5"`
	Subject        string `json:"subject" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		req := sl.Current().Interface().(ActivityRequest)
		if req.QuizQuestions+req.FlashcardItems < 1 {
			sl.ReportError(req.QuizQuestions, "quiz_questions", "QuizQuestions", "min_activities", "")
		}
	}, ActivityRequest{})
	return v
}

// Validate checks field bounds and that at least one activity is requested.
// Errors wrap ErrValidation.
func (r ActivityRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min_activities":
		return "at least one quiz question or flashcard must be requested"
	case "required":
		return fmt.Sprintf("%s is required", jsonName(fe.Field()))
	case "min", "max":
		return fmt.Sprintf("%s must be between 0 and %d", jsonName(fe.Field()), MaxActivityItems)
	default:
		return fmt.Sprintf("%s failed %s", jsonName(fe.Field()), fe.Tag())
	}
}

func jsonName(field string) string {
	switch field {
	case "QuizQuestions":
		return "quiz_questions"
	case "FlashcardItems":
		return "flashcard_items"
	default:
		return strings.ToLower(field)
	}
}

// Alternative is one answer option of a multiple choice question.
type Alternative struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// QuizQuestion is a single multiple choice question. Type is always "multiple_choice".
type QuizQuestion struct {
	ID                   int           `json:"id"`
	Type                 string        `json:"type"`
	Prompt               string        `json:"prompt"`
	Alternatives         []Alternative `json:"alternatives"`
	ExplanationCorrect   string        `json:"explanation_correct"`
	ExplanationIncorrect string        `json:"explanation_incorrect"`
	SourceReference      *string       `json:"source_reference"`
}

// QuizActivity groups the generated questions under a topic.
type QuizActivity struct {
	Topic     string         `json:"topic"`
	Questions []QuizQuestion `json:"questions"`
}

// FlashcardItem is a single card in a flashcard deck.
type FlashcardItem struct {
	CardID                int     `json:"card_id"`
	Term                  string  `json:"term"`
	Definition            string  `json:"definition"`
	ImageGenerationPrompt string  `json:"image_generation_prompt"`
	SourceReference       *string `json:"source_reference"`
}

// FlashcardActivity groups the generated cards under a topic.
type FlashcardActivity struct {
	Topic string          `json:"topic"`
	Items []FlashcardItem `json:"items"`
}

// LearningActivityResponse is the validated output of one generation.
// Quiz and Flashcards are nil when the corresponding count was zero.
type LearningActivityResponse struct {
	ResponseID  string             `json:"response_id"`
	Explanation string             `json:"explanation"`
	Quiz        *QuizActivity      `json:"quiz"`
	Flashcards  *FlashcardActivity `json:"flashcards"`
}

// CheckCounts verifies that the response sections match the requested counts.
func (r *LearningActivityResponse) CheckCounts(req ActivityRequest) error {
	switch {
	case req.QuizQuestions == 0 && r.Quiz != nil:
		return errors.New("quiz must be null when no quiz questions are requested")
	case req.QuizQuestions > 0 && r.Quiz == nil:
		return errors.New("quiz is missing")
	case r.Quiz != nil && len(r.Quiz.Questions) != req.QuizQuestions:
		return fmt.Errorf("quiz has %d questions, want %d", len(r.Quiz.Questions), req.QuizQuestions)
	}

	switch {
	case req.FlashcardItems == 0 && r.Flashcards != nil:
		return errors.New("flashcards must be null when no flashcards are requested")
	case req.FlashcardItems > 0 && r.Flashcards == nil:
		return errors.New("flashcards are missing")
	case r.Flashcards != nil && len(r.Flashcards.Items) != req.FlashcardItems:
		return fmt.Errorf("flashcards has %d items, want %d", len(r.Flashcards.Items), req.FlashcardItems)
	}

	return nil
}
