package trickster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
)

const (
	mathTestWindowSeconds = 30
	mathTestMaxAttempts   = 5
	mathAnswerTolerance   = 0.1
)

var mathPromptTemplates = []string{
	"Generate a simple mental math expression that can be solved in your head. Use basic operations like addition, subtraction, multiplication, or division with small numbers (prefer numbers under 20, maximum 100). Output ONLY the mathematical expression, nothing else. Examples: {ex1}, {ex2}, {ex3}, {ex4}",
	"Create an easy math problem with 2-4 numbers that someone can calculate mentally. Use addition, subtraction, multiplication, or simple division. Keep numbers small and friendly (single or double digits preferred). Output ONLY the expression. Examples: {ex1}, {ex2}, {ex3}, {ex4}",
	"Write a simple arithmetic calculation using small, friendly numbers that can be computed without a calculator. Stick to basic operations (+, -, *, /). Output ONLY the math expression. Examples: {ex1}, {ex2}, {ex3}, {ex4}",
}

const mathGeneratorSystemPrompt = "You are a math expression generator for " +
	"mental math challenges. Generate simple arithmetic expressions that " +
	"can be solved mentally. Output ONLY the mathematical expression with " +
	"numbers and operators, no explanations, no greetings, no additional text."

// ErrMathGeneration indicates the generator could not produce a fresh,
// evaluable expression within the attempt budget.
var ErrMathGeneration = errors.New(
	"failed to generate valid math question after 5 attempts",
)

// MathTest is a generated mental-arithmetic challenge. The answer comes
// from evaluating the expression locally, never from the model.
type MathTest struct {
	Question string
	Answer   float64
}

// ValidateAnswer reports whether the user's reply parses as a number
// within tolerance of the canonical answer.
func (t MathTest) ValidateAnswer(userAnswer string) bool {
	v, err := strconv.ParseFloat(strings.TrimSpace(userAnswer), 64)
	if err != nil {
		return false
	}
	return math.Abs(t.Answer-v) <= mathAnswerTolerance
}

// mathExamples synthesizes the few-shot examples embedded in the
// generation prompt. Randomizing them each call keeps the model from
// producing the same handful of expressions.
func mathExamples(rng *rand.Rand) [4]string {
	var ex [4]string
	ex[0] = fmt.Sprintf("%d + %d", 5+rng.Intn(45), 5+rng.Intn(45))
	ex[1] = fmt.Sprintf("%d * %d", 3+rng.Intn(12), 3+rng.Intn(12))

	if rng.Intn(2) == 0 {
		divisor := 2 + rng.Intn(11)
		result := 5 + rng.Intn(15)
		ex[2] = fmt.Sprintf("%d / %d", divisor*result, divisor)
	} else {
		ex[2] = fmt.Sprintf("%d - %d", 30+rng.Intn(70), 5+rng.Intn(25))
	}

	if rng.Float64() < 0.3 {
		a, b, c := 3+rng.Intn(17), 3+rng.Intn(17), 3+rng.Intn(17)
		switch rng.Intn(3) {
		case 0:
			ex[3] = fmt.Sprintf("%d + %d + %d", a, b, c)
		case 1:
			ex[3] = fmt.Sprintf("%d - %d + %d", a+b+c, b, c)
		default:
			ex[3] = fmt.Sprintf("%d + %d - %d", a, b, c)
		}
	} else {
		divisor := 2 + rng.Intn(9)
		result := 5 + rng.Intn(10)
		ex[3] = fmt.Sprintf("%d / %d", divisor*result, divisor)
	}
	return ex
}

// GenerateMathTest asks the model for a fresh expression, evaluates it
// locally and records it. Duplicate or non-evaluable expressions are
// retried up to the attempt budget.
func (l *LLM) GenerateMathTest(
	ctx context.Context,
	db DBI,
	rng *rand.Rand,
) (*MathTest, error) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = slog.Default()
	}
	for attempt := 0; attempt < mathTestMaxAttempts; attempt++ {
		ex := mathExamples(rng)
		template := mathPromptTemplates[rng.Intn(len(mathPromptTemplates))]
		userPrompt := strings.NewReplacer(
			"{ex1}", ex[0],
			"{ex2}", ex[1],
			"{ex3}", ex[2],
			"{ex4}", ex[3],
		).Replace(template)

		resp, err := l.CreateChatCompletion(
			ctx,
			openai.ChatCompletionRequest{
				Model: l.config.Model,
				Messages: []openai.ChatCompletionMessage{
					{
						Role:    openai.ChatMessageRoleSystem,
						Content: mathGeneratorSystemPrompt,
					},
					{
						Role:    openai.ChatMessageRoleUser,
						Content: userPrompt,
					},
				},
				Temperature: 0.9,
				MaxTokens:   50,
			},
		)
		if err != nil {
			logger.ErrorContext(
				ctx,
				"math generation request failed",
				"attempt", attempt+1,
				tint.Err(err),
			)
			continue
		}
		if len(resp.Choices) == 0 {
			logger.ErrorContext(ctx, "no choices in math generation response")
			continue
		}
		question := strings.TrimSpace(resp.Choices[0].Message.Content)

		answer, err := evalExpression(question)
		if err != nil {
			logger.ErrorContext(
				ctx,
				"model produced non-evaluable expression",
				"question", question,
				tint.Err(err),
			)
			continue
		}

		seen, err := db.MathQuestionSeen(question)
		if err != nil {
			logger.ErrorContext(
				ctx,
				"error checking for duplicate question",
				tint.Err(err),
			)
			continue
		}
		if seen {
			logger.DebugContext(
				ctx,
				"question already asked, retrying",
				"question", question,
			)
			continue
		}

		if err = db.RecordMathQuestion(question, answer); err != nil {
			return nil, fmt.Errorf("error recording math question: %w", err)
		}
		return &MathTest{Question: question, Answer: answer}, nil
	}
	return nil, ErrMathGeneration
}
