package expression

import (
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

// DefaultToken delimits embedded expressions: `@cel <expression> @cel`.
// A missing closing token means the expression runs to the end of the text.
const DefaultToken = "@cel"

// Spans rewrites every delimited expression in a text with its evaluated result.
type Spans struct {
	token     string
	header    string
	evaluator Evaluator
	regex     *regexp.Regexp
	logger    *log.Entry
}

func NewSpans(token string, header string, evaluator Evaluator, logger *log.Entry) *Spans {
	if token == "" {
		token = DefaultToken
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	quoted := regexp.QuoteMeta(token)
	return &Spans{
		token:     token,
		header:    header,
		evaluator: evaluator,
		regex:     regexp.MustCompile(quoted + `\s+((?s).*?)(?:` + quoted + `|$)`),
		logger:    logger,
	}
}

func (s *Spans) Token() string {
	return s.token
}

// Rewrite evaluates each span and substitutes the result for the whole span, delimiters included.
// A span that fails to evaluate is logged and left as it was.
func (s *Spans) Rewrite(text string) string {
	if s.evaluator == nil || !strings.Contains(text, s.token) {
		return text
	}
	return s.regex.ReplaceAllStringFunc(text, func(span string) string {
		match := s.regex.FindStringSubmatch(span)
		body := strings.TrimSpace(match[1])
		result, err := s.evaluator.Evaluate(s.header, body)
		if err != nil {
			s.logger.WithField("expression", body).Errorf("expression evaluation error: %v", err)
			return span
		}
		return result
	})
}
