package parsers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/deltax-data-professor/server/internal/agent/model"
	errx "github.com/deltax-data-professor/server/internal/core/error"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 128 * 1024
	maxSQLLen     = 32 * 1024
	maxTextLen    = 16 * 1024
)

var fencePattern = regexp.MustCompile("(?s)```([a-zA-Z]*)\\s*\\n?(.*?)```")

type rawAnswer struct {
	Type        string           `json:"type"`
	SQL         string           `json:"sql"`
	Code        string           `json:"code"`
	Explanation string           `json:"explanation"`
	Text        string           `json:"text"`
	Answer      string           `json:"answer"`
	Chart       *model.ChartSpec `json:"chart"`
}

// ParseAnswer extracts the structured answer from a model reply. Replies that
// carry no JSON object fall back to a fenced SQL block, then to plain text.
func ParseAnswer(content string) (ans *model.Answer, err error) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "answer_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("answer parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			ans = nil
		}
	}()

	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "answer_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
	}
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errx.NoResult(fmt.Errorf("%w: empty model reply", errx.ErrNoResult))
	}

	for _, candidate := range jsonCandidates(content) {
		var raw rawAnswer
		if json.Unmarshal([]byte(candidate), &raw) != nil {
			continue
		}
		if a, ok := fromRaw(raw); ok {
			return a, nil
		}
	}

	if m := fencePattern.FindStringSubmatch(content); m != nil && strings.EqualFold(m[1], "sql") {
		return &model.Answer{Type: model.ResultDataFrame, SQL: limit(strings.TrimSpace(m[2]), maxSQLLen)}, nil
	}

	logx.Debug().Str("component", "answer_parser").Msg("no structured answer found, using plain text")
	return &model.Answer{Type: model.ResultString, Text: limit(content, maxTextLen)}, nil
}

func fromRaw(raw rawAnswer) (*model.Answer, bool) {
	sql := strings.TrimSpace(raw.SQL)
	if sql == "" {
		sql = strings.TrimSpace(raw.Code)
	}
	sql = stripFence(sql)
	text := strings.TrimSpace(raw.Text)
	if text == "" {
		text = strings.TrimSpace(raw.Answer)
	}
	if sql == "" && text == "" && strings.TrimSpace(raw.Explanation) == "" {
		return nil, false
	}

	typ, err := model.ParseResultType(raw.Type)
	if err != nil {
		typ = model.ResultString
		if sql != "" {
			typ = model.ResultDataFrame
		}
	}

	a := &model.Answer{
		Type:        typ,
		SQL:         limit(sql, maxSQLLen),
		Explanation: limit(strings.TrimSpace(raw.Explanation), maxTextLen),
		Text:        limit(text, maxTextLen),
	}
	if typ == model.ResultPlot && raw.Chart != nil {
		c := *raw.Chart
		c.Kind = model.ChartKind(strings.ToLower(strings.TrimSpace(string(c.Kind))))
		a.Chart = &c
	}
	return a, true
}

// jsonCandidates returns the contents of code fences followed by every
// balanced top-level {...} span of s.
func jsonCandidates(s string) []string {
	var out []string
	for _, m := range fencePattern.FindAllStringSubmatch(s, -1) {
		if lang := strings.ToLower(m[1]); lang == "" || lang == "json" {
			out = append(out, strings.TrimSpace(m[2]))
		}
	}

	depth, start := 0, -1
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					out = append(out, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return out
}

func stripFence(s string) string {
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[2])
	}
	return s
}

func limit(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
