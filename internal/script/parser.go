package script

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/KevinKickass/FountainCore/internal/types"
	"go.uber.org/zap"
)

// blankCue marks an explicit silence line.
const blankCue = `(\B)`

// DefaultLegacyMarker identifies scripts written with the old per-module
// address numbering.
const DefaultLegacyMarker = "CTLv1"

var timestampRE = regexp.MustCompile(`^(\d{1,3}):(\d{1,2})\.(\d)(?:\s+|$)`)

// ParseError describes one skipped line or dropped token.
type ParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s (%q)", e.Line, e.Reason, e.Text)
}

func (e *ParseError) Unwrap() error {
	return types.ErrParse
}

type Parser struct {
	logger       *zap.Logger
	legacyMarker string
}

type Option func(*Parser)

// WithLegacyMarker overrides the header marker that enables the legacy
// address remap. An empty marker disables detection.
func WithLegacyMarker(marker string) Option {
	return func(p *Parser) {
		p.legacyMarker = marker
	}
}

func NewParser(logger *zap.Logger, opts ...Option) *Parser {
	p := &Parser{
		logger:       logger,
		legacyMarker: DefaultLegacyMarker,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile reads and parses a script file. Only I/O failures are
// returned; malformed content is logged and recorded in Script.Issues.
func (p *Parser) ParseFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", path, err)
	}

	s := p.Parse(string(data))

	p.logger.Info("Script loaded",
		zap.String("path", path),
		zap.Int("lines", s.Len()),
		zap.Uint64("duration_ms", s.TotalDurationMs()),
		zap.Bool("legacy", s.Legacy),
		zap.Int("issues", len(s.Issues)))

	return s, nil
}

// Parse turns script text into a Script. It never fails.
func (p *Parser) Parse(text string) *Script {
	text = strings.TrimPrefix(text, "\uFEFF")

	header := findHeader(text)
	legacy := p.legacyMarker != "" && strings.Contains(header, p.legacyMarker)
	if legacy {
		p.logger.Info("Legacy script detected, remapping addresses",
			zap.String("header", header))
		text = RemapLegacy(text)
	}

	var (
		lines      []Line
		issues     []*ParseError
		seenHeader bool
	)

	report := func(e *ParseError) {
		issues = append(issues, e)
		p.logger.Warn("Script parse issue",
			zap.Int("line", e.Line),
			zap.String("text", e.Text),
			zap.String("reason", e.Reason))
	}

	for i, raw := range strings.Split(text, "\n") {
		number := i + 1
		line := strings.TrimSpace(raw)

		if line == "" {
			continue
		}
		if strings.Contains(strings.ToLower(line), "/b") {
			continue
		}

		m := timestampRE.FindStringSubmatch(line)
		if m == nil {
			if !seenHeader && len(lines) == 0 && line == header {
				seenHeader = true
				continue
			}
			report(&ParseError{Line: number, Text: line, Reason: "missing MM:SS.T timestamp"})
			continue
		}

		timeMs, err := timestampMs(m[1], m[2], m[3])
		if err != nil {
			report(&ParseError{Line: number, Text: line, Reason: err.Error()})
			continue
		}

		rest := strings.TrimSpace(line[len(m[0]):])

		if strings.Contains(rest, blankCue) {
			lines = append(lines, Line{TimeMs: timeMs, IsBlank: true, Source: number})
			continue
		}

		var cmds []Command
		for _, token := range strings.Fields(rest) {
			cmd, err := ParseCommand(token)
			if err != nil {
				report(&ParseError{Line: number, Text: token, Reason: err.Error()})
				continue
			}
			cmds = append(cmds, cmd)
		}

		if len(cmds) == 0 {
			report(&ParseError{Line: number, Text: line, Reason: "no valid commands"})
			continue
		}

		lines = append(lines, Line{TimeMs: timeMs, Commands: cmds, Source: number})
	}

	s := newScript(lines)
	s.Header = header
	s.Legacy = legacy
	s.Issues = issues
	return s
}

// findHeader returns the first non-empty line when it is not a timed line.
func findHeader(text string) string {
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if timestampRE.MatchString(line) {
			return ""
		}
		return line
	}
	return ""
}

func timestampMs(min, sec, decisec string) (uint64, error) {
	m, _ := strconv.ParseUint(min, 10, 64)
	s, _ := strconv.ParseUint(sec, 10, 64)
	d, _ := strconv.ParseUint(decisec, 10, 64)
	if s >= 60 {
		return 0, fmt.Errorf("seconds out of range: %d", s)
	}
	return m*60000 + s*1000 + d*100, nil
}
