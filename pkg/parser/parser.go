package parser

import (
	"fmt"
	"regexp"
)

// DefaultPattern extracts the upstream pool label and the response status
// from an access-log line such as:
//
//	... pool=blue release=v1.2 upstream=10.0.0.4:80 status=502 ...
const DefaultPattern = `pool=(\w+).*status=(\d+)`

// Observation is the pair of fields extracted from one log line.
type Observation struct {
	Pool   string `json:"pool"`
	Status string `json:"status"`
}

// Parser extracts observations from raw log lines.
type Parser struct {
	re        *regexp.Regexp
	poolIdx   int
	statusIdx int
}

var defaultParser = MustNew(DefaultPattern)

// New compiles a parser from pattern. The pattern must have exactly two
// capture groups. Groups named "pool" and "status" are used by name;
// otherwise the first group is the pool and the second the status.
func New(pattern string) (*Parser, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	if re.NumSubexp() != 2 {
		return nil, fmt.Errorf("pattern %q must have exactly 2 capture groups, got %d", pattern, re.NumSubexp())
	}

	p := &Parser{re: re, poolIdx: 1, statusIdx: 2}
	if i := re.SubexpIndex("pool"); i > 0 {
		p.poolIdx = i
		p.statusIdx = 3 - i
	}
	if i := re.SubexpIndex("status"); i > 0 {
		p.statusIdx = i
		p.poolIdx = 3 - i
	}
	return p, nil
}

// MustNew is like New but panics on an invalid pattern.
func MustNew(pattern string) *Parser {
	p, err := New(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// Parse extracts an observation from line. The second return value is false
// when the line does not carry both fields; such lines are skipped by callers.
func (p *Parser) Parse(line string) (Observation, bool) {
	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return Observation{}, false
	}
	pool, status := m[p.poolIdx], m[p.statusIdx]
	if pool == "" || status == "" {
		return Observation{}, false
	}
	return Observation{Pool: pool, Status: status}, true
}

// Pattern returns the source pattern of the parser.
func (p *Parser) Pattern() string {
	return p.re.String()
}

// Parse extracts an observation using DefaultPattern.
func Parse(line string) (Observation, bool) {
	return defaultParser.Parse(line)
}
