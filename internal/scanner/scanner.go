// Package scanner detects table shortcodes inside HTML markup and rewrites
// them into mount elements.
//
// A shortcode looks like [table id='pick-table-1'] but reaches us through
// rich-text editors that entity-encode brackets, so the same logical token
// can appear as &#91;table id=...&#93; or &lsqb;table id=...&rsqb;. A single
// parser handles all of them, parameterised by a list of Encodings. Adding an
// encoding is a data change, not a code change.
//
// Scanning is stateless. Every call examines only its own input, so a
// Scanner is safe for concurrent use by any number of section pipelines.
package scanner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// DefaultTag is the shortcode tag name recognised by New.
const DefaultTag = "table"

// Encoding describes one textual representation of the shortcode brackets.
type Encoding struct {
	// Name identifies the encoding in diagnostics.
	Name string
	// Open is the opening bracket, e.g. "[" or "&#91;".
	Open string
	// Close is the closing bracket, e.g. "]" or "&#93;".
	Close string
}

// DefaultEncodings returns the literal, numeric-entity and named-entity
// bracket encodings, in the order they are applied.
func DefaultEncodings() []Encoding {
	return []Encoding{
		{Name: "literal", Open: "[", Close: "]"},
		{Name: "numeric", Open: "&#91;", Close: "&#93;"},
		{Name: "named", Open: "&lsqb;", Close: "&rsqb;"},
	}
}

// idAttr locates the id attribute inside a shortcode body. The value may be
// wrapped in a plain or entity quote; the captured id never contains quotes,
// brackets, entity markers, angle brackets or whitespace.
var idAttr = regexp.MustCompile(`(?i)\bid\s*=\s*(?:["']|&quot;|&#34;|&#39;|&apos;)?([^'"&<>\[\]\s]+)`)

// Occurrence is a single shortcode found in a markup string.
type Occurrence struct {
	Encoding string
	ID       string
	Start    int
	End      int
	Text     string
}

// Result is the outcome of ExtractAndRewrite.
type Result struct {
	// Markup is the rewritten markup, or the input unchanged when nothing
	// matched.
	Markup string
	// IDs holds every distinct id that received a mount element, in the
	// order each id was first discovered.
	IDs []string
	// Changed reports whether any shortcode was replaced.
	Changed bool
}

// Scanner finds and rewrites shortcodes for a fixed tag and encoding list.
type Scanner struct {
	tag       string
	encodings []Encoding
}

// New creates a Scanner for the "table" tag. With no encodings it uses
// DefaultEncodings.
func New(encodings ...Encoding) *Scanner {
	return NewWithTag(DefaultTag, encodings...)
}

// NewWithTag creates a Scanner for an arbitrary tag name.
func NewWithTag(tag string, encodings ...Encoding) *Scanner {
	if len(encodings) == 0 {
		encodings = DefaultEncodings()
	}
	return &Scanner{
		tag:       asciiLower(tag),
		encodings: append([]Encoding(nil), encodings...),
	}
}

// Encodings returns the encodings in application order.
func (s *Scanner) Encodings() []Encoding {
	return append([]Encoding(nil), s.encodings...)
}

// HasTokens reports whether markup contains at least one well-formed
// shortcode in any encoding. It stops at the first match.
func (s *Scanner) HasTokens(markup string) bool {
	for _, enc := range s.encodings {
		if len(s.find(enc, markup, 1)) > 0 {
			return true
		}
	}
	return false
}

// Scan returns every well-formed shortcode in markup, encoding by encoding.
// Offsets refer to the input string.
func (s *Scanner) Scan(markup string) []Occurrence {
	var out []Occurrence
	for _, enc := range s.encodings {
		out = append(out, s.find(enc, markup, -1)...)
	}
	return out
}

// ExtractAndRewrite replaces every shortcode with a mount element keyed by
// its id. Encodings are applied one after the other over the progressively
// rewritten string.
//
// When the same id appears more than once the last occurrence rewritten
// keeps the mount element and earlier ones are dropped, so each id ends up
// with exactly one mount. Later encodings count as later.
func (s *Scanner) ExtractAndRewrite(markup string) Result {
	m := newMarker(markup)
	current := markup
	var mounts []string // mount sequence number -> id

	for _, enc := range s.encodings {
		occs := s.find(enc, current, -1)
		if len(occs) == 0 {
			continue
		}

		var b strings.Builder
		b.Grow(len(current))
		last := 0
		for _, occ := range occs {
			b.WriteString(current[last:occ.Start])
			b.WriteString(m.token(len(mounts)))
			mounts = append(mounts, occ.ID)
			last = occ.End
		}
		b.WriteString(current[last:])
		current = b.String()
	}

	if len(mounts) == 0 {
		return Result{Markup: markup}
	}

	winner := make(map[string]int, len(mounts))
	for seq, id := range mounts {
		winner[id] = seq
	}

	survivors := make(map[int]bool, len(winner))
	final := m.replace(current, func(seq int) string {
		if seq < 0 || seq >= len(mounts) {
			return ""
		}
		id := mounts[seq]
		if winner[id] != seq {
			// Superseded duplicate. The comment keeps the surrounding text
			// from fusing into a new shortcode.
			return "<!---->"
		}
		survivors[seq] = true
		return MountElement(id)
	})

	seen := make(map[string]bool, len(winner))
	ids := make([]string, 0, len(winner))
	for _, id := range mounts {
		if seen[id] || !survivors[winner[id]] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	return Result{Markup: final, IDs: ids, Changed: true}
}

// MountElement returns the element that replaces a shortcode.
func MountElement(id string) string {
	return fmt.Sprintf(`<div id="%s"></div>`, html.EscapeString(id))
}

// find returns up to limit occurrences of one encoding (all when limit < 0).
// A candidate whose body, up to the first closing bracket, has no id is left
// alone and scanning resumes just after its opening bracket.
func (s *Scanner) find(enc Encoding, markup string, limit int) []Occurrence {
	if enc.Open == "" || enc.Close == "" {
		return nil
	}

	lower := asciiLower(markup)
	open := asciiLower(enc.Open) + s.tag
	closing := asciiLower(enc.Close)

	var out []Occurrence
	pos := 0
	for pos < len(lower) && (limit < 0 || len(out) < limit) {
		i := strings.Index(lower[pos:], open)
		if i < 0 {
			break
		}
		start := pos + i
		after := start + len(open)

		if after < len(markup) && isWordByte(markup[after]) {
			pos = start + 1
			continue
		}

		j := strings.Index(lower[after:], closing)
		if j < 0 {
			break
		}
		end := after + j + len(closing)

		match := idAttr.FindStringSubmatch(markup[after : after+j])
		if match == nil {
			pos = start + 1
			continue
		}

		out = append(out, Occurrence{
			Encoding: enc.Name,
			ID:       match[1],
			Start:    start,
			End:      end,
			Text:     markup[start:end],
		})
		pos = end
	}

	return out
}

// marker produces placeholder tokens that cannot collide with the input.
type marker struct {
	open string
}

const markerClose = "\x00"

func newMarker(markup string) marker {
	for k := 0; ; k++ {
		open := "\x00mount" + strconv.Itoa(k) + ":"
		if !strings.Contains(markup, open) {
			return marker{open: open}
		}
	}
}

func (m marker) token(seq int) string {
	return m.open + strconv.Itoa(seq) + markerClose
}

func (m marker) replace(s string, fn func(seq int) string) string {
	var b strings.Builder
	b.Grow(len(s))
	for {
		i := strings.Index(s, m.open)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		rest := s[i+len(m.open):]
		j := strings.Index(rest, markerClose)
		if j < 0 {
			b.WriteString(rest)
			return b.String()
		}
		seq, err := strconv.Atoi(rest[:j])
		if err != nil {
			seq = -1
		}
		b.WriteString(fn(seq))
		s = rest[j+len(markerClose):]
	}
}

// asciiLower lower-cases ASCII letters only, so byte offsets in the result
// line up with the input.
func asciiLower(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 'A' && c <= 'Z' {
			b := []byte(s)
			for k := i; k < len(b); k++ {
				if b[k] >= 'A' && b[k] <= 'Z' {
					b[k] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
