package scanner

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasTokens(t *testing.T) {
	s := New()

	tests := []struct {
		name   string
		markup string
		want   bool
	}{
		{"literal single quotes", `<p>[table id='pick-table-1']</p>`, true},
		{"literal double quotes", `<p>[table id="pick-table-1"]</p>`, true},
		{"literal unquoted", `<p>[table id=pick-table-1]</p>`, true},
		{"literal entity quote", `<p>[table id=&quot;pick-table-1&quot;]</p>`, true},
		{"numeric entities", `<p>&#91;table id='feed-table-1'&#93;</p>`, true},
		{"named entities", `<p>&lsqb;table id=&quot;sani-table-1&quot;&rsqb;</p>`, true},
		{"upper case", `<p>[TABLE ID='x']</p>`, true},
		{"extra attributes", `[table class="wide" id='x' striped]`, true},
		{"no tokens", `<p>Hello world</p>`, false},
		{"empty", ``, false},
		{"different tag", `[tables id='x']`, false},
		{"missing id", `[table class='x']`, false},
		{"unterminated", `[table id='x'`, false},
		{"mismatched encodings", `&#91;table id='x']`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.HasTokens(tt.markup))
		})
	}
}

func TestExtractAndRewriteConcreteScenario(t *testing.T) {
	s := New()

	res := s.ExtractAndRewrite(`<p>[table id='pick-table-1']</p>`)

	assert.True(t, res.Changed)
	assert.Equal(t, []string{"pick-table-1"}, res.IDs)
	assert.Equal(t, `<p><div id="pick-table-1"></div></p>`, res.Markup)
}

func TestExtractAndRewriteEachEncoding(t *testing.T) {
	s := New()

	tests := []struct {
		name   string
		markup string
		id     string
	}{
		{"literal", `a [table id='t1'] b`, "t1"},
		{"numeric", `a &#91;table id=&quot;t2&quot;&#93; b`, "t2"},
		{"named", `a &lsqb;table id="t3"&rsqb; b`, "t3"},
		{"numeric apostrophe entity", `a &#91;table id=&#39;t4&#39;&#93; b`, "t4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.ExtractAndRewrite(tt.markup)
			require.True(t, res.Changed)
			assert.Equal(t, []string{tt.id}, res.IDs)
			assert.Equal(t, `a `+MountElement(tt.id)+` b`, res.Markup)
			assert.Equal(t, 1, strings.Count(res.Markup, `id="`+tt.id+`"`))
		})
	}
}

func TestExtractAndRewriteMultipleTokens(t *testing.T) {
	s := New()

	markup := `<h2>Intro</h2>[table id='a']<p>mid</p>&#91;table id='b'&#93;<p>end</p>&lsqb;table id='c'&rsqb;[table id='d']`
	res := s.ExtractAndRewrite(markup)

	require.True(t, res.Changed)
	assert.Equal(t, []string{"a", "d", "b", "c"}, res.IDs)
	assert.Equal(t,
		`<h2>Intro</h2><div id="a"></div><p>mid</p><div id="b"></div><p>end</p><div id="c"></div><div id="d"></div>`,
		res.Markup)
}

func TestExtractAndRewriteZeroTokensIsIdentity(t *testing.T) {
	s := New()

	for _, markup := range []string{
		``,
		`<p>plain</p>`,
		`[table class='no-id']`,
		`&#91;table&#93;`,
		`[ table id='spaced']`,
	} {
		res := s.ExtractAndRewrite(markup)
		assert.False(t, res.Changed, markup)
		assert.Empty(t, res.IDs, markup)
		assert.Equal(t, markup, res.Markup, markup)
	}
}

func TestExtractAndRewriteIsIdempotent(t *testing.T) {
	s := New()

	markup := `[table id='a'] &#91;table id='b'&#93; &lsqb;table id='a'&rsqb; [table nope]`
	first := s.ExtractAndRewrite(markup)
	require.True(t, first.Changed)

	second := s.ExtractAndRewrite(first.Markup)
	assert.False(t, second.Changed)
	assert.Equal(t, first.Markup, second.Markup)
}

func TestMalformedTokenLeftUntouched(t *testing.T) {
	s := New()

	markup := `<p>[table class='x']</p><p>[table id='ok']</p>`
	res := s.ExtractAndRewrite(markup)

	require.True(t, res.Changed)
	assert.Equal(t, []string{"ok"}, res.IDs)
	assert.Equal(t, `<p>[table class='x']</p><p><div id="ok"></div></p>`, res.Markup)
}

func TestTokenEndsAtFirstClosingMarker(t *testing.T) {
	s := New()

	res := s.ExtractAndRewrite(`[table id='a' note='x'] tail]`)
	assert.Equal(t, `<div id="a"></div> tail]`, res.Markup)
}

func TestDuplicateIDCollapsesToLastMatch(t *testing.T) {
	s := New()

	markup := `<p>[table id='dup']</p><p>&#91;table id='dup'&#93;</p>`
	res := s.ExtractAndRewrite(markup)

	require.True(t, res.Changed)
	assert.Equal(t, []string{"dup"}, res.IDs)
	assert.Equal(t, 1, strings.Count(res.Markup, `id="dup"`))
	assert.Equal(t, `<p><!----></p><p><div id="dup"></div></p>`, res.Markup)
}

func TestDuplicateIDSameEncoding(t *testing.T) {
	s := New()

	res := s.ExtractAndRewrite(`[table id='x'][table id='x']`)
	assert.Equal(t, []string{"x"}, res.IDs)
	assert.Equal(t, `<!----><div id="x"></div>`, res.Markup)
}

func TestDroppedDuplicateDoesNotFuseNeighbours(t *testing.T) {
	s := New()

	// Removing the first copy of "a" outright would join "[tab" and
	// "le id='b']" into a new shortcode.
	markup := `[tab[table id='a']le id='b'] [table id='a']`
	res := s.ExtractAndRewrite(markup)

	require.True(t, res.Changed)
	assert.Equal(t, []string{"a"}, res.IDs)
	assert.Equal(t, `[tab<!---->le id='b'] <div id="a"></div>`, res.Markup)
	assert.False(t, s.HasTokens(res.Markup))

	again := s.ExtractAndRewrite(res.Markup)
	assert.False(t, again.Changed)
	assert.Equal(t, res.Markup, again.Markup)
}

func TestCaptureStopsAtEntityQuote(t *testing.T) {
	s := New()

	res := s.ExtractAndRewrite(`[table id=&quot;quoted&quot;]`)
	assert.Equal(t, []string{"quoted"}, res.IDs)
}

func TestScanReportsOffsets(t *testing.T) {
	s := New()

	markup := `xx[table id='a']yy&lsqb;table id='b'&rsqb;`
	occs := s.Scan(markup)

	require.Len(t, occs, 2)
	assert.Equal(t, "literal", occs[0].Encoding)
	assert.Equal(t, "a", occs[0].ID)
	assert.Equal(t, `[table id='a']`, markup[occs[0].Start:occs[0].End])
	assert.Equal(t, "named", occs[1].Encoding)
	assert.Equal(t, occs[1].Text, markup[occs[1].Start:occs[1].End])
}

func TestCustomEncodingAndTag(t *testing.T) {
	s := NewWithTag("chart", Encoding{Name: "curly", Open: "{{", Close: "}}"})

	assert.False(t, s.HasTokens(`[table id='a']`))

	res := s.ExtractAndRewrite(`<p>{{chart id="sales"}}</p>`)
	assert.Equal(t, []string{"sales"}, res.IDs)
	assert.Equal(t, `<p><div id="sales"></div></p>`, res.Markup)
	assert.Len(t, s.Encodings(), 1)
}

func TestMarkerCollisionWithInput(t *testing.T) {
	s := New()

	markup := "\x00mount0:0\x00 [table id='a']"
	res := s.ExtractAndRewrite(markup)

	assert.Equal(t, []string{"a"}, res.IDs)
	assert.Equal(t, "\x00mount0:0\x00 "+MountElement("a"), res.Markup)
}

func TestNonASCIIOffsets(t *testing.T) {
	s := New()

	res := s.ExtractAndRewrite(`İstanbul [TABLE id='i'] ünïcödé`)
	assert.Equal(t, `İstanbul <div id="i"></div> ünïcödé`, res.Markup)
}

// Matching carries no cursor between calls, so interleaved concurrent use
// over different inputs must always see every token.
func TestScannerIsStatelessAcrossCalls(t *testing.T) {
	s := New()

	inputs := []string{
		`[table id='one']`,
		`<p>no tokens</p>`,
		`&#91;table id='two'&#93;`,
	}

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := inputs[i%len(inputs)]
			want := i%len(inputs) != 1
			assert.Equal(t, want, s.HasTokens(in))
			assert.Equal(t, want, s.ExtractAndRewrite(in).Changed)
		}(i)
	}
	wg.Wait()
}
