package scanner

import (
	"fmt"
	"strings"
	"testing"
)

// generateSection builds a section body of roughly n paragraphs with a
// shortcode in every tenth one, cycling through the bracket encodings.
func generateSection(n int) string {
	encodings := DefaultEncodings()
	var b strings.Builder
	for i := range n {
		if i%10 == 0 {
			enc := encodings[(i/10)%len(encodings)]
			fmt.Fprintf(&b, "<p>%stable id='table-%d'%s</p>", enc.Open, i, enc.Close)
			continue
		}
		fmt.Fprintf(&b, "<p>Step %d: open the form, fill it in and press <b>Submit</b>.</p>", i)
	}
	return b.String()
}

func BenchmarkHasTokens(b *testing.B) {
	sizes := []int{10, 100, 1000}
	s := New()
	for _, size := range sizes {
		markup := generateSection(size)
		b.Run(fmt.Sprintf("paragraphs-%d", size), func(b *testing.B) {
			b.SetBytes(int64(len(markup)))
			for range b.N {
				s.HasTokens(markup)
			}
		})
	}
}

func BenchmarkHasTokensNoMatch(b *testing.B) {
	s := New()
	markup := strings.Repeat("<p>Nothing to see here, [just] brackets &#91;and&#93; entities.</p>", 500)
	b.SetBytes(int64(len(markup)))

	b.ResetTimer()
	for range b.N {
		s.HasTokens(markup)
	}
}

func BenchmarkExtractAndRewrite(b *testing.B) {
	sizes := []int{10, 100, 1000}
	s := New()
	for _, size := range sizes {
		markup := generateSection(size)
		b.Run(fmt.Sprintf("paragraphs-%d", size), func(b *testing.B) {
			b.SetBytes(int64(len(markup)))
			b.ReportAllocs()
			for range b.N {
				s.ExtractAndRewrite(markup)
			}
		})
	}
}

func BenchmarkExtractAndRewriteParallel(b *testing.B) {
	s := New()
	markup := generateSection(200)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			s.ExtractAndRewrite(markup)
		}
	})
}
