package registry

import (
	"fmt"
	"testing"

	"github.com/conneroisu/sectionloader/internal/types"
)

func benchSpecs(n int) []TokenSpec {
	specs := make([]TokenSpec, n)
	for i := range specs {
		specs[i] = TokenSpec{
			ID:         fmt.Sprintf("table-%d", i),
			SourceName: "Master Table",
			Filters:    []types.Filter{{Column: "Title", Operator: types.OperatorEq, Value: fmt.Sprintf("'row %d'", i)}},
		}
	}
	return specs
}

func BenchmarkNew(b *testing.B) {
	specs := benchSpecs(500)

	b.ResetTimer()
	for range b.N {
		if _, err := New(specs...); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGet(b *testing.B) {
	reg := MustNew(benchSpecs(500)...)

	b.ResetTimer()
	for i := range b.N {
		reg.Get(fmt.Sprintf("table-%d", i%500))
	}
}

func BenchmarkGetParallel(b *testing.B) {
	reg := MustNew(benchSpecs(500)...)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			reg.Get("table-" + fmt.Sprint(i%500))
			i++
		}
	})
}
