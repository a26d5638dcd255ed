package errors

import (
	"fmt"
	"testing"
)

func BenchmarkCollector_Add(b *testing.B) {
	collector := NewCollector()

	b.ResetTimer()
	for i := range b.N {
		collector.Add(NewBuildError(fmt.Sprintf("table-%d", i), fmt.Errorf("boom")))
	}
}

func BenchmarkCollector_Errors(b *testing.B) {
	collector := NewCollector()
	for i := range 1000 {
		collector.Add(NewMissingEntryError(fmt.Sprintf("table-%d", i)))
	}

	b.ResetTimer()
	for range b.N {
		collector.Errors()
	}
}

func BenchmarkCollector_ByType(b *testing.B) {
	collector := NewCollector()
	for i := range 1000 {
		if i%2 == 0 {
			collector.Add(NewMissingEntryError(fmt.Sprintf("table-%d", i)))
		} else {
			collector.Add(NewBuildError(fmt.Sprintf("table-%d", i), fmt.Errorf("boom")))
		}
	}

	b.ResetTimer()
	for range b.N {
		collector.ByType(ErrorTypeBuild)
	}
}

func BenchmarkCollector_AddParallel(b *testing.B) {
	collector := NewCollector()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			collector.Add(NewMissingEntryError("table"))
		}
	})
}

func BenchmarkResolveError_Error(b *testing.B) {
	err := NewBuildError("pick-table-1", fmt.Errorf("timeout")).WithSection("pick-content")

	b.ResetTimer()
	for range b.N {
		_ = err.Error()
	}
}
