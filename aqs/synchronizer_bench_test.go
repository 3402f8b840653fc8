package aqs

import (
	"testing"
)

// BenchmarkAcquireRelease_Uncontended measures the single-CAS fast path.
func BenchmarkAcquireRelease_Uncontended(b *testing.B) {
	s := New(mutexPolicy{})
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Acquire(1)
		s.Release(1)
	}
}

// BenchmarkAcquireRelease_Contended measures queueing and handoff.
func BenchmarkAcquireRelease_Contended(b *testing.B) {
	s := New(mutexPolicy{})
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			s.Acquire(1)
			s.Release(1)
		}
	})
}

// BenchmarkAcquireReleaseShared_Contended measures shared propagation.
func BenchmarkAcquireReleaseShared_Contended(b *testing.B) {
	s := New(permitPolicy{})
	s.SetState(2)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			s.AcquireShared(1)
			s.ReleaseShared(1)
		}
	})
}
