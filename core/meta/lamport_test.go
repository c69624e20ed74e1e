package meta_test

import (
	"github.com/NVIDIA/swarmcore/core/meta"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Lamport", func() {
	const threshold = 50

	It("is irreflexive: Newer(x, x) is always false", func() {
		for _, x := range []uint32{0, 1, 50, 200, 255} {
			Expect(meta.Newer(x, x, threshold, 8)).To(BeFalse())
		}
	})

	It("compares within-window advances as newer, not newer backwards", func() {
		Expect(meta.Newer(40, 1, threshold, 8)).To(BeTrue())
		Expect(meta.Newer(1, 40, threshold, 8)).To(BeFalse())
	})

	It("rejects observations beyond the threshold on an active entry", func() {
		// 95 - 40 = 55 exceeds the threshold of 50.
		Expect(meta.Newer(95, 40, threshold, 8)).To(BeFalse())
	})

	It("handles wrap-around correctly: 10 is newer than 251 mod 256", func() {
		Expect(meta.Newer(10, 251, threshold, 8)).To(BeTrue())
	})

	It("satisfies the within-threshold exclusive-or property", func() {
		// For |a-b| mod 2^W <= T and a != b, exactly one direction is "newer".
		cases := [][2]uint32{{1, 40}, {251, 10}, {5, 0}, {0, 255}}
		for _, c := range cases {
			a, b := c[0], c[1]
			nab := meta.Newer(a, b, threshold, 8)
			nba := meta.Newer(b, a, threshold, 8)
			Expect(nab != nba).To(BeTrue(), "a=%d b=%d", a, b)
		}
	})

	It("rejects equal lamports as newer", func() {
		Expect(meta.Newer(1, 1, threshold, 8)).To(BeFalse())
	})

	Describe("NewLamport", func() {
		It("starts at zero and advances through Inc like any other Lamport", func() {
			l := meta.NewLamport(8)
			Expect(l.Value).To(Equal(uint32(0)))
			Expect(l.Inc().Value).To(Equal(uint32(1)))
		})
	})

	Describe("Inc", func() {
		It("wraps 8-bit lamports at 256", func() {
			l := meta.Lamport{Value: 255, Width: 8}
			Expect(l.Inc().Value).To(Equal(uint32(0)))
		})

		It("does not wrap 32-bit lamports at 256", func() {
			l := meta.Lamport{Value: 255, Width: 32}
			Expect(l.Inc().Value).To(Equal(uint32(256)))
		})

		It("produces successive self-increments deemed newer across the wrap", func() {
			l := meta.Lamport{Value: 254, Width: 8}
			prev := l
			l = l.Inc() // 255
			Expect(l.NewerThan(prev, threshold)).To(BeTrue())
			prev = l
			l = l.Inc() // wraps to 0
			Expect(l.NewerThan(prev, threshold)).To(BeTrue())
		})
	})
})
