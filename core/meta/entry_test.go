package meta_test

import (
	"github.com/NVIDIA/swarmcore/core/meta"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Entry", func() {
	const ttiMax = 255

	It("is created with tti == TTI_MAX", func() {
		e := meta.NewEntry(7, 0x01, 1, ttiMax)
		Expect(e.TTI).To(Equal(uint8(ttiMax)))
	})

	It("is active while tti > 0", func() {
		e := meta.NewEntry(7, 0x01, 1, ttiMax)
		Expect(e.Active(99)).To(BeTrue())
	})

	It("treats the owner's own entry as always active regardless of tti", func() {
		e := meta.NewEntry(7, 0x01, 1, 0)
		Expect(e.Active(7)).To(BeTrue())
		Expect(e.Active(8)).To(BeFalse())
	})

	It("saturates tti at 0 rather than underflowing", func() {
		e := meta.NewEntry(7, 0x01, 1, 1)
		e.Tick()
		Expect(e.TTI).To(Equal(uint8(0)))
		e.Tick()
		Expect(e.TTI).To(Equal(uint8(0)))
	})

	It("resets the timer and clears any removal countdown", func() {
		e := meta.NewEntry(7, 0x01, 1, ttiMax)
		e.StartRemovalTimer(10)
		e.ResetTimer(ttiMax)
		Expect(e.TTI).To(Equal(uint8(ttiMax)))
		Expect(e.HasTTR).To(BeFalse())
	})

	It("increments its own lamport modulo 2^width", func() {
		e := meta.NewEntry(7, 0x01, 255, ttiMax)
		e.IncrementLamport(8)
		Expect(e.Lamport).To(Equal(uint32(0)))
	})

	It("counts down ttr once started, saturating at 0", func() {
		e := meta.NewEntry(7, 0x01, 1, 0)
		e.StartRemovalTimer(2)
		e.TickTTR()
		Expect(e.TTR).To(Equal(uint8(1)))
		e.TickTTR()
		e.TickTTR()
		Expect(e.TTR).To(Equal(uint8(0)))
	})
})
