package translate_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/a64dbt/translate"
)

func cached(pc uint64, n int) *translate.CachedBlock {
	return &translate.CachedBlock{
		Block:  translate.NewBlock(pc),
		Result: translate.Result{PC: pc, Instructions: n, Next: pc + uint64(4*n)},
	}
}

var _ = Describe("BlockCache", func() {
	var c *translate.BlockCache

	BeforeEach(func() {
		c = translate.NewBlockCache(1, 2)
	})

	It("should miss on a cold cache", func() {
		_, ok := c.Get(0x1000)
		Expect(ok).To(BeFalse())
		Expect(c.Stats().Misses).To(Equal(uint64(1)))
	})

	It("should return stored blocks", func() {
		cb := cached(0x1000, 3)
		c.Put(0x1000, cb)

		got, ok := c.Get(0x1000)
		Expect(ok).To(BeTrue())
		Expect(got).To(BeIdenticalTo(cb))
		Expect(c.Stats().Hits).To(Equal(uint64(1)))
	})

	It("should evict the least recently used block", func() {
		c.Put(0x1000, cached(0x1000, 1))
		c.Put(0x2000, cached(0x2000, 1))
		c.Get(0x1000)
		c.Put(0x3000, cached(0x3000, 1))

		_, ok := c.Get(0x2000)
		Expect(ok).To(BeFalse())
		_, ok = c.Get(0x1000)
		Expect(ok).To(BeTrue())
		_, ok = c.Get(0x3000)
		Expect(ok).To(BeTrue())
		Expect(c.Stats().Evictions).To(Equal(uint64(1)))
	})

	It("should replace a block stored twice at the same PC", func() {
		c.Put(0x1000, cached(0x1000, 1))
		newer := cached(0x1000, 2)
		c.Put(0x1000, newer)

		got, _ := c.Get(0x1000)
		Expect(got).To(BeIdenticalTo(newer))
		Expect(c.Stats().Evictions).To(BeZero())
	})

	It("should invalidate only overlapping blocks", func() {
		c.Put(0x1000, cached(0x1000, 4)) // [0x1000, 0x1010)
		c.Put(0x1010, cached(0x1010, 4)) // [0x1010, 0x1020)

		c.Invalidate(0x100C, 4)

		_, ok := c.Get(0x1000)
		Expect(ok).To(BeFalse())
		_, ok = c.Get(0x1010)
		Expect(ok).To(BeTrue())
		Expect(c.Stats().Invalidations).To(Equal(uint64(1)))
	})

	It("should size itself from the configuration", func() {
		c = translate.NewBlockCacheFromConfig(translate.DefaultConfig())
		for pc := uint64(0); pc < 1024*4; pc += 4 {
			c.Put(pc, cached(pc, 1))
		}
		Expect(c.Stats().Evictions).To(BeZero())

		c.Reset()
		_, ok := c.Get(0)
		Expect(ok).To(BeFalse())
	})
})
