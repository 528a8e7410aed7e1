package media

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("PrepareImage", func() {
	When("the image is already a format providers accept", func() {
		It("returns it unchanged", func() {
			data, mimeType, converted, err := PrepareImage(pngHeader, "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeFalse())
			Expect(mimeType).To(Equal("image/png"))
			Expect(data).To(Equal(pngHeader))
		})
	})

	When("HEIC data cannot be decoded", func() {
		It("returns a conversion error", func() {
			_, _, _, err := PrepareImage([]byte("not really heic"), "image/heic")
			Expect(err).To(MatchError(ContainSubstring("converting HEIC to image")))
		})
	})
})

var _ = Describe("isHEICFormat", func() {
	It("recognises the heic brand", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00"))).To(BeTrue())
	})

	It("recognises the mif1 brand", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypmif1\x00\x00\x00\x00"))).To(BeTrue())
	})

	It("rejects other ftyp brands", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypisom\x00\x00\x00\x00"))).To(BeFalse())
	})

	It("rejects short data", func() {
		Expect(isHEICFormat([]byte("ftyp"))).To(BeFalse())
	})
})
