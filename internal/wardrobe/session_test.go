package wardrobe

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/chromacloset/chromacloset/internal/extraction"
	"github.com/chromacloset/chromacloset/internal/imaging"
)

var _ = Describe("ReviewSession", func() {
	var (
		session *ReviewSession
		ids     *seqIDGenerator
	)

	twoItems := extraction.Result{Items: []extraction.Item{
		{Category: "top", Subcategory: "t-shirt", Confidence: 0.9},
		{Category: "shoes", Subcategory: "sneakers", Confidence: 0.8},
	}}

	BeforeEach(func() {
		session = NewReviewSession("tok", extraction.GarmentDetection)
		ids = &seqIDGenerator{prefix: "cand"}
	})

	advanceToReviewing := func() {
		Expect(session.BeginCapture()).To(Succeed())
		Expect(session.BeginPreview(imaging.Encoded{Data: []byte("img"), MIMEType: "image/jpeg"})).To(Succeed())
		Expect(session.CompleteExtraction(twoItems, ids.Generate)).To(Succeed())
	}

	It("should start idle", func() {
		Expect(session.State()).To(Equal(StateIdle))
	})

	Describe("the happy path", func() {
		It("should walk idle -> capturing -> previewing -> reviewing -> committed", func() {
			Expect(session.BeginCapture()).To(Succeed())
			Expect(session.State()).To(Equal(StateCapturing))

			Expect(session.BeginPreview(imaging.Encoded{Data: []byte("img")})).To(Succeed())
			Expect(session.State()).To(Equal(StatePreviewing))

			Expect(session.CompleteExtraction(twoItems, ids.Generate)).To(Succeed())
			Expect(session.State()).To(Equal(StateReviewing))
			Expect(session.Candidates()).To(HaveLen(2))

			items, err := session.Commit()
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(2))
			Expect(session.State()).To(Equal(StateCommitted))
		})
	})

	Describe("illegal transitions", func() {
		It("should refuse to commit from idle", func() {
			_, err := session.Commit()
			Expect(err).To(HaveOccurred())
		})

		It("should refuse to preview before capturing", func() {
			Expect(session.BeginPreview(imaging.Encoded{})).NotTo(Succeed())
		})

		It("should refuse a second capture while previewing", func() {
			Expect(session.BeginCapture()).To(Succeed())
			Expect(session.BeginPreview(imaging.Encoded{Data: []byte("img")})).To(Succeed())
			Expect(session.BeginCapture()).NotTo(Succeed())
		})

		It("should refuse to remove items outside reviewing", func() {
			Expect(session.RemoveCandidate("cand-1")).NotTo(Succeed())
		})
	})

	Describe("zero items detected", func() {
		It("should terminate with the distinct no-items message", func() {
			Expect(session.BeginCapture()).To(Succeed())
			Expect(session.BeginPreview(imaging.Encoded{Data: []byte("img")})).To(Succeed())
			Expect(session.CompleteExtraction(extraction.Result{Items: []extraction.Item{}}, ids.Generate)).To(Succeed())

			Expect(session.State()).To(Equal(StateDiscarded))
			Expect(session.Message()).To(Equal(NoItemsMessage))
		})

		It("should make a zero-item commit unreachable", func() {
			Expect(session.BeginCapture()).To(Succeed())
			Expect(session.BeginPreview(imaging.Encoded{Data: []byte("img")})).To(Succeed())
			Expect(session.CompleteExtraction(extraction.Result{}, ids.Generate)).To(Succeed())

			_, err := session.Commit()
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("RemoveCandidate", func() {
		BeforeEach(advanceToReviewing)

		It("should remove one staged item by identifier", func() {
			Expect(session.RemoveCandidate("cand-1")).To(Succeed())
			Expect(session.Candidates()).To(HaveLen(1))
			Expect(session.Candidates()[0].ID).To(Equal("cand-2"))
		})

		It("should fail for an unknown identifier", func() {
			Expect(session.RemoveCandidate("nope")).NotTo(Succeed())
		})

		It("should refuse to commit once every candidate is removed", func() {
			Expect(session.RemoveCandidate("cand-1")).To(Succeed())
			Expect(session.RemoveCandidate("cand-2")).To(Succeed())

			_, err := session.Commit()
			Expect(err).To(HaveOccurred())
			Expect(session.State()).To(Equal(StateReviewing))
		})
	})

	Describe("Discard", func() {
		It("should require confirmation while reviewing", func() {
			advanceToReviewing()
			Expect(session.Discard(false)).NotTo(Succeed())
			Expect(session.State()).To(Equal(StateReviewing))

			Expect(session.Discard(true)).To(Succeed())
			Expect(session.State()).To(Equal(StateDiscarded))
		})

		It("should allow abandoning a capture without confirmation", func() {
			Expect(session.BeginCapture()).To(Succeed())
			Expect(session.Discard(false)).To(Succeed())
			Expect(session.State()).To(Equal(StateDiscarded))
		})

		It("should refuse to discard a committed session", func() {
			advanceToReviewing()
			_, err := session.Commit()
			Expect(err).NotTo(HaveOccurred())
			Expect(session.Discard(true)).NotTo(Succeed())
		})
	})

	Describe("stale extraction results", func() {
		It("should discard a result landing after teardown", func() {
			Expect(session.BeginCapture()).To(Succeed())
			Expect(session.BeginPreview(imaging.Encoded{Data: []byte("img")})).To(Succeed())
			// User navigates away mid-flight.
			Expect(session.Discard(false)).To(Succeed())

			err := session.CompleteExtraction(twoItems, ids.Generate)
			Expect(err).To(HaveOccurred())
			Expect(session.Candidates()).To(BeEmpty())
			Expect(session.State()).To(Equal(StateDiscarded))
		})
	})

	Describe("FailExtraction", func() {
		It("should return the session to idle", func() {
			Expect(session.BeginCapture()).To(Succeed())
			Expect(session.BeginPreview(imaging.Encoded{Data: []byte("img")})).To(Succeed())
			Expect(session.FailExtraction()).To(Succeed())
			Expect(session.State()).To(Equal(StateIdle))
		})
	})

	Describe("CancelCapture", func() {
		It("should return the session to idle", func() {
			Expect(session.BeginCapture()).To(Succeed())
			Expect(session.CancelCapture()).To(Succeed())
			Expect(session.State()).To(Equal(StateIdle))
		})
	})
})
