package wardrobe

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/chromacloset/chromacloset/internal/capture"
	"github.com/chromacloset/chromacloset/internal/extraction"
	"github.com/chromacloset/chromacloset/internal/imaging"
)

// closetPhoto produces an encoded PNG of the given dimensions.
func closetPhoto(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x += 50 {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: 30, G: 58, B: 95, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

var _ = Describe("Service", func() {
	var (
		store     *mockStore
		extractor *mockExtractor
		images    *mockImageStorage
		camera    *mockCamera
		service   *Service
	)

	detection := extraction.Result{Items: []extraction.Item{
		{
			Category: "top", Subcategory: "t-shirt", Brand: "Unknown",
			DominantColorHex: "#1e3a5f", ColorFamily: "Blue", ColorName: "Navy",
			PatternType: "solid", Confidence: 0.95,
			Box: &extraction.Box{YMin: 100, XMin: 100, YMax: 500, XMax: 400},
		},
		{
			Category: "shoes", Subcategory: "sneakers", Brand: "Nike",
			DominantColorHex: "#f5f5f0", ColorFamily: "Neutral", ColorName: "Cream",
			PatternType: "solid", Confidence: 0.88,
			Box: &extraction.Box{YMin: 600, XMin: 200, YMax: 900, XMax: 500},
		},
	}}

	BeforeEach(func() {
		store = newMockStore()
		extractor = &mockExtractor{result: detection}
		images = newMockImageStorage()
		camera = &mockCamera{frame: capture.Frame{Data: closetPhoto(400, 300), ContentType: "image/png"}}
		service = NewServiceWithDeps(store, extractor, images, camera,
			&seqIDGenerator{prefix: "id"},
			&fixedTimeSource{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		)
	})

	upload := func(data []byte) *capture.UploadSource {
		return capture.NewUploadSource(data, "image/png", "closet.png")
	}

	Describe("StartScan", func() {
		It("should stage extracted items for review", func() {
			status, err := service.StartScan(context.Background(), upload(closetPhoto(400, 300)), extraction.GarmentDetection)
			Expect(err).NotTo(HaveOccurred())

			Expect(status.State).To(Equal(StateReviewing))
			Expect(status.Candidates).To(HaveLen(2))
			Expect(status.Candidates[0].Item.Subcategory).To(Equal("t-shirt"))
		})

		It("should downscale a 2000x1000 photo to the spatial cap before extraction", func() {
			_, err := service.StartScan(context.Background(), upload(closetPhoto(2000, 1000)), extraction.GarmentDetection)
			Expect(err).NotTo(HaveOccurred())

			Expect(extractor.lastImage.Width).To(Equal(imaging.MaxDimSpatial))
			Expect(extractor.lastImage.Height).To(Equal(600))
			Expect(extractor.lastMode).To(Equal(extraction.GarmentDetection))
		})

		It("should use the general cap for tag decodes", func() {
			_, err := service.StartScan(context.Background(), upload(closetPhoto(2048, 1024)), extraction.TagDecode)
			Expect(err).NotTo(HaveOccurred())

			Expect(extractor.lastImage.Width).To(Equal(imaging.MaxDimGeneral))
			Expect(extractor.lastMode).To(Equal(extraction.TagDecode))
		})

		It("should reject an unknown mode", func() {
			_, err := service.StartScan(context.Background(), upload(closetPhoto(10, 10)), extraction.Mode("psychic"))
			Expect(err).To(HaveOccurred())
		})

		When("the picker was cancelled", func() {
			It("should report no file selected", func() {
				_, err := service.StartScan(context.Background(), upload(nil), extraction.GarmentDetection)
				Expect(err).To(MatchError(capture.ErrNoFileSelected))
				Expect(extractor.calls).To(Equal(0))
			})
		})

		When("the image cannot be decoded", func() {
			It("should abort with a decode error and leave the store untouched", func() {
				_, err := service.StartScan(context.Background(), upload([]byte("not an image")), extraction.GarmentDetection)
				Expect(err).To(MatchError(imaging.ErrDecode))
				Expect(store.appendCalls).To(Equal(0))
				Expect(extractor.calls).To(Equal(0))
			})
		})

		When("the extraction service is unavailable", func() {
			BeforeEach(func() {
				extractor.extractErr = extraction.ErrUnavailable
			})

			It("should abandon the scan without committing anything", func() {
				status, err := service.StartScan(context.Background(), upload(closetPhoto(100, 100)), extraction.GarmentDetection)
				Expect(err).To(MatchError(extraction.ErrUnavailable))
				Expect(status).To(BeNil())
				Expect(store.appendCalls).To(Equal(0))
			})

			It("should tear the session down", func() {
				_, _ = service.StartScan(context.Background(), upload(closetPhoto(100, 100)), extraction.GarmentDetection)
				// id-1 was the session token.
				_, err := service.SessionStatus("id-1")
				Expect(err).To(HaveOccurred())
			})
		})

		When("nothing is detected", func() {
			BeforeEach(func() {
				extractor.result = extraction.Result{Items: []extraction.Item{}}
			})

			It("should return the distinct no-items outcome", func() {
				status, err := service.StartScan(context.Background(), upload(closetPhoto(100, 100)), extraction.GarmentDetection)
				Expect(err).NotTo(HaveOccurred())
				Expect(status.State).To(Equal(StateDiscarded))
				Expect(status.Message).To(Equal(NoItemsMessage))
				Expect(store.appendCalls).To(Equal(0))
			})

			It("should not leave a session behind", func() {
				status, _ := service.StartScan(context.Background(), upload(closetPhoto(100, 100)), extraction.GarmentDetection)
				_, err := service.SessionStatus(status.Token)
				Expect(err).To(HaveOccurred())
			})
		})

		When("the model response was malformed", func() {
			BeforeEach(func() {
				extractor.result = extraction.Result{Items: []extraction.Item{}, Warning: "model response was not valid JSON"}
			})

			It("should surface the warning with the no-items outcome", func() {
				status, err := service.StartScan(context.Background(), upload(closetPhoto(100, 100)), extraction.GarmentDetection)
				Expect(err).NotTo(HaveOccurred())
				Expect(status.Warning).To(Equal("model response was not valid JSON"))
			})
		})
	})

	Describe("StartCameraScan", func() {
		It("should scan from a camera frame and release the device", func() {
			status, err := service.StartCameraScan(context.Background(), extraction.GarmentDetection)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.State).To(Equal(StateReviewing))

			Expect(camera.active).To(BeFalse())
			Expect(camera.closeCalls).To(Equal(1))
		})

		When("camera access is denied", func() {
			BeforeEach(func() {
				camera.openErr = capture.ErrDeviceAccessDenied
			})

			It("should fail with the device error and hold no camera resource", func() {
				_, err := service.StartCameraScan(context.Background(), extraction.GarmentDetection)
				Expect(err).To(MatchError(capture.ErrDeviceAccessDenied))
				Expect(camera.active).To(BeFalse())
			})
		})

		When("the frame grab fails", func() {
			BeforeEach(func() {
				camera.acquireErr = errors.New("sensor fault")
			})

			It("should still release the camera", func() {
				_, err := service.StartCameraScan(context.Background(), extraction.GarmentDetection)
				Expect(err).To(HaveOccurred())
				Expect(camera.active).To(BeFalse())
				Expect(camera.closeCalls).To(Equal(1))
			})
		})

		When("no camera is configured", func() {
			It("should fail with the device error", func() {
				service = NewServiceWithDeps(store, extractor, images, nil,
					&seqIDGenerator{prefix: "id"}, &fixedTimeSource{now: time.Now()})
				_, err := service.StartCameraScan(context.Background(), extraction.GarmentDetection)
				Expect(err).To(MatchError(capture.ErrDeviceAccessDenied))
			})
		})
	})

	Describe("CommitScan", func() {
		var token string

		BeforeEach(func() {
			status, err := service.StartScan(context.Background(), upload(closetPhoto(2000, 1000)), extraction.GarmentDetection)
			Expect(err).NotTo(HaveOccurred())
			token = status.Token
		})

		It("should append N items and one scan record", func() {
			result, err := service.CommitScan(token)
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Items).To(HaveLen(2))
			Expect(store.items).To(HaveLen(2))
			Expect(store.scans).To(HaveLen(1))
			Expect(store.scans[0].ItemIDs).To(HaveLen(2))
		})

		It("should assign fresh identifiers and the creation timestamp", func() {
			result, err := service.CommitScan(token)
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Items[0].ID).NotTo(Equal(result.Items[1].ID))
			for _, item := range result.Items {
				Expect(item.ID).NotTo(BeEmpty())
				Expect(item.CreatedAt).To(Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
			}
		})

		It("should carry the extracted attributes and box through", func() {
			result, err := service.CommitScan(token)
			Expect(err).NotTo(HaveOccurred())

			item := result.Items[0]
			Expect(item.Category).To(Equal(CategoryTop))
			Expect(item.ColorName).To(Equal("Navy"))
			Expect(item.Box).NotTo(BeNil())
			Expect(item.Box.Valid()).To(BeTrue())
		})

		It("should store the compressed scan image once for the batch", func() {
			result, err := service.CommitScan(token)
			Expect(err).NotTo(HaveOccurred())

			Expect(images.files).To(HaveLen(1))
			Expect(result.Items[0].ImageRef).To(Equal(result.Items[1].ImageRef))
			Expect(result.Items[0].ImageRef).NotTo(BeEmpty())
		})

		It("should tear the session down after commit", func() {
			_, err := service.CommitScan(token)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.CommitScan(token)
			Expect(err).To(HaveOccurred())
		})

		It("should fail for an unknown session", func() {
			_, err := service.CommitScan("stale-token")
			Expect(err).To(HaveOccurred())
			Expect(store.appendCalls).To(Equal(0))
		})

		It("should commit without an image reference when image storage fails", func() {
			images.saveErr = errors.New("disk full")
			result, err := service.CommitScan(token)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Items[0].ImageRef).To(BeEmpty())
			Expect(store.items).To(HaveLen(2))
		})
	})

	Describe("the review-and-commit scenario", func() {
		It("should commit exactly the remaining candidate", func() {
			status, err := service.StartScan(context.Background(), upload(closetPhoto(2000, 1000)), extraction.GarmentDetection)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Candidates).To(HaveLen(2))

			status, err = service.RemoveCandidate(status.Token, status.Candidates[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Candidates).To(HaveLen(1))

			result, err := service.CommitScan(status.Token)
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Items).To(HaveLen(1))
			Expect(result.Items[0].Subcategory).To(Equal("sneakers"))
			Expect(store.items).To(HaveLen(1))
			Expect(store.scans).To(HaveLen(1))
			Expect(store.scans[0].ItemIDs).To(HaveLen(1))
		})
	})

	Describe("DiscardScan", func() {
		var token string

		BeforeEach(func() {
			status, err := service.StartScan(context.Background(), upload(closetPhoto(100, 100)), extraction.GarmentDetection)
			Expect(err).NotTo(HaveOccurred())
			token = status.Token
		})

		It("should require confirmation for a review batch", func() {
			Expect(service.DiscardScan(token, false)).NotTo(Succeed())
			_, err := service.SessionStatus(token)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should discard with confirmation and drop the session", func() {
			Expect(service.DiscardScan(token, true)).To(Succeed())
			_, err := service.SessionStatus(token)
			Expect(err).To(HaveOccurred())
			Expect(store.appendCalls).To(Equal(0))
		})
	})

	Describe("DeleteScanGroup", func() {
		It("should remove the stored scan image with the group", func() {
			status, err := service.StartScan(context.Background(), upload(closetPhoto(100, 100)), extraction.GarmentDetection)
			Expect(err).NotTo(HaveOccurred())
			result, err := service.CommitScan(status.Token)
			Expect(err).NotTo(HaveOccurred())
			Expect(images.files).To(HaveLen(1))

			Expect(service.DeleteScanGroup(result.ScanTimestamp)).To(Succeed())
			Expect(images.files).To(BeEmpty())
			Expect(store.items).To(BeEmpty())
		})
	})

	Describe("Reset", func() {
		It("should clear the store and stored images", func() {
			status, err := service.StartScan(context.Background(), upload(closetPhoto(100, 100)), extraction.GarmentDetection)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.CommitScan(status.Token)
			Expect(err).NotTo(HaveOccurred())

			Expect(service.Reset()).To(Succeed())
			Expect(store.items).To(BeEmpty())
			Expect(store.scans).To(BeEmpty())
			Expect(images.files).To(BeEmpty())
		})
	})

	Describe("ItemImage", func() {
		It("should serve the stored image for a committed item", func() {
			status, err := service.StartScan(context.Background(), upload(closetPhoto(100, 100)), extraction.GarmentDetection)
			Expect(err).NotTo(HaveOccurred())
			result, err := service.CommitScan(status.Token)
			Expect(err).NotTo(HaveOccurred())

			data, contentType, err := service.ItemImage(result.Items[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).NotTo(BeEmpty())
			Expect(contentType).To(Equal("image/jpeg"))
		})

		It("should fail for an unknown item", func() {
			_, _, err := service.ItemImage("nope")
			Expect(err).To(HaveOccurred())
		})
	})
})
