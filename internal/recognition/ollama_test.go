package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

func samplePNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

func chatReply(content string) ollamaChatResponse {
	return ollamaChatResponse{Message: ollamaMessage{Role: "assistant", Content: content}, Done: true}
}

var _ = Describe("Ollama", func() {
	var (
		server     *ghttp.Server
		recognizer *Ollama
		ctx        context.Context
		imageData  []byte
		text       *Text
		err        error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var newErr error
		recognizer, newErr = NewOllama(server.URL()+"/", "llava")
		Expect(newErr).NotTo(HaveOccurred())
		ctx = context.Background()
		imageData = samplePNG()
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = recognizer.Recognize(ctx, imageData, "image/png")
	})

	When("the model answers with a transcription", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					var req ollamaChatRequest
					Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
					Expect(req.Model).To(Equal("llava"))
					Expect(req.Stream).To(BeFalse())
					Expect(req.Messages).To(HaveLen(2))
					Expect(req.Messages[1].Images).To(HaveLen(1))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, chatReply(`{"text":"CORNER STORE\nTotal: $4.20","confidence":0.7}`)),
			))
		})

		It("should return the text and confidence", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text.Raw).To(Equal("CORNER STORE\nTotal: $4.20"))
			Expect(text.Confidence).To(Equal(0.7))
		})
	})

	When("the server returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns a recognition error", func() {
			var re *Error
			Expect(errors.As(err, &re)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("model not loaded"))
		})
	})

	When("the model answers with garbage", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, chatReply("I cannot read this")))
		})

		It("returns a recognition error", func() {
			var re *Error
			Expect(errors.As(err, &re)).To(BeTrue())
			Expect(re.Op).To(Equal("parse response"))
		})
	})

	When("the deadline passes before the model answers", func() {
		var cancel context.CancelFunc

		BeforeEach(func() {
			ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
			server.AppendHandlers(func(w http.ResponseWriter, r *http.Request) {
				<-r.Context().Done()
			})
		})

		AfterEach(func() {
			cancel()
		})

		It("returns a timeout error", func() {
			var re *Error
			Expect(errors.As(err, &re)).To(BeTrue())
			Expect(re.Timeout()).To(BeTrue())
		})
	})

	When("the image is empty", func() {
		BeforeEach(func() {
			imageData = nil
		})

		It("returns ErrEmptyImage without calling the server", func() {
			Expect(err).To(MatchError(ErrEmptyImage))
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})

	When("the recognizer is closed", func() {
		BeforeEach(func() {
			Expect(recognizer.Close()).To(Succeed())
		})

		It("returns ErrClosed", func() {
			Expect(err).To(MatchError(ErrClosed))
		})
	})
})
