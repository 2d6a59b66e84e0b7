package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-validator/internal/receipt"
)

// mockValidator is a mock implementation of ReceiptValidator
type mockValidator struct {
	result      *receipt.Result
	ValidateErr error
	received    *receipt.Input
}

func (m *mockValidator) Validate(ctx context.Context, in receipt.Input) (*receipt.Result, error) {
	m.received = &in
	if m.ValidateErr != nil {
		return nil, m.ValidateErr
	}
	return m.result, nil
}

func multipartBody(fields map[string]string, image []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		Expect(writer.WriteField(k, v)).To(Succeed())
	}
	if image != nil {
		part, err := writer.CreateFormFile("image", "receipt.png")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(image)
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

func validFields() map[string]string {
	return map[string]string{
		"merchant": "Starbucks Coffee",
		"amount":   "8.05",
		"date":     "2026-10-16",
		"category": "Food & Dining",
	}
}

var _ = Describe("Server", func() {
	var (
		validator   *mockValidator
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(validator, auth, "1.2.3", http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	post := func(fields map[string]string, image []byte) *http.Response {
		body, contentType := multipartBody(fields, image)
		resp, err := http.Post(ghttpServer.URL()+"/api/receipts/validate", contentType, body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decodeError := func(resp *http.Response) errorResponse {
		defer resp.Body.Close()
		var out errorResponse
		Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
		return out
	}

	BeforeEach(func() {
		validator = &mockValidator{
			result: &receipt.Result{
				ID:              "run-1",
				Valid:           true,
				Confidence:      0.92,
				RiskScore:       0,
				Flags:           []receipt.Flag{receipt.Info(receipt.CodeUniqueReceipt, "Receipt appears to be unique")},
				Recommendations: []string{"Receipt validation passed successfully!"},
				Outcome:         receipt.OutcomeCompleted,
				ValidatedAt:     time.Date(2026, time.October, 16, 14, 30, 0, 0, time.UTC),
			},
		}
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleHealth", func() {
		It("should report ok", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(MatchJSON(`{"status":"ok"}`))
		})
	})

	Describe("handleStatus", func() {
		It("should describe the service", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts/validate")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var status statusResponse
			Expect(json.NewDecoder(resp.Body).Decode(&status)).To(Succeed())
			Expect(status.Message).To(Equal("Receipt validation service is running"))
			Expect(status.Version).To(Equal("1.2.3"))
			Expect(status.Features).To(ContainElement("Duplicate detection"))
		})
	})

	Describe("handleValidate", func() {
		When("the form and image are valid", func() {
			It("should return the validation result", func() {
				resp := post(validFields(), []byte("\x89PNG\r\n\x1a\nfake"))
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var out struct {
					Success    bool `json:"success"`
					Validation struct {
						IsValid    bool    `json:"isValid"`
						Confidence float64 `json:"confidence"`
						Flags      []struct {
							Type string `json:"type"`
							Code string `json:"code"`
						} `json:"flags"`
					} `json:"validation"`
				}
				Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
				Expect(out.Success).To(BeTrue())
				Expect(out.Validation.IsValid).To(BeTrue())
				Expect(out.Validation.Confidence).To(Equal(0.92))
				Expect(out.Validation.Flags[0].Type).To(Equal("INFO"))
				Expect(out.Validation.Flags[0].Code).To(Equal(receipt.CodeUniqueReceipt))
			})

			It("should pass the parsed input to the service", func() {
				resp := post(validFields(), []byte("image bytes"))
				resp.Body.Close()

				Expect(validator.received).NotTo(BeNil())
				in := validator.received
				Expect(in.Merchant).To(Equal("Starbucks Coffee"))
				Expect(in.Amount.Equal(decimal.RequireFromString("8.05"))).To(BeTrue())
				Expect(in.Date).To(Equal(time.Date(2026, time.October, 16, 0, 0, 0, 0, time.UTC)))
				Expect(in.Category).To(Equal("Food & Dining"))
				Expect(in.Image.Data).To(Equal([]byte("image bytes")))
				Expect(in.Image.ContentType).To(Equal("image/png"))
			})
		})

		When("an image URL is given instead of a file", func() {
			It("should forward the URI", func() {
				fields := validFields()
				fields["image_url"] = "https://example.com/receipt.jpg"
				resp := post(fields, nil)
				resp.Body.Close()

				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(validator.received.Image.URI).To(Equal("https://example.com/receipt.jpg"))
				Expect(validator.received.Image.Data).To(BeEmpty())
			})
		})

		When("required fields are missing or malformed", func() {
			It("should return the offending fields", func() {
				resp := post(map[string]string{"amount": "eight", "date": "16/10/2026"}, []byte("image"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				out := decodeError(resp)
				Expect(out.Success).To(BeFalse())
				Expect(out.Error).To(Equal("invalid request"))
				Expect(out.Details).To(ContainElements(
					map[string]string{"merchant": "is required"},
					map[string]string{"amount": "must be a number"},
					map[string]string{"date": "must be a date in YYYY-MM-DD format"},
				))
				Expect(validator.received).To(BeNil())
			})
		})

		When("the image URL is not a URL", func() {
			It("should reject it", func() {
				fields := validFields()
				fields["image_url"] = "not a url"
				resp := post(fields, nil)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeError(resp).Details).To(ContainElement(map[string]string{"image_url": "must be a valid URL"}))
			})
		})

		When("no image is supplied", func() {
			BeforeEach(func() {
				validator.ValidateErr = ErrNoImage
			})

			It("should return bad request", func() {
				resp := post(validFields(), nil)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeError(resp).Error).To(Equal("An image file or image_url is required"))
			})
		})

		When("the service fails", func() {
			BeforeEach(func() {
				validator.ValidateErr = errors.New("boom")
			})

			It("should return internal server error", func() {
				resp := post(validFields(), []byte("image"))
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(decodeError(resp).Error).To(Equal("Failed to validate receipt"))
			})
		})

		When("the body is not multipart", func() {
			It("should return bad request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts/validate", "application/json", strings.NewReader(`{}`))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeError(resp).Error).To(Equal("Error parsing form"))
			})
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
			setupServer()
		})

		It("should reject requests without credentials", func() {
			resp := post(validFields(), []byte("image"))
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(Equal(`Basic realm="Receipt Validator"`))
			resp.Body.Close()
			Expect(validator.received).To(BeNil())
		})

		It("should accept valid credentials", func() {
			body, contentType := multipartBody(validFields(), []byte("image"))
			req, err := http.NewRequest(http.MethodPost, ghttpServer.URL()+"/api/receipts/validate", body)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", contentType)
			req.SetBasicAuth("admin", "secret")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should reject wrong credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/receipts/validate", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "wrong")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should leave the health check open", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/receipts/validate", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("POST"))
		})
	})

	Describe("uploadContentType", func() {
		DescribeTable("falls back to the file extension",
			func(declared, filename, expected string) {
				Expect(uploadContentType(declared, filename)).To(Equal(expected))
			},
			Entry("declared type wins", "image/jpeg", "x.png", "image/jpeg"),
			Entry("octet-stream png", "application/octet-stream", "x.PNG", "image/png"),
			Entry("heic", "", "IMG_0001.heic", "image/heic"),
			Entry("pdf", "", "scan.pdf", "application/pdf"),
			Entry("unknown", "", "notes.txt", "application/octet-stream"),
		)
	})
})
