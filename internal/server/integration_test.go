package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/nitro41992/splitting-sucks/internal/config"
	"github.com/nitro41992/splitting-sucks/internal/media"
	"github.com/nitro41992/splitting-sucks/internal/operation"
	"github.com/nitro41992/splitting-sucks/internal/provider"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

var _ = Describe("Integration", func() {
	var (
		tempDir    string
		scratchDir string
		mirrorDir  string
		store      *config.BoltStore
		fake       *ghttp.Server
		server     *Server
	)

	call := func(path, body string) (int, envelope) {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
		var env envelope
		Expect(json.Unmarshal(rec.Body.Bytes(), &env)).To(Succeed())
		return rec.Code, env
	}

	scratchEntries := func() []os.DirEntry {
		entries, err := os.ReadDir(scratchDir)
		Expect(err).NotTo(HaveOccurred())
		return entries
	}

	BeforeEach(func() {
		var err error
		tempDir = GinkgoT().TempDir()
		scratchDir = filepath.Join(tempDir, "scratch")
		mirrorDir = filepath.Join(tempDir, "buckets")

		store, err = config.NewBoltStore(filepath.Join(tempDir, "config.db"))
		Expect(err).NotTo(HaveOccurred())

		buckets, err := media.NewLocalStorage(mirrorDir)
		Expect(err).NotTo(HaveOccurred())
		scratch, err := media.NewLocalStorage(scratchDir)
		Expect(err).NotTo(HaveOccurred())

		fake = ghttp.NewServer()
		factory := provider.NewFactory(provider.Credentials{
			OpenAIAPIKey:  "sk-test",
			GoogleAPIKey:  "g-test",
			OpenAIBaseURL: fake.URL(),
			GeminiBaseURL: fake.URL(),
		}, fake.HTTPTestServer.Client())

		service := operation.NewService(config.NewResolver(store), media.NewAcquirer(buckets, scratch), factory)
		server = NewServer(service, Config{Version: "test"})
	})

	AfterEach(func() {
		fake.Close()
		Expect(store.Close()).To(Succeed())
	})

	Describe("parse_receipt", func() {
		When("the provider returns a valid document", func() {
			BeforeEach(func() {
				fake.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodPost, "/chat/completions"),
					ghttp.VerifyHeaderKV("Authorization", "Bearer sk-test"),
					ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
						"choices": []map[string]any{{
							"message":       map[string]any{"content": `{"items":[{"item":"Burger","quantity":2,"price":12.5}],"subtotal":25}`},
							"finish_reason": "stop",
						}},
					}),
				))
			})

			It("returns the document and removes the scratch file", func() {
				status, env := call("/parse_receipt", `{"data":{"imageData":"`+base64.StdEncoding.EncodeToString(pngBytes)+`"}}`)
				Expect(status).To(Equal(http.StatusOK))
				Expect(env.Data).To(MatchJSON(`{"items":[{"item":"Burger","quantity":2,"price":12.5}],"subtotal":25}`))
				Expect(fake.ReceivedRequests()).To(HaveLen(1))
				Expect(scratchEntries()).To(BeEmpty())
			})
		})

		When("the provider returns a mistyped field", func() {
			BeforeEach(func() {
				fake.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"choices": []map[string]any{{
						"message":       map[string]any{"content": `{"items":[{"item":"Fries","quantity":"two","price":4}],"subtotal":8}`},
						"finish_reason": "stop",
					}},
				}))
			})

			It("reports a SchemaValidationError", func() {
				status, env := call("/parse_receipt", `{"data":{"imageData":"`+base64.StdEncoding.EncodeToString(pngBytes)+`"}}`)
				Expect(status).To(Equal(http.StatusInternalServerError))
				Expect(env.Error.Message).To(HavePrefix("SchemaValidationError: "))
				Expect(env.Error.Message).To(ContainSubstring("quantity"))
				Expect(scratchEntries()).To(BeEmpty())
			})
		})

		When("the provider fails", func() {
			BeforeEach(func() {
				fake.AppendHandlers(ghttp.RespondWith(http.StatusBadGateway, "upstream down"))
			})

			It("reports a ProviderInvocationError", func() {
				status, env := call("/parse_receipt", `{"data":{"imageData":"`+base64.StdEncoding.EncodeToString(pngBytes)+`"}}`)
				Expect(status).To(Equal(http.StatusInternalServerError))
				Expect(env.Error.Message).To(HavePrefix("ProviderInvocationError: "))
				Expect(scratchEntries()).To(BeEmpty())
			})
		})

		When("no media is supplied", func() {
			It("rejects the request before calling the provider", func() {
				status, env := call("/parse_receipt", `{"data":{}}`)
				Expect(status).To(Equal(http.StatusBadRequest))
				Expect(env.Error.Message).To(ContainSubstring("imageData or imageUri is required"))
				Expect(fake.ReceivedRequests()).To(BeEmpty())
			})
		})

		When("the URI escapes its bucket", func() {
			It("rejects the request", func() {
				status, env := call("/parse_receipt", `{"data":{"imageUri":"gs://receipts/../secrets/key.png"}}`)
				Expect(status).To(Equal(http.StatusBadRequest))
				Expect(env.Error.Message).To(HavePrefix("RequestValidationError: "))
				Expect(fake.ReceivedRequests()).To(BeEmpty())
			})
		})
	})

	Describe("assign_people_to_items", func() {
		BeforeEach(func() {
			maxTokens := 2048
			Expect(store.PutModelDocument(config.OperationAssignPeople, &config.ModelDocument{
				SelectedProvider: config.ProviderGemini,
				Providers: map[string]config.ModelEntry{
					config.ProviderGemini: {ModelName: "gemini-2.5-flash", MaxTokens: &maxTokens},
				},
			})).To(Succeed())
		})

		When("the provider accounts for every unit", func() {
			BeforeEach(func() {
				fake.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodPost, "/v1beta/models/gemini-2.5-flash:generateContent"),
					ghttp.VerifyHeaderKV("x-goog-api-key", "g-test"),
					ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
						"candidates": []map[string]any{{
							"content": map[string]any{"parts": []map[string]any{{
								"text": `{"person_assignments":[{"person_name":"Alice","items":[{"id":1,"quantity":1}]}],"shared_items":[{"id":2,"quantity":1}],"unassigned_items":[]}`,
							}}},
							"finishReason": "STOP",
						}},
					}),
				))
			})

			It("returns the assignment from the stored provider", func() {
				status, env := call("/assign_people_to_items", `{"data":{"transcription":"Alice had the burger, we shared the fries","receipt_items":[{"id":1,"item":"Burger","quantity":1,"price":10},{"id":2,"item":"Fries","quantity":1,"price":4}]}}`)
				Expect(status).To(Equal(http.StatusOK))
				Expect(env.Data).To(MatchJSON(`{"assignments":{"Alice":[{"id":1,"quantity":1}]},"shared_items":[{"id":2,"quantity":1}],"unassigned_items":[]}`))
			})
		})

		When("the provider loses a unit", func() {
			BeforeEach(func() {
				fake.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"candidates": []map[string]any{{
						"content": map[string]any{"parts": []map[string]any{{
							"text": `{"person_assignments":[{"person_name":"Alice","items":[{"id":1,"quantity":1}]}],"shared_items":[],"unassigned_items":[]}`,
						}}},
						"finishReason": "STOP",
					}},
				}))
			})

			It("reports a SchemaValidationError", func() {
				status, env := call("/assign_people_to_items", `{"data":{"transcription":"Alice had the burger","receipt_items":[{"id":1,"item":"Burger","quantity":1,"price":10},{"id":2,"item":"Fries","quantity":1,"price":4}]}}`)
				Expect(status).To(Equal(http.StatusInternalServerError))
				Expect(env.Error.Message).To(HavePrefix("SchemaValidationError: "))
			})
		})

		When("the prompt is blocked", func() {
			BeforeEach(func() {
				fake.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"promptFeedback": map[string]any{"blockReason": "SAFETY"},
				}))
			})

			It("reports a SafetyBlockError", func() {
				status, env := call("/assign_people_to_items", `{"data":{"transcription":"Alice had the burger","receipt_items":[{"id":1,"quantity":1}]}}`)
				Expect(status).To(Equal(http.StatusInternalServerError))
				Expect(env.Error.Message).To(HavePrefix("SafetyBlockError: "))
				Expect(env.Error.Message).To(ContainSubstring("SAFETY"))
			})
		})
	})

	Describe("transcribe_audio", func() {
		BeforeEach(func() {
			Expect(os.MkdirAll(filepath.Join(mirrorDir, "clips"), 0755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(mirrorDir, "clips", "dinner.mp3"), []byte("ID3 fake audio"), 0600)).To(Succeed())

			fake.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/audio/transcriptions"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"text": "  Alice had the burger.  "}),
			))
		})

		It("transcribes media from the bucket mirror", func() {
			status, env := call("/transcribe_audio", `{"data":{"audioUri":"gs://clips/dinner.mp3"}}`)
			Expect(status).To(Equal(http.StatusOK))
			Expect(env.Data).To(MatchJSON(`{"text":"Alice had the burger."}`))
			Expect(scratchEntries()).To(BeEmpty())
		})

		It("leaves the mirrored object in place", func() {
			call("/transcribe_audio", `{"data":{"audioUri":"gs://clips/dinner.mp3"}}`)
			Expect(filepath.Join(mirrorDir, "clips", "dinner.mp3")).To(BeAnExistingFile())
		})
	})
})
