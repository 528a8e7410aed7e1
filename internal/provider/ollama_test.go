package provider

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/nitro41992/splitting-sucks/internal/canonical"
	"github.com/nitro41992/splitting-sucks/internal/config"
)

var _ = Describe("ollamaCompleter", func() {
	var (
		server *ghttp.Server
		sent   map[string]any
		cfg    config.ServiceConfig
		out    Output
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		sent = map[string]any{}
		cfg = config.ServiceConfig{ProviderName: config.ProviderOllama, Model: "llava", MaxTokens: intPtr(4096)}
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest("POST", "/api/chat"),
			captureJSON(&sent),
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"message": map[string]any{"role": "assistant", "content": "```json\n{\"items\":[],\"subtotal\":0}\n```"},
				"done":    true,
			}),
		))
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		adapter := &ollamaCompleter{baseURL: server.URL() + "/", client: http.DefaultClient}
		out, err = adapter.Invoke(context.Background(), Request{
			Prompt:   "Parse this receipt",
			Media:    []byte("png bytes"),
			MIMEType: "image/png",
			Schema:   canonical.ReceiptDocumentSchema,
		}, cfg)
	})

	It("returns the message content as text for validation", func() {
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Structured).To(BeNil())
		Expect(out.Text).To(ContainSubstring(`"subtotal":0`))
	})

	It("constrains the output with the schema", func() {
		Expect(sent["format"]).To(HaveKeyWithValue("type", "object"))
		Expect(sent["stream"]).To(BeFalse())
	})

	It("attaches the image to the user message", func() {
		message := sent["messages"].([]any)[0].(map[string]any)
		Expect(message["role"]).To(Equal("user"))
		Expect(message["content"]).To(Equal("Parse this receipt"))
		Expect(message["images"]).To(ConsistOf("cG5nIGJ5dGVz"))
	})

	It("maps max tokens to num_predict", func() {
		Expect(sent["options"]).To(HaveKeyWithValue("num_predict", BeNumerically("==", 4096)))
	})

	When("max tokens is not configured", func() {
		BeforeEach(func() {
			cfg.MaxTokens = nil
		})

		It("sends no options", func() {
			Expect(sent).NotTo(HaveKey("options"))
		})
	})
})
