package config

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltStore", func() {
	var (
		tmpDir string
		store  *BoltStore
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		store, err = NewBoltStore(filepath.Join(tmpDir, "config.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if store != nil {
			store.Close()
		}
	})

	Describe("ModelDocument", func() {
		var (
			doc *ModelDocument
			err error
		)

		JustBeforeEach(func() {
			doc, err = store.ModelDocument(context.Background(), OperationParseReceipt)
		})

		When("the document exists", func() {
			BeforeEach(func() {
				Expect(store.PutModelDocument(OperationParseReceipt, &ModelDocument{
					SelectedProvider: ProviderGemini,
					Providers: map[string]ModelEntry{
						ProviderGemini: {ModelName: "gemini-2.5-pro", MaxTokens: intPtr(8192), ThinkingBudget: intPtr(4000)},
					},
				})).To(Succeed())
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("returns the stored document", func() {
				Expect(doc.SelectedProvider).To(Equal(ProviderGemini))
				Expect(doc.Providers[ProviderGemini].ModelName).To(Equal("gemini-2.5-pro"))
				Expect(doc.Providers[ProviderGemini].MaxTokens).To(HaveValue(Equal(8192)))
				Expect(doc.Providers[ProviderGemini].ThinkingBudget).To(HaveValue(Equal(4000)))
			})
		})

		When("the document does not exist", func() {
			It("returns ErrNotFound", func() {
				Expect(err).To(MatchError(ErrNotFound))
			})
		})

		When("the database is closed", func() {
			BeforeEach(func() {
				Expect(store.Close()).To(Succeed())
			})

			It("returns an error other than ErrNotFound", func() {
				Expect(err).To(HaveOccurred())
				Expect(err).NotTo(MatchError(ErrNotFound))
			})
		})

		When("the context is already cancelled", func() {
			It("returns the context error", func() {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				_, err := store.ModelDocument(ctx, OperationParseReceipt)
				Expect(err).To(MatchError(context.Canceled))
			})
		})
	})

	Describe("PromptDocument", func() {
		When("the document stores a null prompt", func() {
			BeforeEach(func() {
				Expect(store.PutPromptDocument(OperationTranscribe, &PromptDocument{
					Providers: map[string]PromptEntry{
						ProviderOpenAI: {PromptText: nil},
					},
				})).To(Succeed())
			})

			It("keeps the prompt null", func() {
				doc, err := store.PromptDocument(context.Background(), OperationTranscribe)
				Expect(err).NotTo(HaveOccurred())
				Expect(doc.Providers).To(HaveKey(ProviderOpenAI))
				Expect(doc.Providers[ProviderOpenAI].PromptText).To(BeNil())
			})
		})
	})

	When("it backs a Resolver", func() {
		It("resolves the stored configuration", func() {
			Expect(store.PutModelDocument(OperationAssignPeople, &ModelDocument{
				SelectedProvider: ProviderGemini,
				Providers: map[string]ModelEntry{
					ProviderGemini: {ModelName: "gemini-2.5-flash"},
				},
			})).To(Succeed())

			cfg := NewResolver(store).Resolve(context.Background(), OperationAssignPeople)
			Expect(cfg.ProviderName).To(Equal(ProviderGemini))
			Expect(cfg.Prompt).To(Equal(DefaultPrompt(OperationAssignPeople)))
		})
	})
})

var _ = Describe("LoadSeed", func() {
	var (
		seedDir string
		seed    *Seed
		err     error
	)

	writeFile := func(rel, content string) {
		path := filepath.Join(seedDir, rel)
		Expect(os.MkdirAll(filepath.Dir(path), 0755)).To(Succeed())
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
	}

	BeforeEach(func() {
		seedDir = GinkgoT().TempDir()
	})

	JustBeforeEach(func() {
		seed, err = LoadSeed(seedDir)
	})

	When("the directory holds YAML and JSON documents", func() {
		BeforeEach(func() {
			writeFile("models/parse_receipt.yaml", `
selected_provider: gemini
providers:
  openai:
    model_name: gpt-4o
    max_tokens: 4096
  gemini:
    model_name: gemini-2.5-pro
    max_tokens: 8192
    thinking_budget: 2048
`)
			writeFile("prompts/parse_receipt.json", `{"providers":{"gemini":{"prompt_text":"Parse it"},"openai":{"prompt_text":null}}}`)
			writeFile("prompts/README.md", "not a seed document")
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("reads the model document", func() {
			Expect(seed.Models).To(HaveKey(OperationParseReceipt))
			doc := seed.Models[OperationParseReceipt]
			Expect(doc.SelectedProvider).To(Equal(ProviderGemini))
			Expect(doc.Providers[ProviderGemini].ThinkingBudget).To(HaveValue(Equal(2048)))
		})

		It("reads the prompt document", func() {
			doc := seed.Prompts[OperationParseReceipt]
			Expect(doc.Providers[ProviderGemini].PromptText).To(HaveValue(Equal("Parse it")))
			Expect(doc.Providers[ProviderOpenAI].PromptText).To(BeNil())
		})

		It("ignores files that are not seed documents", func() {
			Expect(seed.Prompts).To(HaveLen(1))
		})

		It("applies the documents to a store", func() {
			store, openErr := NewBoltStore(filepath.Join(GinkgoT().TempDir(), "seeded.db"))
			Expect(openErr).NotTo(HaveOccurred())
			defer store.Close()

			Expect(seed.Apply(store)).To(Succeed())
			doc, getErr := store.PromptDocument(context.Background(), OperationParseReceipt)
			Expect(getErr).NotTo(HaveOccurred())
			Expect(doc.Providers[ProviderGemini].PromptText).To(HaveValue(Equal("Parse it")))
		})
	})

	When("the directory is empty", func() {
		It("returns an empty seed", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(seed.Models).To(BeEmpty())
			Expect(seed.Prompts).To(BeEmpty())
		})
	})

	When("a document is malformed", func() {
		BeforeEach(func() {
			writeFile("models/assign_people_to_items.yaml", "selected_provider: [unterminated")
		})

		It("returns an error naming the file", func() {
			Expect(err).To(MatchError(ContainSubstring("assign_people_to_items.yaml")))
		})
	})
})
