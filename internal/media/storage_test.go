package media

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			filename  string
			savedPath string
			err       error
		)

		BeforeEach(func() {
			filename = "scratch/audio.m4a"
		})

		JustBeforeEach(func() {
			savedPath, err = storage.Save(filename, []byte("audio bytes"))
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the relative path", func() {
				Expect(savedPath).To(Equal(filename))
			})

			It("should create intermediate directories", func() {
				Expect(filepath.Join(tmpDir, "scratch", "audio.m4a")).To(BeAnExistingFile())
			})
		})

		When("the path escapes the base directory", func() {
			BeforeEach(func() {
				filename = "../outside.txt"
			})

			It("returns an error", func() {
				Expect(err).To(MatchError(ContainSubstring("outside storage")))
			})
		})
	})

	Describe("Get", func() {
		When("the file exists", func() {
			It("returns its contents", func() {
				_, err := storage.Save("bucket/receipt.jpg", []byte("jpeg"))
				Expect(err).NotTo(HaveOccurred())

				data, err := storage.Get("bucket/receipt.jpg")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("jpeg"))
			})
		})

		When("the file does not exist", func() {
			It("returns the error", func() {
				_, err := storage.Get("missing.jpg")
				Expect(err).To(MatchError(ContainSubstring("reading file")))
			})
		})

		When("the path escapes the base directory", func() {
			It("refuses to read it", func() {
				secret := filepath.Join(filepath.Dir(tmpDir), "secret.txt")
				Expect(os.WriteFile(secret, []byte("secret"), 0600)).To(Succeed())
				DeferCleanup(os.Remove, secret)

				_, err := storage.Get("../secret.txt")
				Expect(err).To(MatchError(ContainSubstring("outside storage")))
			})
		})
	})

	Describe("Delete", func() {
		When("the file exists", func() {
			It("removes it", func() {
				_, err := storage.Save("scratch.png", []byte("png"))
				Expect(err).NotTo(HaveOccurred())

				Expect(storage.Delete("scratch.png")).To(Succeed())
				Expect(filepath.Join(tmpDir, "scratch.png")).NotTo(BeAnExistingFile())
			})
		})

		When("the file does not exist", func() {
			It("returns the error", func() {
				Expect(storage.Delete("missing.png")).To(MatchError(ContainSubstring("deleting file")))
			})
		})
	})

	Describe("NewLocalStorage", func() {
		It("creates a missing directory", func() {
			storagePath := filepath.Join(GinkgoT().TempDir(), "scratch")
			_, err := NewLocalStorage(storagePath)
			Expect(err).NotTo(HaveOccurred())
			Expect(storagePath).To(BeADirectory())
		})
	})
})
