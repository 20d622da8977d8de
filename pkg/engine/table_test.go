package engine_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/pulse/pkg/engine"
)

const tableTOML = `
[[engine]]
id = "pricing"
name = "Pricing"
keywords = ["price", "discount"]

[[engine]]
id = "stock"
name = "Stock"
keywords = ["inventory"]
`

var _ = Describe("Table", func() {
	It("has a valid default table covering every phase", func() {
		t := engine.DefaultTable()
		Expect(t.Validate()).To(Succeed())
		Expect(t.Engines).To(HaveLen(5))
	})

	It("parses TOML engine entries", func() {
		t, err := engine.ParseTable([]byte(tableTOML))
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Engines).To(Equal([]engine.Engine{
			{ID: "pricing", Name: "Pricing", Keywords: []string{"price", "discount"}},
			{ID: "stock", Name: "Stock", Keywords: []string{"inventory"}},
		}))
	})

	DescribeTable("rejects invalid tables",
		func(data string, target error) {
			_, err := engine.ParseTable([]byte(data))
			Expect(err).To(MatchError(target))
		},
		Entry("no engines", ``, engine.ErrNoEngines),
		Entry("missing id", "[[engine]]\nname = \"x\"\n", engine.ErrInvalidEngine),
		Entry("duplicate id", "[[engine]]\nid = \"a\"\n[[engine]]\nid = \"a\"\n", engine.ErrInvalidEngine),
	)

	It("reports TOML syntax errors", func() {
		_, err := engine.ParseTable([]byte("[[engine]\nid ="))
		Expect(err).To(MatchError(ContainSubstring("parsing engine table")))
	})

	Describe("Resolve", func() {
		It("falls back to the default table", func() {
			t, err := engine.Resolve("")
			Expect(err).NotTo(HaveOccurred())
			Expect(t).To(Equal(engine.DefaultTable()))
		})

		It("loads a table file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "engines.toml")
			Expect(os.WriteFile(path, []byte(tableTOML), 0o600)).To(Succeed())

			t, err := engine.Resolve(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(t.Engines).To(HaveLen(2))
		})

		It("fails for a missing file", func() {
			_, err := engine.Resolve(filepath.Join(GinkgoT().TempDir(), "absent.toml"))
			Expect(err).To(MatchError(os.ErrNotExist))
		})
	})
})
