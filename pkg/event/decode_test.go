package event_test

import (
	"bytes"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/pulse/pkg/event"
	"github.com/papercomputeco/pulse/pkg/logger"
)

var _ = Describe("DecodeEvent", func() {
	It("decodes a well-formed feed event", func() {
		ev, err := event.DecodeEvent(`{"id":"evt-1","timestamp":"2026-10-16T09:30:00Z","phase":"detect","message":"Inventory spike on SKU-42","status":"warning"}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev).To(Equal(event.Event{
			ID:        "evt-1",
			Timestamp: "2026-10-16T09:30:00Z",
			Phase:     event.PhaseDetect,
			Message:   "Inventory spike on SKU-42",
			Status:    event.StatusWarning,
		}))

		ts, err := ev.Time()
		Expect(err).NotTo(HaveOccurred())
		Expect(ts.Hour()).To(Equal(9))
	})

	It("keeps unknown phases verbatim", func() {
		ev, err := event.DecodeEvent(`{"id":"x","phase":"reflect"}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Phase).To(Equal(event.Phase("reflect")))
		Expect(ev.Phase.Valid()).To(BeFalse())
	})

	DescribeTable("rejects malformed payloads as skippable",
		func(payload string, target error) {
			_, err := event.DecodeEvent(payload)
			Expect(err).To(HaveOccurred())
			Expect(event.IsSkippable(err)).To(BeTrue())
			if target != nil {
				Expect(err).To(MatchError(target))
			}
		},
		Entry("truncated JSON", `{"id":"1","mess`, nil),
		Entry("not JSON", `hello`, nil),
		Entry("empty", ``, nil),
		Entry("JSON null", `null`, event.ErrNotObject),
		Entry("JSON array", `[1,2]`, event.ErrNotObject),
		Entry("missing id", `{"message":"no id"}`, event.ErrMissingID),
		Entry("wrong field type", `{"id":42}`, nil),
	)
})

var _ = Describe("DecodeMessage", func() {
	It("decodes a chunk", func() {
		msg, err := event.DecodeMessage(`{"type":"chunk","content":"Hel"}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Type).To(Equal(event.MessageChunk))
		Expect(msg.Content).To(Equal("Hel"))
		Expect(msg.Type.Terminal()).To(BeFalse())
	})

	It("accepts text as an alias for content", func() {
		msg, err := event.DecodeMessage(`{"type":"chunk","text":"lo"}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Content).To(Equal("lo"))
	})

	It("decodes a complete frame with its raw result", func() {
		msg, err := event.DecodeMessage(`{"type":"complete","result":{"title":"Summer sale","tags":["promo"]}}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Type.Terminal()).To(BeTrue())

		var result map[string]any
		Expect(json.Unmarshal(msg.Result, &result)).To(Succeed())
		Expect(result).To(HaveKeyWithValue("title", "Summer sale"))
	})

	It("decodes an error frame, accepting message as an alias", func() {
		msg, err := event.DecodeMessage(`{"type":"error","error":"quota exceeded"}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Error).To(Equal("quota exceeded"))

		msg, err = event.DecodeMessage(`{"type":"error","message":"model unavailable"}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Error).To(Equal("model unavailable"))
	})

	It("rejects unknown types as skippable", func() {
		_, err := event.DecodeMessage(`{"type":"heartbeat"}`)
		Expect(err).To(MatchError(event.ErrUnknownType))
		Expect(event.IsSkippable(err)).To(BeTrue())
	})
})

var _ = Describe("Decoder", func() {
	It("skips exactly the malformed frame among valid neighbours", func() {
		payloads := []string{
			`{"id":"1","message":"a"}`,
			`{"id":"2","message":"b"}`,
			`{"id":"3","mess`,
			`{"id":"4","message":"d"}`,
			`{"id":"5","message":"e"}`,
		}

		var buf bytes.Buffer
		d := event.NewDecoder(logger.New(logger.WithWriter(&buf)))

		var ids []string
		Expect(func() {
			for _, p := range payloads {
				if ev, ok := d.Event(p); ok {
					ids = append(ids, ev.ID)
				}
			}
		}).NotTo(Panic())

		Expect(ids).To(Equal([]string{"1", "2", "4", "5"}))
		Expect(d.Skipped()).To(Equal(1))
		Expect(buf.String()).To(ContainSubstring("skipping malformed frame"))
	})

	It("keeps chunk and complete frames around a corrupt one", func() {
		d := event.NewDecoder(nil)

		var types []event.MessageType
		for _, p := range []string{
			`{"type":"chunk","content":"a"}`,
			`{"type":`,
			`{"type":"complete","result":{}}`,
		} {
			if msg, ok := d.Message(p); ok {
				types = append(types, msg.Type)
			}
		}

		Expect(types).To(Equal([]event.MessageType{event.MessageChunk, event.MessageComplete}))
		Expect(d.Skipped()).To(Equal(1))
	})
})

var _ = Describe("enums", func() {
	It("lists phases in lifecycle order", func() {
		Expect(event.Phases()).To(HaveLen(6))
		for _, p := range event.Phases() {
			Expect(p.Valid()).To(BeTrue())
		}
	})

	It("validates statuses", func() {
		Expect(event.StatusSuccess.Valid()).To(BeTrue())
		Expect(event.Status("fatal").Valid()).To(BeFalse())
	})
})
