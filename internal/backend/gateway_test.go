package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/hardwater/internal/backend"
	"procodus.dev/hardwater/internal/store"
	"procodus.dev/hardwater/pkg/mq"
	"procodus.dev/hardwater/pkg/mq/mock"
	"procodus.dev/hardwater/pkg/water"
)

const secret = "device-secret"

type failingStore struct {
	store.Store
	err error
}

func (f *failingStore) Put(context.Context, water.AreaID, string, water.Reading) error {
	return f.err
}

func (f *failingStore) ListAreas(context.Context) ([]water.AreaID, error) {
	return nil, f.err
}

var _ = Describe("Gateway", func() {
	var (
		ctx     context.Context
		mem     *store.Memory
		gw      *backend.Gateway
		now     time.Time
		payload []byte
	)

	BeforeEach(func() {
		ctx = context.Background()
		mem = store.NewMemory()
		now = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
		payload = []byte(`{"area":"Test","TDS":400,"Ca":80,"Mg":20,"pH":7.2,"turbidity":1.0,"chlorine":0.3}`)

		var err error
		gw, err = backend.NewGateway(&backend.GatewayConfig{
			Logger: testLogger(),
			Store:  mem,
			Secret: secret,
			Now:    func() time.Time { return now },
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewGateway", func() {
		It("should return error when config is nil", func() {
			_, err := backend.NewGateway(nil)
			Expect(err).To(MatchError(ContainSubstring("config cannot be nil")))
		})

		It("should return error when store is nil", func() {
			_, err := backend.NewGateway(&backend.GatewayConfig{Logger: testLogger()})
			Expect(err).To(MatchError(ContainSubstring("store cannot be nil")))
		})
	})

	Context("authentication", func() {
		It("rejects a wrong token even for a valid body", func() {
			_, err := gw.Ingest(ctx, "Bearer wrong", payload)
			Expect(err).To(MatchError(water.ErrAuthentication))
		})

		It("rejects a missing header", func() {
			_, err := gw.Ingest(ctx, "", payload)
			Expect(err).To(MatchError(water.ErrAuthentication))
		})

		It("checks credentials before parsing the body", func() {
			_, err := gw.Ingest(ctx, "Bearer wrong", []byte("not json"))
			Expect(err).To(MatchError(water.ErrAuthentication))
		})

		It("rejects everything when no secret is configured", func() {
			open, err := backend.NewGateway(&backend.GatewayConfig{Logger: testLogger(), Store: mem})
			Expect(err).NotTo(HaveOccurred())
			_, err = open.Ingest(ctx, "Bearer ", payload)
			Expect(err).To(MatchError(water.ErrAuthentication))
		})
	})

	Context("validation", func() {
		It("rejects a payload missing chlorine and names every field", func() {
			_, err := gw.Ingest(ctx, "Bearer "+secret,
				[]byte(`{"area":"Test","TDS":400,"Ca":80,"Mg":20,"pH":7.2,"turbidity":1.0}`))
			Expect(err).To(MatchError(water.ErrValidation))
			Expect(err.Error()).To(ContainSubstring("area, TDS, Ca, Mg, pH, turbidity, chlorine"))
		})

		It("rejects null fields", func() {
			_, err := gw.Ingest(ctx, "Bearer "+secret,
				[]byte(`{"area":"Test","TDS":null,"Ca":80,"Mg":20,"pH":7.2,"turbidity":1.0,"chlorine":0.3}`))
			Expect(err).To(MatchError(water.ErrValidation))
		})

		It("rejects non-numeric measurements", func() {
			_, err := gw.Ingest(ctx, "Bearer "+secret,
				[]byte(`{"area":"Test","TDS":"high","Ca":80,"Mg":20,"pH":7.2,"turbidity":1.0,"chlorine":0.3}`))
			Expect(err).To(MatchError(water.ErrValidation))
			Expect(err.Error()).To(ContainSubstring(`"TDS"`))
		})

		It("rejects invalid JSON", func() {
			_, err := gw.Ingest(ctx, "Bearer "+secret, []byte(`[1,2`))
			Expect(err).To(MatchError(water.ErrValidation))
		})

		It("rejects area labels with underscores", func() {
			_, err := gw.Ingest(ctx, "Bearer "+secret,
				[]byte(`{"area":"HSR_Layout","TDS":400,"Ca":80,"Mg":20,"pH":7.2,"turbidity":1.0,"chlorine":0.3}`))
			Expect(err).To(MatchError(water.ErrValidation))
		})
	})

	Context("accepted readings", func() {
		It("stamps the gateway time and stores under the derived key", func() {
			result, err := gw.Ingest(ctx, "Bearer "+secret, payload)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Timestamp.String()).To(Equal("2024-06-01 10:00:00"))
			Expect(result.Key).To(Equal(water.StorageKey(now, 0)))
			Expect(result.Area).To(Equal("Test"))

			stored, err := mem.GetRange(ctx, "Test", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(HaveLen(1))
			Expect(stored[0].Reading.Ca).To(Equal(80.0))
		})

		It("ignores a client-supplied timestamp and keeps unknown fields", func() {
			_, err := gw.Ingest(ctx, "Bearer "+secret,
				[]byte(`{"area":"Test","TDS":400,"Ca":80,"Mg":20,"pH":7.2,"turbidity":1.0,"chlorine":0.3,"timestamp":"1999-01-01 00:00:00","device":"node-7"}`))
			Expect(err).NotTo(HaveOccurred())

			stored, _ := mem.GetRange(ctx, "Test", 1)
			Expect(stored[0].Reading.Timestamp.String()).To(Equal("2024-06-01 10:00:00"))
			Expect(stored[0].Reading.Extra).To(HaveKeyWithValue("device", "node-7"))
		})

		It("keeps both readings when two arrive in the same second", func() {
			first, err := gw.Ingest(ctx, "Bearer "+secret, payload)
			Expect(err).NotTo(HaveOccurred())
			second, err := gw.Ingest(ctx, "Bearer "+secret, payload)
			Expect(err).NotTo(HaveOccurred())

			Expect(second.Key).NotTo(Equal(first.Key))
			Expect(second.Key < first.Key).To(BeTrue())

			stored, _ := mem.GetRange(ctx, "Test", 10)
			Expect(stored).To(HaveLen(2))
		})

		It("surfaces store failures without retrying", func() {
			broken, err := backend.NewGateway(&backend.GatewayConfig{
				Logger: testLogger(),
				Store:  &failingStore{Store: mem, err: errors.New("disk full")},
				Secret: secret,
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = broken.Ingest(ctx, "Bearer "+secret, payload)
			Expect(err).To(MatchError(ContainSubstring("disk full")))
			Expect(water.HTTPStatus(err)).To(Equal(http.StatusInternalServerError))
		})

		It("reports an unreachable store as an internal error", func() {
			broken, err := backend.NewGateway(&backend.GatewayConfig{
				Logger: testLogger(),
				Store: &failingStore{
					Store: mem,
					err:   fmt.Errorf("%w: put reading: connection refused", water.ErrUpstreamUnavailable),
				},
				Secret: secret,
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = broken.Ingest(ctx, "Bearer "+secret, payload)
			Expect(err).NotTo(MatchError(water.ErrUpstreamUnavailable))
			Expect(water.HTTPStatus(err)).To(Equal(http.StatusInternalServerError))
		})
	})

	Context("reading events", func() {
		It("publishes an event for every accepted reading", func() {
			client := mock.NewMockClient()
			publishing, err := backend.NewGateway(&backend.GatewayConfig{
				Logger:    testLogger(),
				Store:     mem,
				Publisher: client,
				Secret:    secret,
				Now:       func() time.Time { return now },
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = publishing.Ingest(ctx, "Bearer "+secret, payload)
			Expect(err).NotTo(HaveOccurred())

			Eventually(client.Pushed).Should(HaveLen(1))
			var ev mq.ReadingEvent
			Expect(json.Unmarshal(client.Pushed()[0], &ev)).To(Succeed())
			Expect(ev.Area).To(Equal(water.AreaID("Test")))
			Expect(ev.Reading.TDS).To(Equal(400.0))
		})

		It("accepts the reading even when publishing fails", func() {
			client := mock.NewMockClient()
			client.PushError = errors.New("broker down")
			publishing, err := backend.NewGateway(&backend.GatewayConfig{
				Logger:    testLogger(),
				Store:     mem,
				Publisher: client,
				Secret:    secret,
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = publishing.Ingest(ctx, "Bearer "+secret, payload)
			Expect(err).NotTo(HaveOccurred())
			Eventually(client.Pushed).Should(HaveLen(1))
		})
	})
})
