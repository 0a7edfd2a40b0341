package producer_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/hardwater/internal/producer"
	"procodus.dev/hardwater/pkg/generator"
)

var _ = Describe("Producer Server", func() {
	Describe("NewServer", func() {
		Context("with valid configuration", func() {
			It("should create a server backed by the data API client", func() {
				server, err := producer.NewServer(&producer.ServerConfig{
					Logger:        testLogger(),
					APIURL:        "http://127.0.0.1:5000",
					Secret:        "device-secret",
					ProducerCount: 3,
					Interval:      time.Second,
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(server.Producers()).To(HaveLen(3))
			})

			It("should assign profiles round-robin", func() {
				server, err := producer.NewServer(&producer.ServerConfig{
					Logger:        testLogger(),
					Ingester:      &recordingIngester{},
					ProducerCount: 8,
					Interval:      time.Second,
				})
				Expect(err).NotTo(HaveOccurred())

				producers := server.Producers()
				Expect(producers[0].Device.Area).To(Equal(generator.DefaultProfiles[0].Area))
				Expect(producers[5].Device.Area).To(Equal(generator.DefaultProfiles[5].Area))
				Expect(producers[6].Device.Area).To(Equal(generator.DefaultProfiles[0].Area))
			})
		})

		Context("with invalid configuration", func() {
			It("should return error when config is nil", func() {
				_, err := producer.NewServer(nil)
				Expect(err).To(MatchError(ContainSubstring("config cannot be nil")))
			})

			DescribeTable("should reject",
				func(cfg *producer.ServerConfig, message string) {
					_, err := producer.NewServer(cfg)
					Expect(err).To(MatchError(ContainSubstring(message)))
				},
				Entry("zero producers", &producer.ServerConfig{
					Logger: testLogger(), Interval: time.Second, Secret: "s", APIURL: "http://x",
				}, "producer count"),
				Entry("zero interval", &producer.ServerConfig{
					Logger: testLogger(), ProducerCount: 1, Secret: "s", APIURL: "http://x",
				}, "interval"),
				Entry("missing logger", &producer.ServerConfig{
					ProducerCount: 1, Interval: time.Second, Secret: "s", APIURL: "http://x",
				}, "logger"),
				Entry("missing secret", &producer.ServerConfig{
					Logger: testLogger(), ProducerCount: 1, Interval: time.Second, APIURL: "http://x",
				}, "secret"),
				Entry("bad URL", &producer.ServerConfig{
					Logger: testLogger(), ProducerCount: 1, Interval: time.Second, Secret: "s", APIURL: "::",
				}, "data API"),
			)
		})
	})

	Describe("Run", func() {
		It("should post readings for every area until canceled", func() {
			ingester := &recordingIngester{}
			server, err := producer.NewServer(&producer.ServerConfig{
				Logger:        testLogger(),
				Ingester:      ingester,
				ProducerCount: 6,
				Interval:      10 * time.Millisecond,
			})
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- server.Run(ctx) }()

			Eventually(func() int { return len(ingester.areas()) }).
				WithTimeout(2 * time.Second).Should(Equal(6))

			cancel()
			Eventually(done).WithTimeout(2 * time.Second).Should(Receive(BeNil()))

			settled := ingester.count()
			Consistently(ingester.count).WithTimeout(50 * time.Millisecond).Should(Equal(settled))
		})

		It("should keep going when ingest fails", func() {
			ingester := &recordingIngester{err: errors.New("connection refused")}
			server, err := producer.NewServer(&producer.ServerConfig{
				Logger:        testLogger(),
				Ingester:      ingester,
				ProducerCount: 1,
				Interval:      5 * time.Millisecond,
			})
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			Expect(server.Run(ctx)).To(Succeed())
			Expect(ingester.count()).To(BeZero())
		})
	})
})
