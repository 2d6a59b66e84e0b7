package duplicate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// checkConcurrently submits the same fingerprint from n goroutines and
// returns how many calls saw it as new
func checkConcurrently(store Store, n int) int32 {
	var (
		wg    sync.WaitGroup
		fresh atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer GinkgoRecover()
			defer wg.Done()
			seen, err := store.CheckAndAdd(context.Background(), "same-image")
			Expect(err).NotTo(HaveOccurred())
			if !seen {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()
	return fresh.Load()
}

var _ = Describe("MemoryStore", func() {
	var (
		store *MemoryStore
		ctx   context.Context
	)

	BeforeEach(func() {
		store = NewMemoryStore(3, 0)
		ctx = context.Background()
	})

	AfterEach(func() {
		store.Close()
	})

	It("remembers fingerprints", func() {
		seen, err := store.CheckAndAdd(ctx, "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeFalse())

		seen, err = store.CheckAndAdd(ctx, "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeTrue())
	})

	It("evicts the least recently used fingerprint when full", func() {
		for _, fp := range []string{"a", "b", "c", "d"} {
			_, err := store.CheckAndAdd(ctx, fp)
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(store.Len()).To(Equal(3))

		seen, _ := store.CheckAndAdd(ctx, "a")
		Expect(seen).To(BeFalse())
	})

	It("accepts exactly one of many concurrent identical submissions", func() {
		Expect(checkConcurrently(store, 50)).To(Equal(int32(1)))
	})

	When("entries have a ttl", func() {
		BeforeEach(func() {
			store = NewMemoryStore(10, 50*time.Millisecond)
		})

		It("forgets them after it passes", func() {
			seen, _ := store.CheckAndAdd(ctx, "a")
			Expect(seen).To(BeFalse())

			Eventually(func() bool {
				seen, _ := store.CheckAndAdd(ctx, "a")
				return seen
			}).WithTimeout(time.Second).WithPolling(20 * time.Millisecond).Should(BeFalse())
		})
	})
})

var _ = Describe("BoltStore", func() {
	var (
		dbPath string
		store  *BoltStore
		clock  time.Time
		ctx    context.Context
	)

	BeforeEach(func() {
		dbPath = filepath.Join(GinkgoT().TempDir(), "test.db")
		clock = time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)
		ctx = context.Background()

		var err error
		store, err = NewBoltStore(dbPath, 24*time.Hour)
		Expect(err).NotTo(HaveOccurred())
		store.now = func() time.Time { return clock }
	})

	AfterEach(func() {
		if store != nil {
			store.Close()
		}
	})

	It("remembers fingerprints", func() {
		seen, err := store.CheckAndAdd(ctx, "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeFalse())

		seen, err = store.CheckAndAdd(ctx, "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeTrue())
	})

	It("keeps fingerprints across reopen", func() {
		_, err := store.CheckAndAdd(ctx, "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Close()).To(Succeed())

		store, err = NewBoltStore(dbPath, 24*time.Hour)
		Expect(err).NotTo(HaveOccurred())
		store.now = func() time.Time { return clock }

		seen, err := store.CheckAndAdd(ctx, "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeTrue())
	})

	It("treats expired fingerprints as new and restarts their window", func() {
		_, err := store.CheckAndAdd(ctx, "a")
		Expect(err).NotTo(HaveOccurred())

		clock = clock.Add(25 * time.Hour)
		seen, err := store.CheckAndAdd(ctx, "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeFalse())

		clock = clock.Add(time.Hour)
		seen, err = store.CheckAndAdd(ctx, "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeTrue())
	})

	It("accepts exactly one of many concurrent identical submissions", func() {
		Expect(checkConcurrently(store, 20)).To(Equal(int32(1)))
	})

	Describe("Prune", func() {
		It("removes only expired fingerprints", func() {
			_, err := store.CheckAndAdd(ctx, "old")
			Expect(err).NotTo(HaveOccurred())

			clock = clock.Add(23 * time.Hour)
			_, err = store.CheckAndAdd(ctx, "recent")
			Expect(err).NotTo(HaveOccurred())

			clock = clock.Add(2 * time.Hour)
			removed, err := store.Prune(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(1))

			seen, _ := store.CheckAndAdd(ctx, "recent")
			Expect(seen).To(BeTrue())
		})
	})

	When("the file cannot be opened", func() {
		It("returns the error", func() {
			_, err := NewBoltStore(filepath.Join(GinkgoT().TempDir(), "missing", "test.db"), 0)
			Expect(err).To(MatchError(ContainSubstring("opening boltdb")))
		})
	})
})

var _ = Describe("PostgresStore", func() {
	var (
		store *PostgresStore
		ctx   context.Context
	)

	BeforeEach(func() {
		url := os.Getenv("RECEIPT_VALIDATOR_TEST_DATABASE_URL")
		if url == "" {
			Skip("RECEIPT_VALIDATOR_TEST_DATABASE_URL not set")
		}
		ctx = context.Background()

		var err error
		store, err = NewPostgresStore(ctx, url, time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.EnsureSchema(ctx)).To(Succeed())
	})

	AfterEach(func() {
		if store != nil {
			store.Close()
		}
	})

	It("remembers fingerprints", func() {
		fp := fmt.Sprintf("test-%d", time.Now().UnixNano())

		seen, err := store.CheckAndAdd(ctx, fp)
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeFalse())

		seen, err = store.CheckAndAdd(ctx, fp)
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeTrue())
	})

	It("requires a database url", func() {
		_, err := NewPostgresStore(ctx, "", time.Hour)
		Expect(err).To(HaveOccurred())
	})
})
