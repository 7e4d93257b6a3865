package audit_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"expenseflow/internal/audit"
	"expenseflow/internal/audit/store/memory"
	"expenseflow/pkg/requestcontext"
)

type ChainSuite struct {
	suite.Suite
	store *memory.InMemoryStore
	chain *audit.Chain
	ctx   context.Context
}

func TestChainSuite(t *testing.T) {
	suite.Run(t, new(ChainSuite))
}

func (s *ChainSuite) SetupTest() {
	s.store = memory.NewInMemoryStore()

	var err error
	s.chain, err = audit.NewChain(s.store)
	s.Require().NoError(err)
	s.ctx = context.Background()
}

func (s *ChainSuite) record(eventType string, data map[string]any) *audit.Entry {
	entry, err := s.chain.Record(s.ctx, "actor-1", "ExpenseRequest", "req-1", eventType, data)
	s.Require().NoError(err)
	return entry
}

func (s *ChainSuite) TestNewChain() {
	s.Run("nil store returns error", func() {
		_, err := audit.NewChain(nil)
		s.Error(err)
	})
}

func (s *ChainSuite) TestRecord() {
	s.Run("first entry links to the genesis sentinel", func() {
		entry := s.record("CREATE", map[string]any{"requestNumber": "REQ-2026-00001"})
		s.Equal(audit.GenesisHash, entry.PrevHash)
		s.NotEmpty(entry.Hash)
	})

	s.Run("subsequent entries link to the previous hash", func() {
		first := s.record("SUBMIT", nil)
		second := s.record("AUTO_REVIEW", nil)
		s.Equal(first.Hash, second.PrevHash)
	})

	s.Run("stored hash matches recomputation from stored fields", func() {
		entry := s.record("APPROVE", map[string]any{"comment": "ok"})
		recomputed := audit.ComputeHash(entry.PrevHash, entry.EventDataJSON, entry.ActorID, entry.EntityType, entry.EntityID, entry.CreatedAt)
		s.Equal(entry.Hash, recomputed)
	})

	s.Run("uses the request-scoped clock", func() {
		at := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
		ctx := requestcontext.WithTime(s.ctx, at)
		entry, err := s.chain.Record(ctx, "actor-1", "ExpenseRequest", "req-1", "CREATE", nil)
		s.Require().NoError(err)
		s.Equal(at.Truncate(time.Microsecond), entry.CreatedAt)
	})
}

func (s *ChainSuite) TestVerify() {
	s.Run("empty chain is valid with count zero", func() {
		result, err := s.chain.Verify(s.ctx)
		s.Require().NoError(err)
		s.True(result.Valid)
		s.Equal(0, result.Count)
	})

	s.Run("untouched chain of N events verifies with count N", func() {
		for i := 0; i < 5; i++ {
			s.record("UPDATE", map[string]any{"i": i})
		}
		result, err := s.chain.Verify(s.ctx)
		s.Require().NoError(err)
		s.True(result.Valid)
		s.Equal(5, result.Count)
		s.Nil(result.FailedAt)
	})
}

func (s *ChainSuite) TestVerifyDetectsTampering() {
	s.Run("mutated hash is reported at that entry", func() {
		s.record("CREATE", nil)
		tampered := s.record("SUBMIT", nil)
		s.record("APPROVE", map[string]any{"comment": "ok"})

		s.store.Tamper(tampered.Seq, func(e *audit.Entry) { e.Hash = "0000" })

		result, err := s.chain.Verify(s.ctx)
		s.Require().NoError(err)
		s.False(result.Valid)
		s.Require().NotNil(result.FailedAt)
		s.Equal(tampered.ID, *result.FailedAt)
	})

	s.Run("mutated event data is reported at that entry", func() {
		s.SetupTest()
		s.record("CREATE", nil)
		tampered := s.record("APPROVE", map[string]any{"comment": "ok"})

		s.store.Tamper(tampered.Seq, func(e *audit.Entry) {
			e.EventDataJSON = `{"comment":"looks bad"}`
		})

		result, err := s.chain.Verify(s.ctx)
		s.Require().NoError(err)
		s.False(result.Valid)
		s.Require().NotNil(result.FailedAt)
		s.Equal(tampered.ID, *result.FailedAt)
	})

	s.Run("first tampered entry wins when several are altered", func() {
		s.SetupTest()
		var entries []*audit.Entry
		for i := 0; i < 4; i++ {
			entries = append(entries, s.record("UPDATE", map[string]any{"i": i}))
		}
		s.store.Tamper(entries[1].Seq, func(e *audit.Entry) { e.EventDataJSON = `{"i":99}` })
		s.store.Tamper(entries[3].Seq, func(e *audit.Entry) { e.Hash = "ffff" })

		result, err := s.chain.Verify(s.ctx)
		s.Require().NoError(err)
		s.False(result.Valid)
		s.Require().NotNil(result.FailedAt)
		s.Equal(entries[1].ID, *result.FailedAt)
	})
}

func (s *ChainSuite) TestConcurrentAppendsKeepOneLineage() {
	const writers = 16

	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := s.chain.Record(s.ctx, fmt.Sprintf("actor-%d", i), "ExpenseRequest", "req-1", "UPDATE", map[string]any{"writer": i})
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	result, err := s.chain.Verify(s.ctx)
	s.Require().NoError(err)
	s.True(result.Valid)
	s.Equal(writers, result.Count)

	entries, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	prev := audit.GenesisHash
	for _, entry := range entries {
		s.Equal(prev, entry.PrevHash)
		prev = entry.Hash
	}
}
