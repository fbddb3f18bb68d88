package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/docqa/docqa-api/internal/core/domain"
	"github.com/docqa/docqa-api/internal/core/policy"
	"github.com/docqa/docqa-api/internal/infrastructure/credential"
	"github.com/docqa/docqa-api/internal/infrastructure/db/memory"
)

// memRevoker is an in-process TokenRevoker.
type memRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func (r *memRevoker) Revoke(_ context.Context, id string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revoked == nil {
		r.revoked = make(map[string]time.Time)
	}
	r.revoked[id] = until
	return nil
}

func (r *memRevoker) IsRevoked(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[id]
	return ok, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.AuthzEvent
}

func (s *recordingSink) Record(e domain.AuthzEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) all() []domain.AuthzEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuthzEvent(nil), s.events...)
}

// stubIndex counts calls so tests can assert that denied requests never
// reach the index.
type stubIndex struct {
	mu       sync.Mutex
	adds     int
	queries  int
	deletes  int
	clears   int
	chunks   []domain.Chunk
	hits     []domain.ScoredChunk
	deleteN  int
	queryErr error
}

func (x *stubIndex) Add(_ context.Context, chunks []domain.Chunk, ids []string) ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.adds++
	x.chunks = append(x.chunks, chunks...)
	return ids, nil
}

func (x *stubIndex) Query(_ context.Context, _ string, k int) ([]domain.ScoredChunk, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.queries++
	if x.queryErr != nil {
		return nil, x.queryErr
	}
	if k < len(x.hits) {
		return x.hits[:k], nil
	}
	return x.hits, nil
}

func (x *stubIndex) Delete(_ context.Context, _ string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.deletes++
	if x.deleteN == 0 {
		return 0, domain.ErrDocumentNotFound
	}
	return x.deleteN, nil
}

func (x *stubIndex) List(context.Context) ([]domain.DocumentSummary, error) {
	return nil, nil
}

func (x *stubIndex) Clear(context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.clears++
	return nil
}

func (x *stubIndex) addCount() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.adds
}

type stubSplitter struct {
	chunks []domain.Chunk
	err    error
}

func (s *stubSplitter) Split(context.Context, io.ReaderAt, int64) ([]domain.Chunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.Chunk, len(s.chunks))
	for i, c := range s.chunks {
		out[i] = domain.Chunk{Text: c.Text, Metadata: map[string]any{}}
		for k, v := range c.Metadata {
			out[i].Metadata[k] = v
		}
	}
	return out, nil
}

type stubPipeline struct {
	context  string
	question string
	answer   *domain.Answer
	err      error
}

func (p *stubPipeline) Ask(_ context.Context, docContext, question string) (*domain.Answer, error) {
	p.context, p.question = docContext, question
	if p.err != nil {
		return nil, p.err
	}
	a := *p.answer
	return &a, nil
}

// fixture wires the identity service and gate over the in-memory store.
type fixture struct {
	repo     *memory.IdentityRepository
	creds    *credential.Store
	revoker  *memRevoker
	engine   *policy.Engine
	identity *IdentityService
	audit    *recordingSink
	gate     *Gate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	rs, err := policy.Default()
	if err != nil {
		t.Fatalf("default policy: %v", err)
	}
	engine, err := policy.New(rs)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	revoker := &memRevoker{}
	creds, err := credential.NewStore("test-secret", time.Hour,
		credential.WithRevoker(revoker), credential.WithCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("credential store: %v", err)
	}

	repo := memory.NewIdentityRepository()
	audit := &recordingSink{}
	return &fixture{
		repo:     repo,
		creds:    creds,
		revoker:  revoker,
		engine:   engine,
		identity: NewIdentityService(repo, creds, engine, zerolog.Nop()),
		audit:    audit,
		gate:     NewGate(creds, repo, engine, audit, zerolog.Nop()),
	}
}

// login registers email and returns its user and bearer token.
func (f *fixture) login(t *testing.T, email string) (*domain.User, string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.identity.Register(ctx, email, "password123", ""); err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	token, user, err := f.identity.Login(ctx, email, "password123")
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return user, token
}

func (f *fixture) roleID(t *testing.T, name string) int64 {
	t.Helper()
	roles, err := f.repo.ListRoles(context.Background())
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	for _, r := range roles {
		if r.Name == name {
			return r.ID
		}
	}
	t.Fatalf("role %q not found", name)
	return 0
}
