package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/askround/backend/internal/models"
)

// captureBroadcaster records emissions in delivery order.
type captureBroadcaster struct {
	mu      sync.Mutex
	updates []*models.Session
	deleted []string
}

func (b *captureBroadcaster) SessionUpdated(s *models.Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, s)
}

func (b *captureBroadcaster) SessionDeleted(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, sessionID)
}

func (b *captureBroadcaster) counts() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.updates), len(b.deleted)
}

// waitFor polls until the broadcaster has seen n total emissions.
func (b *captureBroadcaster) waitFor(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		u, d := b.counts()
		if u+d >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	u, d := b.counts()
	t.Fatalf("expected %d emissions, got %d updates and %d deletions", n, u, d)
}

func newTestStore(t *testing.T) (*Store, *captureBroadcaster) {
	t.Helper()
	bcast := &captureBroadcaster{}
	store := NewStore(NewMemoryRepository(), bcast, zap.NewNop())
	t.Cleanup(store.Close)
	return store, bcast
}

func TestCreateSession(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	session, err := store.Create(ctx, "team-allhands", "", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !session.IsAcceptingQuestions {
		t.Error("new session should accept questions")
	}
	if len(session.Questions) != 0 {
		t.Errorf("new session should have no questions, got %d", len(session.Questions))
	}
	if session.Name != "team-allhands" {
		t.Errorf("name should default to the id, got %q", session.Name)
	}
	if len(session.AdminPassword) != 8 {
		t.Errorf("admin password length = %d, want 8", len(session.AdminPassword))
	}
	for _, ch := range session.AdminPassword {
		if !strings.ContainsRune("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", ch) {
			t.Errorf("unexpected password character %q", ch)
		}
	}

	if _, err := store.Create(ctx, "team-allhands", "", true); !errors.Is(err, ErrSessionExists) {
		t.Errorf("duplicate create = %v, want ErrSessionExists", err)
	}
}

func TestAsk(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "s1", "", true); err != nil {
		t.Fatal(err)
	}

	session, err := store.Ask(ctx, "s1", "What is the roadmap?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if len(session.Questions) != 1 {
		t.Fatalf("questions = %d, want 1", len(session.Questions))
	}
	q := session.Questions[0]
	if q.Text != "What is the roadmap?" || q.Hidden || len(q.Upvotes) != 0 {
		t.Errorf("unexpected question state: %+v", q)
	}
	if q.SessionID != "s1" {
		t.Errorf("session_id = %q, want s1", q.SessionID)
	}
	if q.ID == "" {
		t.Error("question should get a fresh id")
	}

	if _, err := store.Ask(ctx, "s1", "   "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("blank ask = %v, want ErrEmptyText", err)
	}
	if _, err := store.Ask(ctx, "missing", "hello"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("ask on missing session = %v, want ErrSessionNotFound", err)
	}
}

func TestAskClosedSessionNeverGrows(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	created, _ := store.Create(ctx, "s1", "", true)
	if _, err := store.Ask(ctx, "s1", "Q1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SetAccepting(ctx, "s1", created.AdminPassword, false); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Ask(ctx, "s1", "Q2"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("ask on closed session = %v, want ErrSessionClosed", err)
	}
	session, _ := store.Get(ctx, "s1")
	if len(session.Questions) != 1 {
		t.Errorf("closed session question count changed: %d", len(session.Questions))
	}

	// Upvotes and hide stay valid on a closed session.
	if _, err := store.Upvote(ctx, "s1", session.Questions[0].ID, "v1"); err != nil {
		t.Errorf("upvote on closed session: %v", err)
	}
	if _, err := store.SetHidden(ctx, "s1", session.Questions[0].ID, created.AdminPassword, true); err != nil {
		t.Errorf("hide on closed session: %v", err)
	}
}

func TestUpvoteIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Create(ctx, "s1", "", true)
	session, _ := store.Ask(ctx, "s1", "Q1")
	qid := session.Questions[0].ID

	if _, err := store.Upvote(ctx, "s1", qid, "voter-a"); err != nil {
		t.Fatal(err)
	}
	session, err := store.Upvote(ctx, "s1", qid, "voter-a")
	if err != nil {
		t.Fatalf("re-upvote should be a no-op, not an error: %v", err)
	}
	if got := session.Questions[0].Upvotes; len(got) != 1 || got[0] != "voter-a" {
		t.Errorf("upvotes = %v, want [voter-a]", got)
	}

	session, _ = store.Upvote(ctx, "s1", qid, "voter-b")
	if session.Questions[0].VoteCount() != 2 {
		t.Errorf("votes = %d, want 2", session.Questions[0].VoteCount())
	}

	if _, err := store.Upvote(ctx, "s1", "nope", "voter-a"); !errors.Is(err, ErrQuestionNotFound) {
		t.Errorf("upvote on missing question = %v, want ErrQuestionNotFound", err)
	}
	if _, err := store.Upvote(ctx, "missing", qid, "voter-a"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("upvote on missing session = %v, want ErrSessionNotFound", err)
	}
}

func TestHideUnhideRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	created, _ := store.Create(ctx, "s1", "", true)
	session, _ := store.Ask(ctx, "s1", "Q1")
	qid := session.Questions[0].ID
	store.Upvote(ctx, "s1", qid, "v1")

	before, _ := store.Get(ctx, "s1")

	session, err := store.SetHidden(ctx, "s1", qid, created.AdminPassword, true)
	if err != nil {
		t.Fatal(err)
	}
	if !session.Questions[0].Hidden {
		t.Error("question should be hidden")
	}

	session, err = store.SetHidden(ctx, "s1", qid, created.AdminPassword, false)
	if err != nil {
		t.Fatal(err)
	}
	after := session.Questions[0]
	orig := before.Questions[0]
	if after.Hidden {
		t.Error("question should be visible again")
	}
	if after.Text != orig.Text || !after.Created.Equal(orig.Created) || len(after.Upvotes) != len(orig.Upvotes) {
		t.Errorf("hide/unhide changed unrelated state: before %+v after %+v", orig, after)
	}
}

func TestModeratorCommandsRequireCredential(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Create(ctx, "s1", "", true)
	session, _ := store.Ask(ctx, "s1", "Q1")
	qid := session.Questions[0].ID

	if _, err := store.SetHidden(ctx, "s1", qid, "WRONG", true); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("hide with bad password = %v, want ErrUnauthorized", err)
	}
	if _, err := store.SetAccepting(ctx, "s1", "WRONG", false); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("close with bad password = %v, want ErrUnauthorized", err)
	}
	if err := store.Delete(ctx, "s1", "WRONG"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("delete with bad password = %v, want ErrUnauthorized", err)
	}

	// Nothing above may have applied.
	current, _ := store.Get(ctx, "s1")
	if current.Questions[0].Hidden || !current.IsAcceptingQuestions {
		t.Error("rejected command partially applied")
	}
}

func TestDeleteSession(t *testing.T) {
	store, bcast := newTestStore(t)
	ctx := context.Background()

	created, _ := store.Create(ctx, "s1", "", true)
	store.Ask(ctx, "s1", "Q1")

	if err := store.Delete(ctx, "s1", created.AdminPassword); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("get after delete = %v, want ErrSessionNotFound", err)
	}

	err := store.Delete(ctx, "s1", created.AdminPassword)
	if !errors.Is(err, ErrAlreadyDeleted) {
		t.Errorf("second delete = %v, want ErrAlreadyDeleted", err)
	}
	if !errors.Is(err, ErrSessionNotFound) {
		t.Error("ErrAlreadyDeleted should also be a NotFound")
	}

	bcast.waitFor(t, 3) // create, ask, deleted
	_, deleted := bcast.counts()
	if deleted != 1 {
		t.Errorf("deletion notices = %d, want 1", deleted)
	}
}

func TestBroadcastsAreSanitizedAndOrdered(t *testing.T) {
	store, bcast := newTestStore(t)
	ctx := context.Background()

	store.Create(ctx, "s1", "", true)
	for i := 0; i < 5; i++ {
		if _, err := store.Ask(ctx, "s1", fmt.Sprintf("Q%d", i)); err != nil {
			t.Fatal(err)
		}
	}
	bcast.waitFor(t, 6)

	bcast.mu.Lock()
	defer bcast.mu.Unlock()
	for i, snap := range bcast.updates {
		if snap.AdminPassword != "" {
			t.Fatal("broadcast snapshot leaked the admin password")
		}
		if len(snap.Questions) != i {
			t.Errorf("snapshot %d carries %d questions, want %d (emission order broken)",
				i, len(snap.Questions), i)
		}
	}
}

// replay applies a fixed command script and returns the observable end state.
func replay(t *testing.T, store *Store) []string {
	t.Helper()
	ctx := context.Background()
	created, err := store.Create(ctx, "replay", "", true)
	if err != nil {
		t.Fatal(err)
	}
	pwd := created.AdminPassword
	store.Ask(ctx, "replay", "alpha")
	store.Ask(ctx, "replay", "beta")
	session, _ := store.Get(ctx, "replay")
	store.Upvote(ctx, "replay", session.Questions[0].ID, "v1")
	store.Upvote(ctx, "replay", session.Questions[0].ID, "v1")
	store.Upvote(ctx, "replay", session.Questions[1].ID, "v2")
	store.SetHidden(ctx, "replay", session.Questions[1].ID, pwd, true)
	store.SetAccepting(ctx, "replay", pwd, false)
	store.Ask(ctx, "replay", "gamma") // rejected, session closed

	final, _ := store.Get(ctx, "replay")
	var state []string
	state = append(state, fmt.Sprintf("accepting=%v", final.IsAcceptingQuestions))
	for _, q := range final.Questions {
		state = append(state, fmt.Sprintf("%s votes=%d hidden=%v", q.Text, q.VoteCount(), q.Hidden))
	}
	return state
}

func TestReplayDeterminism(t *testing.T) {
	a, _ := newTestStore(t)
	b, _ := newTestStore(t)

	first := replay(t, a)
	second := replay(t, b)
	if len(first) != len(second) {
		t.Fatalf("replay states differ in length: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("replay diverged at %d: %q vs %q", i, first[i], second[i])
		}
	}
	want := []string{"accepting=false", "alpha votes=1 hidden=false", "beta votes=1 hidden=true"}
	for i, w := range want {
		if first[i] != w {
			t.Errorf("state[%d] = %q, want %q", i, first[i], w)
		}
	}
}

func TestConcurrentCommandsOnOneSession(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Create(ctx, "s1", "", true)
	session, _ := store.Ask(ctx, "s1", "Q1")
	qid := session.Questions[0].ID

	const voters = 50
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := store.Upvote(ctx, "s1", qid, fmt.Sprintf("voter-%d", n)); err != nil {
				t.Errorf("upvote: %v", err)
			}
		}(i)
	}
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := store.Ask(ctx, "s1", fmt.Sprintf("concurrent-%d", n)); err != nil {
				t.Errorf("ask: %v", err)
			}
		}(i)
	}
	wg.Wait()

	final, _ := store.Get(ctx, "s1")
	if got := final.Question(qid).VoteCount(); got != voters {
		t.Errorf("votes = %d, want %d (lost update)", got, voters)
	}
	if got := len(final.Questions); got != voters+1 {
		t.Errorf("questions = %d, want %d", got, voters+1)
	}
	ids := make(map[string]bool)
	for _, q := range final.Questions {
		if ids[q.ID] {
			t.Errorf("duplicate question id %s", q.ID)
		}
		ids[q.ID] = true
	}
}

// The §-style end-to-end scenario: create, ask, upvote, close, hide, delete.
func TestSessionLifecycleScenario(t *testing.T) {
	store, bcast := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "S", "", true)
	if err != nil {
		t.Fatal(err)
	}
	pwd := created.AdminPassword

	session, err := store.Ask(ctx, "S", "Q1")
	if err != nil {
		t.Fatal(err)
	}
	q1 := session.Questions[0]
	if q1.Text != "Q1" || q1.Hidden || len(q1.Upvotes) != 0 {
		t.Fatalf("unexpected Q1: %+v", q1)
	}

	session, err = store.Upvote(ctx, "S", q1.ID, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if got := session.Questions[0].Upvotes; len(got) != 1 || got[0] != "v1" {
		t.Fatalf("upvotes = %v, want [v1]", got)
	}

	session, err = store.SetAccepting(ctx, "S", pwd, false)
	if err != nil {
		t.Fatal(err)
	}
	if session.IsAcceptingQuestions {
		t.Fatal("session should be closed")
	}

	if _, err := store.Ask(ctx, "S", "Q2"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("ask after close = %v, want ErrSessionClosed", err)
	}

	session, err = store.SetHidden(ctx, "S", q1.ID, pwd, true)
	if err != nil {
		t.Fatal(err)
	}
	if !session.Questions[0].Hidden {
		t.Fatal("Q1 should be hidden")
	}
	if vis := session.VisibleOnly(); len(vis.Questions) != 0 {
		t.Fatal("non-admin view still contains the hidden question")
	}

	if err := store.Delete(ctx, "S", pwd); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "S"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatal("session still reachable after delete")
	}

	bcast.waitFor(t, 6)
	bcast.mu.Lock()
	defer bcast.mu.Unlock()
	if len(bcast.deleted) != 1 || bcast.deleted[0] != "S" {
		t.Errorf("deletion notices = %v, want [S]", bcast.deleted)
	}
}

// gatedDeleteRepo parks DeleteSession until released so a test can hold the
// session lock inside a delete while other commands queue up behind it.
type gatedDeleteRepo struct {
	Repository
	entered chan struct{}
	release chan struct{}
}

func (g *gatedDeleteRepo) DeleteSession(ctx context.Context, id string) error {
	g.entered <- struct{}{}
	<-g.release
	return g.Repository.DeleteSession(ctx, id)
}

func TestRecreatedSessionSerializesBehindQueuedCommands(t *testing.T) {
	ctx := context.Background()
	repo := &gatedDeleteRepo{
		Repository: NewMemoryRepository(),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	store := NewStore(repo, nil, zap.NewNop())
	defer store.Close()

	created, err := store.Create(ctx, "s1", "", true)
	if err != nil {
		t.Fatal(err)
	}

	delDone := make(chan error, 1)
	go func() { delDone <- store.Delete(ctx, "s1", created.AdminPassword) }()
	<-repo.entered // delete now holds the session lock

	askDone := make(chan error, 1)
	go func() {
		_, err := store.Ask(ctx, "s1", "late question")
		askDone <- err
	}()
	// Let the ask queue up on the session lock behind the delete.
	time.Sleep(20 * time.Millisecond)

	repo.release <- struct{}{}
	if err := <-delDone; err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := <-askDone; !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("queued ask = %v, want ErrSessionNotFound", err)
	}

	// The ask resolved against the deleted session, so recreating and
	// closing the id cannot resurrect it inside the new aggregate.
	recreated, err := store.Create(ctx, "s1", "", true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.SetAccepting(ctx, "s1", recreated.AdminPassword, false); err != nil {
		t.Fatal(err)
	}
	final, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(final.Questions) != 0 {
		t.Fatalf("closed recreated session has %d questions, want 0", len(final.Questions))
	}
}

func TestSessionLockSurvivesDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryRepository(), nil, zap.NewNop())
	defer store.Close()

	created, err := store.Create(ctx, "s1", "", true)
	if err != nil {
		t.Fatal(err)
	}
	before := store.lockFor("s1")
	if err := store.Delete(ctx, "s1", created.AdminPassword); err != nil {
		t.Fatal(err)
	}
	if after := store.lockFor("s1"); after != before {
		t.Error("delete swapped the session mutex; commands already queued on it would race a recreated session")
	}
}

func TestAskResolvesSessionBeforeValidatingText(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryRepository(), nil, zap.NewNop())
	defer store.Close()

	if _, err := store.Ask(ctx, "missing", "   "); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("blank ask on unknown session = %v, want ErrSessionNotFound", err)
	}

	created, err := store.Create(ctx, "s1", "", true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.SetAccepting(ctx, "s1", created.AdminPassword, false); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Ask(ctx, "s1", "   "); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("blank ask on closed session = %v, want ErrSessionClosed", err)
	}
	if _, err := store.SetAccepting(ctx, "s1", created.AdminPassword, true); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Ask(ctx, "s1", "   "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("blank ask on open session = %v, want ErrEmptyText", err)
	}
}
