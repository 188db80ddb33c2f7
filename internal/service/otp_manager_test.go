package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"doc-chat/internal/domain"
)

var otpPattern = regexp.MustCompile(`^[0-9]{6}$`)

func newTestOTPManager(repo *mockUserRepo, clock *fakeClock, opts ...OTPManagerOption) *OTPManager {
	opts = append([]OTPManagerOption{WithOTPClock(clock.Now)}, opts...)
	return NewOTPManager(zap.NewNop(), repo, 5*time.Minute, 3, opts...)
}

func TestOTPManagerIssue_CodeShapeAndExpiry(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(repo, "u1", "a@b.com", false)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(t0)
	mgr := newTestOTPManager(repo, clock)

	for i := 0; i < 50; i++ {
		otp, err := mgr.Issue(context.Background(), " A@B.com ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !otpPattern.MatchString(otp.Code) {
			t.Fatalf("code %q does not match 6 digits", otp.Code)
		}
		if otp.Code[0] == '0' {
			t.Fatalf("code %q has a leading zero", otp.Code)
		}
		if !otp.ExpiresAt.Equal(t0.Add(300 * time.Second)) {
			t.Fatalf("expected expiry at T+300s, got %v", otp.ExpiresAt)
		}
	}

	stored := repo.get("a@b.com")
	if !stored.HasPendingOTP() {
		t.Fatalf("expected pending otp to be stored")
	}
	if otpPattern.MatchString(stored.OtpCodeHash) {
		t.Fatalf("expected stored code to be hashed")
	}
}

func TestOTPManagerIssue_Errors(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(repo, "u1", "done@b.com", true)
	mgr := newTestOTPManager(repo, newFakeClock(time.Now()))

	if _, err := mgr.Issue(context.Background(), "missing@b.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := mgr.Issue(context.Background(), "done@b.com"); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
	if _, err := mgr.Issue(context.Background(), "  "); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestOTPManagerVerify_SuccessThenAlreadyVerified(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(repo, "u1", "a@b.com", false)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(t0)
	observer := &countingOTPObserver{}
	mgr := newTestOTPManager(repo, clock, WithOTPObserver(observer))

	otp, err := mgr.Issue(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.Advance(299 * time.Second)
	user, err := mgr.Verify(context.Background(), "a@b.com", otp.Code)
	if err != nil {
		t.Fatalf("expected verify success at T+299s, got %v", err)
	}
	if !user.VerifiedEmail || user.EmailVerifiedAt == nil {
		t.Fatalf("expected returned user to be verified")
	}

	stored := repo.get("a@b.com")
	if !stored.VerifiedEmail {
		t.Fatalf("expected stored user to be verified")
	}
	if stored.OtpCodeHash != "" || stored.OtpExpiresAt != nil {
		t.Fatalf("expected code and expiry to be cleared together")
	}

	clock.Advance(2 * time.Second)
	if _, err := mgr.Verify(context.Background(), "a@b.com", otp.Code); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified on second verify, got %v", err)
	}
	if _, err := mgr.Issue(context.Background(), "a@b.com"); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified on issue after verify, got %v", err)
	}

	if observer.events[OTPEventIssued] != 1 || observer.events[OTPEventVerified] != 1 {
		t.Fatalf("unexpected observer events: %+v", observer.events)
	}
}

func TestOTPManagerVerify_ExpiresAtBoundary(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(repo, "u1", "a@b.com", false)
	clock := newFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	mgr := newTestOTPManager(repo, clock)

	otp, err := mgr.Issue(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.Advance(300 * time.Second)
	if _, err := mgr.Verify(context.Background(), "a@b.com", otp.Code); !errors.Is(err, ErrOTPInvalidOrExpired) {
		t.Fatalf("expected ErrOTPInvalidOrExpired at exactly T+300s, got %v", err)
	}
	if repo.get("a@b.com").VerifiedEmail {
		t.Fatalf("expired code must not verify the user")
	}
}

func TestOTPManagerVerify_ReissueInvalidatesPreviousCode(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(repo, "u1", "a@b.com", false)
	clock := newFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	mgr := newTestOTPManager(repo, clock)

	first, err := mgr.Issue(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("issue first: %v", err)
	}
	clock.Advance(10 * time.Second)

	var second OTP
	for {
		second, err = mgr.Issue(context.Background(), "a@b.com")
		if err != nil {
			t.Fatalf("issue second: %v", err)
		}
		if second.Code != first.Code {
			break
		}
	}
	clock.Advance(10 * time.Second)

	if _, err := mgr.Verify(context.Background(), "a@b.com", first.Code); !errors.Is(err, ErrOTPInvalidOrExpired) {
		t.Fatalf("expected stale code to be rejected, got %v", err)
	}
	if _, err := mgr.Verify(context.Background(), "a@b.com", second.Code); err != nil {
		t.Fatalf("expected latest code to verify, got %v", err)
	}
}

func TestOTPManagerVerify_NoPendingCode(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(repo, "u1", "a@b.com", false)
	mgr := newTestOTPManager(repo, newFakeClock(time.Now()))

	if _, err := mgr.Verify(context.Background(), "a@b.com", "123456"); !errors.Is(err, ErrOTPInvalidOrExpired) {
		t.Fatalf("expected ErrOTPInvalidOrExpired without pending code, got %v", err)
	}
	if _, err := mgr.Verify(context.Background(), "nobody@b.com", "123456"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestOTPManagerVerify_LocksAfterMaxAttempts(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(repo, "u1", "a@b.com", false)
	clock := newFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	mgr := newTestOTPManager(repo, clock)

	otp, err := mgr.Issue(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	wrong := "100000"
	if otp.Code == wrong {
		wrong = "100001"
	}

	for i := 0; i < 3; i++ {
		if _, err := mgr.Verify(context.Background(), "a@b.com", wrong); !errors.Is(err, ErrOTPInvalidOrExpired) {
			t.Fatalf("attempt %d: expected ErrOTPInvalidOrExpired, got %v", i+1, err)
		}
	}

	if _, err := mgr.Verify(context.Background(), "a@b.com", otp.Code); !errors.Is(err, ErrOTPTooManyAttempts) {
		t.Fatalf("expected ErrOTPTooManyAttempts even with correct code, got %v", err)
	}

	fresh, err := mgr.Issue(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if _, err := mgr.Verify(context.Background(), "a@b.com", fresh.Code); err != nil {
		t.Fatalf("expected new code to reset attempts, got %v", err)
	}
}

func TestOTPManagerVerify_MalformedCodeCountsAsAttempt(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(repo, "u1", "a@b.com", false)
	mgr := newTestOTPManager(repo, newFakeClock(time.Now()))

	if _, err := mgr.Issue(context.Background(), "a@b.com"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := mgr.Verify(context.Background(), "a@b.com", "12ab"); !errors.Is(err, ErrOTPInvalidOrExpired) {
		t.Fatalf("expected ErrOTPInvalidOrExpired, got %v", err)
	}
	if got := repo.get("a@b.com").OtpAttempts; got != 1 {
		t.Fatalf("expected 1 attempt recorded, got %d", got)
	}
}

func TestOTPManagerVerify_ConcurrentSingleConsumption(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(repo, "u1", "a@b.com", false)
	mgr := newTestOTPManager(repo, newFakeClock(time.Now()))

	otp, err := mgr.Issue(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := mgr.Verify(context.Background(), "a@b.com", otp.Code); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, ErrAlreadyVerified) && !errors.Is(err, ErrOTPInvalidOrExpired) && !errors.Is(err, ErrOTPTooManyAttempts) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful verify, got %d", successes)
	}
}

// gatedUserRepo retiene las primeras lecturas por email hasta que todas
// llegaron, para que los requests concurrentes vean el mismo contador.
type gatedUserRepo struct {
	*mockUserRepo
	mu      sync.Mutex
	calls   int
	gate    int
	arrived sync.WaitGroup
	release chan struct{}
}

func newGatedUserRepo(repo *mockUserRepo, gate int) *gatedUserRepo {
	g := &gatedUserRepo{mockUserRepo: repo, gate: gate, release: make(chan struct{})}
	g.arrived.Add(gate)
	return g
}

func (g *gatedUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	user, err := g.mockUserRepo.GetByEmail(ctx, email)
	g.mu.Lock()
	g.calls++
	held := g.calls <= g.gate
	g.mu.Unlock()
	if held {
		g.arrived.Done()
		<-g.release
	}
	return user, err
}

func TestOTPManagerVerify_ConcurrentGuessesRespectMaxAttempts(t *testing.T) {
	base := newMockUserRepo()
	seedUser(base, "u1", "a@b.com", false)
	clock := newFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	otp, err := newTestOTPManager(base, clock).Issue(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	wrong := "100000"
	if otp.Code == wrong {
		wrong = "100001"
	}

	const guesses = 10
	repo := newGatedUserRepo(base, guesses)
	mgr := NewOTPManager(zap.NewNop(), repo, 5*time.Minute, 3, WithOTPClock(clock.Now))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[error]int)
	)
	for i := 0; i < guesses; i++ {
		code := wrong
		if i == guesses-1 {
			code = otp.Code
		}
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			_, err := mgr.Verify(context.Background(), "a@b.com", code)
			mu.Lock()
			results[err]++
			mu.Unlock()
		}(code)
	}
	repo.arrived.Wait()
	close(repo.release)
	wg.Wait()

	evaluated := results[nil] + results[ErrOTPInvalidOrExpired]
	if evaluated != 3 {
		t.Fatalf("expected exactly 3 guesses to be compared, got %v", results)
	}
	if results[ErrOTPTooManyAttempts] != guesses-3 {
		t.Fatalf("expected %d locked guesses, got %v", guesses-3, results)
	}
	if verified := base.get("a@b.com").VerifiedEmail; verified != (results[nil] == 1) {
		t.Fatalf("verified=%v does not match results %v", verified, results)
	}
}

func TestVerifyOTPHash(t *testing.T) {
	hash, err := hashOTP("482913")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !verifyOTP("482913", hash) {
		t.Fatalf("expected matching code to verify")
	}
	if verifyOTP("482914", hash) {
		t.Fatalf("expected different code to fail")
	}
	if verifyOTP("482913", "no-separator") {
		t.Fatalf("expected malformed hash to fail")
	}
}
