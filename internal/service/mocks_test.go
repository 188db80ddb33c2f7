package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"doc-chat/internal/domain"
)

type mockUserRepo struct {
	mu           sync.Mutex
	usersByID    map[string]domain.User
	usersByEmail map[string]string
	updateOTPErr error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usersByID[user.ID] = user
	if user.Email != "" {
		m.usersByEmail[user.Email] = user.ID
	}
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	id, ok := m.usersByEmail[email]
	m.mu.Unlock()
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.GetByID(ctx, id)
}

func (m *mockUserRepo) UpdateOTP(_ context.Context, id, otpHash string, otpExpiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateOTPErr != nil {
		return m.updateOTPErr
	}
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.OtpCodeHash = otpHash
	user.OtpExpiresAt = &otpExpiresAt
	user.OtpAttempts = 0
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) IncrementOTPAttempts(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	user.OtpAttempts++
	m.usersByID[id] = user
	return user.OtpAttempts, nil
}

func (m *mockUserRepo) ConsumeOTP(_ context.Context, id, otpHash string, verifiedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok || user.VerifiedEmail || user.OtpCodeHash != otpHash {
		return false, nil
	}
	user.VerifiedEmail = true
	user.EmailVerifiedAt = &verifiedAt
	user.OtpCodeHash = ""
	user.OtpExpiresAt = nil
	user.OtpAttempts = 0
	m.usersByID[id] = user
	return true, nil
}

func (m *mockUserRepo) get(email string) domain.User {
	u, _ := m.GetByEmail(context.Background(), email)
	return u
}

type mockEmailSender struct {
	calls       int
	lastTo      string
	lastCode    string
	lastExpires time.Time
	err         error
}

func (m *mockEmailSender) SendVerificationOTP(_ context.Context, toEmail string, code string, expiresAt time.Time) error {
	m.calls++
	m.lastTo = toEmail
	m.lastCode = code
	m.lastExpires = expiresAt
	return m.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingOTPObserver struct {
	mu     sync.Mutex
	events map[string]int
}

func (o *countingOTPObserver) OTPEvent(event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.events == nil {
		o.events = make(map[string]int)
	}
	o.events[event]++
}

func seedUser(repo *mockUserRepo, id, email string, verified bool) domain.User {
	user := domain.User{
		ID:            id,
		FirstName:     "Ada",
		LastName:      "Lovelace",
		Email:         email,
		VerifiedEmail: verified,
		CreatedAt:     time.Now().UTC(),
	}
	_ = repo.Create(context.Background(), user)
	return user
}

var errUUIDSyntax = errors.New("ERROR: invalid input syntax for type uuid (SQLSTATE 22P02)")

// uuidColumn reproduce el cast de Postgres sobre columnas uuid.
func uuidColumn(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errUUIDSyntax
	}
	return nil
}

type mockChatRepo struct {
	mu    sync.Mutex
	chats map[string]domain.Chat
	order []string
}

func newMockChatRepo() *mockChatRepo {
	return &mockChatRepo{chats: make(map[string]domain.Chat)}
}

func (m *mockChatRepo) Create(_ context.Context, chat domain.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat.Messages = nil
	m.chats[chat.ID] = chat
	m.order = append(m.order, chat.ID)
	return nil
}

func (m *mockChatRepo) ListByUser(_ context.Context, userID string) ([]domain.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Chat
	for i := len(m.order) - 1; i >= 0; i-- {
		c, ok := m.chats[m.order[i]]
		if ok && c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockChatRepo) GetByID(_ context.Context, id, userID string) (domain.Chat, error) {
	if err := uuidColumn(id); err != nil {
		return domain.Chat{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[id]
	if !ok || c.UserID != userID {
		return domain.Chat{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *mockChatRepo) Update(_ context.Context, id, userID, name string, threadID *string) (domain.Chat, error) {
	if err := uuidColumn(id); err != nil {
		return domain.Chat{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[id]
	if !ok || c.UserID != userID {
		return domain.Chat{}, pgx.ErrNoRows
	}
	c.Name = name
	if threadID != nil {
		v := *threadID
		c.ThreadID = &v
	}
	m.chats[id] = c
	return c, nil
}

func (m *mockChatRepo) SetThreadID(_ context.Context, id, userID, threadID string) error {
	if err := uuidColumn(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[id]
	if !ok || c.UserID != userID {
		return pgx.ErrNoRows
	}
	c.ThreadID = &threadID
	m.chats[id] = c
	return nil
}

func (m *mockChatRepo) Delete(_ context.Context, id, userID string) error {
	if err := uuidColumn(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[id]
	if !ok || c.UserID != userID {
		return pgx.ErrNoRows
	}
	delete(m.chats, id)
	return nil
}

type mockMessageRepo struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (m *mockMessageRepo) Create(_ context.Context, message domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
	return nil
}

func (m *mockMessageRepo) ListByChatID(_ context.Context, chatID string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Message
	for _, msg := range m.messages {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out, nil
}

// mockFileRepo resuelve la propiedad a traves de chats.
type mockFileRepo struct {
	mu    sync.Mutex
	chats *mockChatRepo
	files []domain.UploadedFile
}

func (m *mockFileRepo) owned(f domain.UploadedFile, userID string) bool {
	m.chats.mu.Lock()
	defer m.chats.mu.Unlock()
	c, ok := m.chats.chats[f.ChatID]
	return ok && c.UserID == userID
}

func (m *mockFileRepo) Create(_ context.Context, file domain.UploadedFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = append(m.files, file)
	return nil
}

func (m *mockFileRepo) ListByUser(_ context.Context, userID string) ([]domain.UploadedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.UploadedFile
	for _, f := range m.files {
		if m.owned(f, userID) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *mockFileRepo) ListSelectedByChat(_ context.Context, chatID string) ([]domain.UploadedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.UploadedFile
	for _, f := range m.files {
		if f.ChatID == chatID && f.Selected {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *mockFileRepo) GetByID(_ context.Context, id, userID string) (domain.UploadedFile, error) {
	if err := uuidColumn(id); err != nil {
		return domain.UploadedFile{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.files {
		if f.ID == id && m.owned(f, userID) {
			return f, nil
		}
	}
	return domain.UploadedFile{}, pgx.ErrNoRows
}

func (m *mockFileRepo) UpdateSelected(_ context.Context, id, userID string, selected bool) (domain.UploadedFile, error) {
	if err := uuidColumn(id); err != nil {
		return domain.UploadedFile{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, f := range m.files {
		if f.ID == id && m.owned(f, userID) {
			m.files[i].Selected = selected
			return m.files[i], nil
		}
	}
	return domain.UploadedFile{}, pgx.ErrNoRows
}

func (m *mockFileRepo) Delete(_ context.Context, id, userID string) error {
	if err := uuidColumn(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, f := range m.files {
		if f.ID == id && m.owned(f, userID) {
			m.files = append(m.files[:i], m.files[i+1:]...)
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *mockFileRepo) ExistsByName(_ context.Context, chatID, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.files {
		if f.ChatID == chatID && f.Name == name {
			return true, nil
		}
	}
	return false, nil
}
