package http

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"doc-chat/internal/domain"
	"doc-chat/internal/llm"
)

type mockUserRepo struct {
	mu           sync.Mutex
	usersByID    map[string]domain.User
	usersByEmail map[string]string
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
	m.usersByEmail[user.Email] = user.ID
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

type mockEmailSender struct {
	lastTo      string
	lastCode    string
	lastExpires time.Time
	err         error
}

func (m *mockEmailSender) SendVerificationOTP(_ context.Context, toEmail string, code string, expiresAt time.Time) error {
	m.lastTo = toEmail
	m.lastCode = code
	m.lastExpires = expiresAt
	return m.err
}

type mockLimiter struct {
	allow bool
}

func (m *mockLimiter) Allow(_ context.Context, _ string) bool {
	return m.allow
}

type mockChatRepo struct {
	mu    sync.Mutex
	chats map[string]domain.Chat
}

func newMockChatRepo() *mockChatRepo {
	return &mockChatRepo{chats: make(map[string]domain.Chat)}
}

func (m *mockChatRepo) Create(_ context.Context, chat domain.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[chat.ID] = chat
	return nil
}

func (m *mockChatRepo) ListByUser(_ context.Context, userID string) ([]domain.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Chat
	for _, c := range m.chats {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockChatRepo) GetByID(_ context.Context, id, userID string) (domain.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[id]
	if !ok || c.UserID != userID {
		return domain.Chat{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *mockChatRepo) Update(_ context.Context, id, userID, name string, threadID *string) (domain.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[id]
	if !ok || c.UserID != userID {
		return domain.Chat{}, pgx.ErrNoRows
	}
	c.Name = name
	if threadID != nil {
		c.ThreadID = threadID
	}
	m.chats[id] = c
	return c, nil
}

func (m *mockChatRepo) SetThreadID(_ context.Context, id, userID, threadID string) error {
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

type mockFileRepo struct {
	mu    sync.Mutex
	chats *mockChatRepo
	files []domain.UploadedFile
}

func (m *mockFileRepo) owner(chatID string) string {
	m.chats.mu.Lock()
	defer m.chats.mu.Unlock()
	return m.chats.chats[chatID].UserID
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
		if m.owner(f.ChatID) == userID {
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
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.files {
		if f.ID == id && m.owner(f.ChatID) == userID {
			return f, nil
		}
	}
	return domain.UploadedFile{}, pgx.ErrNoRows
}

func (m *mockFileRepo) UpdateSelected(_ context.Context, id, userID string, selected bool) (domain.UploadedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, f := range m.files {
		if f.ID == id && m.owner(f.ChatID) == userID {
			m.files[i].Selected = selected
			return m.files[i], nil
		}
	}
	return domain.UploadedFile{}, pgx.ErrNoRows
}

func (m *mockFileRepo) Delete(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, f := range m.files {
		if f.ID == id && m.owner(f.ChatID) == userID {
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

// scriptedProvider completa cada run en el primer poll y responde con reply.
type scriptedProvider struct {
	mu      sync.Mutex
	reply   string
	state   llm.RunState
	sent    []string
	threads int
}

func (p *scriptedProvider) CreateThread(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threads++
	return "thread_http", nil
}

func (p *scriptedProvider) CreateMessage(_ context.Context, _, _, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, content)
	return nil
}

func (p *scriptedProvider) CreateRun(context.Context, string, string) (string, error) {
	return "run_http", nil
}

func (p *scriptedProvider) GetRun(_ context.Context, _, runID string) (llm.RunStatus, error) {
	state := p.state
	if state == "" {
		state = llm.RunCompleted
	}
	return llm.RunStatus{ID: runID, State: state, LastError: "rate_limit_exceeded"}, nil
}

func (p *scriptedProvider) ListMessages(context.Context, string) ([]llm.ThreadMessage, error) {
	return []llm.ThreadMessage{{ID: "m1", Role: llm.RoleAssistant, Texts: []string{p.reply}}}, nil
}
