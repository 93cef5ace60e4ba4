package chat

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gptgate/internal/common/apperror"
	"gptgate/internal/features/account/models"
	account "gptgate/internal/features/account/service"
)

// fakeAccounts is an in-memory stand-in for the account service, keyed by
// the raw external id for test readability.
type fakeAccounts struct {
	users       map[string]*models.User
	invitations map[string]string // code -> name
	issued      int
	debits      int
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		users:       make(map[string]*models.User),
		invitations: make(map[string]string),
	}
}

func (f *fakeAccounts) addUser(externalID, name, role string, credits int64) {
	f.users[externalID] = &models.User{
		ID:      models.Digest(externalID),
		Name:    name,
		Credits: credits,
		Role:    role,
	}
}

func (f *fakeAccounts) User(ctx context.Context, externalID string) (*models.User, error) {
	u, ok := f.users[externalID]
	if !ok {
		return nil, apperror.NotFound("user", externalID)
	}
	return u, nil
}

func (f *fakeAccounts) Issue(ctx context.Context, name string) (string, error) {
	f.issued++
	code := fmt.Sprintf("CODE%03d", f.issued)
	f.invitations[code] = name
	return code, nil
}

func (f *fakeAccounts) Redeem(ctx context.Context, code, externalID string) (*models.User, error) {
	name, ok := f.invitations[code]
	if !ok {
		return nil, apperror.NotFound("invitation", code)
	}
	delete(f.invitations, code)
	f.addUser(externalID, name, models.RoleUser, models.InitialCredits)
	return f.users[externalID], nil
}

func (f *fakeAccounts) Balance(ctx context.Context, externalID string) (int64, error) {
	u, ok := f.users[externalID]
	if !ok {
		return 0, apperror.NotFound("user", externalID)
	}
	return u.Credits, nil
}

func (f *fakeAccounts) DebitChatTurn(ctx context.Context, externalID string) (int64, error) {
	u, ok := f.users[externalID]
	if !ok {
		return 0, apperror.NotFound("user", externalID)
	}
	if u.Credits < account.ChatTurnCost {
		return u.Credits, apperror.InsufficientCredits(u.Credits, account.ChatTurnCost)
	}
	u.Credits -= account.ChatTurnCost
	f.debits++
	return u.Credits, nil
}

// fakeTransport records every outbound side effect in order.
type fakeTransport struct {
	nextID  int64
	texts   []string
	photos  []string
	deleted []int64
}

func (f *fakeTransport) SendText(ctx context.Context, chatID int64, text string) (int64, error) {
	f.nextID++
	f.texts = append(f.texts, text)
	return f.nextID, nil
}

func (f *fakeTransport) SendPhoto(ctx context.Context, chatID int64, photoURL string) error {
	f.photos = append(f.photos, photoURL)
	return nil
}

func (f *fakeTransport) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

type fakeAI struct {
	completions int
	images      int
	reply       string
	lastHistory []Turn
}

func (f *fakeAI) Complete(ctx context.Context, model string, history []Turn) (Turn, error) {
	f.completions++
	f.lastHistory = append([]Turn(nil), history...)
	return Turn{Role: RoleAssistant, Content: f.reply}, nil
}

func (f *fakeAI) GenerateImage(ctx context.Context, prompt string, n int, size string) ([]string, error) {
	f.images++
	return []string{"https://img.example/" + strconv.Itoa(f.images)}, nil
}

type fixture struct {
	orch     *Orchestrator
	sessions *Store
	accounts *fakeAccounts
	tg       *fakeTransport
	ai       *fakeAI
}

func newFixture() *fixture {
	accounts := newFakeAccounts()
	tg := &fakeTransport{}
	ai := &fakeAI{reply: "hi there"}
	sessions := NewStore()
	orch := NewOrchestrator(sessions, accounts, tg, ai,
		NewBudgeter(charCounter{}), "gpt-3.5-turbo", "1024x1024")
	return &fixture{orch: orch, sessions: sessions, accounts: accounts, tg: tg, ai: ai}
}

func (fx *fixture) send(userID int64, text string) {
	fx.orch.HandleMessage(context.Background(), Inbound{
		UserID: userID,
		ChatID: userID * 10,
		Text:   text,
	})
}

func TestNonTextMessageIgnored(t *testing.T) {
	fx := newFixture()
	fx.send(1, "")

	assert.Empty(t, fx.tg.texts)
	assert.Equal(t, 0, fx.sessions.Len())
}

func TestNewUserIsPromptedForCode(t *testing.T) {
	fx := newFixture()
	fx.send(1, "hello")

	require.Equal(t, []string{"Enter the invitation code:"}, fx.tg.texts)
	assert.Equal(t, StatusInvitationCode, fx.sessions.Get(1).Status)
}

func TestWrongCodeIncrementsAttempts(t *testing.T) {
	fx := newFixture()
	fx.send(1, "hello")
	fx.send(1, "bogus")

	assert.Equal(t, "The code is incorrect.", fx.tg.texts[len(fx.tg.texts)-1])
	sess := fx.sessions.Get(1)
	assert.Equal(t, StatusInvitationCode, sess.Status)
	assert.Equal(t, 1, sess.Attempts)
}

func TestAttemptCapSilentlyDropsFurtherCodes(t *testing.T) {
	fx := newFixture()
	fx.send(1, "hello")
	sess := fx.sessions.Get(1)
	sess.Attempts = MaxInvitationCodeAttempts + 1

	sent := len(fx.tg.texts)
	fx.send(1, "another-guess")

	assert.Equal(t, sent, len(fx.tg.texts), "no reply past the attempt cap")
	assert.Equal(t, StatusInvitationCode, sess.Status)
}

func TestInviteAndRedeemFlow(t *testing.T) {
	fx := newFixture()
	fx.accounts.addUser("9", "A", models.RoleAdmin, models.InitialCredits)

	fx.send(9, "/invite Bob")
	require.Len(t, fx.tg.texts, 2)
	assert.Equal(t, "Invitation created. Code:", fx.tg.texts[0])
	code := fx.tg.texts[1]

	// Brand-new user: first message prompts for a code, the code registers.
	fx.send(5, "hi")
	fx.send(5, code)

	assert.Equal(t, "Welcome, Bob!", fx.tg.texts[len(fx.tg.texts)-1])
	assert.Equal(t, StatusIdle, fx.sessions.Get(5).Status)

	user, err := fx.accounts.User(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, "Bob", user.Name)
	assert.Equal(t, models.InitialCredits, user.Credits)
	assert.Equal(t, models.RoleUser, user.Role)

	// The code is single-use.
	fx.send(6, "hi")
	fx.send(6, code)
	assert.Equal(t, "The code is incorrect.", fx.tg.texts[len(fx.tg.texts)-1])
}

func TestInviteDeniedSilentlyForNonAdmin(t *testing.T) {
	fx := newFixture()
	fx.accounts.addUser("2", "Mallory", models.RoleUser, models.InitialCredits)

	fx.send(2, "/invite Eve")

	assert.Empty(t, fx.tg.texts, "denial sends nothing back")
	assert.Empty(t, fx.accounts.invitations)
}

func TestStartSendsGreeting(t *testing.T) {
	fx := newFixture()
	fx.accounts.addUser("3", "Carol", models.RoleUser, models.InitialCredits)

	fx.send(3, "/start")

	assert.Equal(t, []string{"Hello! =) Send a message to talk with ChatGPT."}, fx.tg.texts)
	assert.Equal(t, 0, fx.ai.completions)
}

func TestInsufficientCreditsRejectsChatTurn(t *testing.T) {
	fx := newFixture()
	fx.accounts.addUser("4", "Dave", models.RoleUser, 2)

	fx.send(4, "tell me a joke")

	assert.Equal(t, []string{"Not enough credits."}, fx.tg.texts)
	assert.Equal(t, 0, fx.ai.completions, "backend must not be called")

	balance, err := fx.accounts.Balance(context.Background(), "4")
	require.NoError(t, err)
	assert.Equal(t, int64(2), balance)
}

func TestChatTurnDebitsAndReplies(t *testing.T) {
	fx := newFixture()
	fx.accounts.addUser("7", "Grace", models.RoleUser, 10)

	fx.send(7, "tell me a joke")

	require.Equal(t, []string{"Generating response...", "hi there"}, fx.tg.texts)
	assert.Equal(t, []int64{1}, fx.tg.deleted, "placeholder replaced by the reply")

	balance, err := fx.accounts.Balance(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, int64(7), balance)

	sess := fx.sessions.Get(7)
	require.Len(t, sess.History, 2)
	assert.Equal(t, Turn{Role: RoleUser, Content: "tell me a joke"}, sess.History[0])
	assert.Equal(t, Turn{Role: RoleAssistant, Content: "hi there"}, sess.History[1])

	// Only the user turn is in the history handed to the backend; the reply
	// is appended after the call.
	require.Len(t, fx.ai.lastHistory, 1)
}

func TestOtherUsersBalanceUntouched(t *testing.T) {
	fx := newFixture()
	fx.accounts.addUser("7", "Grace", models.RoleUser, 10)
	fx.accounts.addUser("8", "Heidi", models.RoleUser, 10)

	fx.send(7, "hello there")

	balance, err := fx.accounts.Balance(context.Background(), "8")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestImageTurnSendsPhotoWithoutDebit(t *testing.T) {
	fx := newFixture()
	fx.accounts.addUser("7", "Grace", models.RoleUser, 10)

	fx.send(7, "/image a red bicycle")

	require.Len(t, fx.tg.photos, 1)
	assert.Equal(t, 1, fx.ai.images)
	assert.Equal(t, 0, fx.ai.completions)

	// Image generation does not consume credits; only chat turns do.
	balance, err := fx.accounts.Balance(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestRegisteredUserSkipsInvitationGate(t *testing.T) {
	fx := newFixture()
	fx.accounts.addUser("7", "Grace", models.RoleUser, 10)

	// Session state is fresh (init) after a restart, but the account exists,
	// so the first message is handled as a normal chat turn.
	fx.send(7, "good morning")

	assert.Equal(t, 1, fx.ai.completions)
	assert.NotContains(t, fx.tg.texts, "Enter the invitation code:")
}
