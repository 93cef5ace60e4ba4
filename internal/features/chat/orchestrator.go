// Package chat holds the conversation core: per-user session state, the
// token budgeter, and the orchestrator dispatching inbound messages through
// the invitation registry, credit ledger, and AI backend.
package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gptgate/internal/common/apperror"
	"gptgate/internal/common/logger"
	"gptgate/internal/features/account/models"
	account "gptgate/internal/features/account/service"
)

const (
	inviteCommand = "/invite"
	startCommand  = "/start"
	imageCommand  = "/image"
)

const (
	msgEnterCode     = "Enter the invitation code:"
	msgWrongCode     = "The code is incorrect."
	msgGreeting      = "Hello! =) Send a message to talk with ChatGPT."
	msgNoCredits     = "Not enough credits."
	msgGenerating    = "Generating response..."
	msgInviteCreated = "Invitation created. Code:"
)

// Inbound is one message event from the transport. Text is empty for
// non-text content.
type Inbound struct {
	UserID int64
	ChatID int64
	Text   string
}

// Transport sends replies back to the messaging platform.
type Transport interface {
	// SendText sends a message and returns its id, usable with DeleteMessage.
	SendText(ctx context.Context, chatID int64, text string) (int64, error)
	SendPhoto(ctx context.Context, chatID int64, photoURL string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// AIBackend is the stateless generative backend.
type AIBackend interface {
	Complete(ctx context.Context, model string, history []Turn) (Turn, error)
	GenerateImage(ctx context.Context, prompt string, n int, size string) ([]string, error)
}

// Accounts is the invitation registry plus credit ledger, implemented by the
// account service.
type Accounts interface {
	User(ctx context.Context, externalID string) (*models.User, error)
	Issue(ctx context.Context, name string) (string, error)
	Redeem(ctx context.Context, code, externalID string) (*models.User, error)
	Balance(ctx context.Context, externalID string) (int64, error)
	DebitChatTurn(ctx context.Context, externalID string) (int64, error)
}

// Orchestrator is the single entry point for inbound messages.
type Orchestrator struct {
	sessions  *Store
	accounts  Accounts
	transport Transport
	ai        AIBackend
	budgeter  *Budgeter

	chatModel string
	imageSize string
}

func NewOrchestrator(sessions *Store, accounts Accounts, transport Transport, ai AIBackend, budgeter *Budgeter, chatModel, imageSize string) *Orchestrator {
	return &Orchestrator{
		sessions:  sessions,
		accounts:  accounts,
		transport: transport,
		ai:        ai,
		budgeter:  budgeter,
		chatModel: chatModel,
		imageSize: imageSize,
	}
}

// HandleMessage processes one inbound message. Every failure is caught and
// logged here; nothing propagates beyond a single message, so one failing
// message never affects others.
func (o *Orchestrator) HandleMessage(ctx context.Context, in Inbound) {
	// Non-text messages are ignored.
	if in.Text == "" {
		return
	}

	sess := o.sessions.Get(in.UserID)
	sess.Lock()
	defer sess.Unlock()

	if err := o.dispatch(ctx, in, sess); err != nil {
		logger.Error().Err(err).Int64("chat_id", in.ChatID).Msg("message handling failed")
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, in Inbound, sess *Session) error {
	externalID := strconv.FormatInt(in.UserID, 10)

	user, err := o.accounts.User(ctx, externalID)
	if err != nil && !apperror.IsCode(err, apperror.CodeNotFound) {
		return err
	}

	if user == nil && sess.Status == StatusInit {
		sess.Status = StatusInvitationCode
		_, err := o.transport.SendText(ctx, in.ChatID, msgEnterCode)
		return err
	}

	if sess.Status == StatusInvitationCode {
		return o.expectInvitationCode(ctx, in, sess, externalID)
	}

	if strings.HasPrefix(in.Text, inviteCommand) {
		name := strings.TrimSpace(strings.TrimPrefix(in.Text, inviteCommand))
		return o.handleInvite(ctx, in, user, name)
	}

	if in.Text == startCommand {
		_, err := o.transport.SendText(ctx, in.ChatID, msgGreeting)
		return err
	}

	balance, err := o.accounts.Balance(ctx, externalID)
	if err != nil {
		return err
	}
	if balance < account.ChatTurnCost {
		_, err := o.transport.SendText(ctx, in.ChatID, msgNoCredits)
		return err
	}

	if strings.HasPrefix(in.Text, imageCommand) {
		prompt := strings.TrimSpace(strings.TrimPrefix(in.Text, imageCommand))
		return o.handleGenerateImage(ctx, in, user, prompt)
	}

	return o.handleChatTurn(ctx, in, sess, externalID)
}

func (o *Orchestrator) expectInvitationCode(ctx context.Context, in Inbound, sess *Session, externalID string) error {
	if sess.Attempts > MaxInvitationCodeAttempts {
		return nil
	}

	user, err := o.accounts.Redeem(ctx, in.Text, externalID)
	if apperror.IsCode(err, apperror.CodeNotFound) {
		sess.Attempts++
		_, err := o.transport.SendText(ctx, in.ChatID, msgWrongCode)
		return err
	}
	if err != nil {
		return err
	}

	sess.Status = StatusIdle
	_, err = o.transport.SendText(ctx, in.ChatID, fmt.Sprintf("Welcome, %s!", user.Name))
	return err
}

// handleInvite serves /invite. Only admins may issue codes; denial is silent,
// log only, with no reply to the caller.
func (o *Orchestrator) handleInvite(ctx context.Context, in Inbound, user *models.User, name string) error {
	if user == nil || user.Role != models.RoleAdmin {
		logger.Warn().Int64("chat_id", in.ChatID).Msg("invite command denied")
		return nil
	}

	code, err := o.accounts.Issue(ctx, name)
	if err != nil {
		return err
	}

	if _, err := o.transport.SendText(ctx, in.ChatID, msgInviteCreated); err != nil {
		return err
	}
	_, err = o.transport.SendText(ctx, in.ChatID, code)
	return err
}

// handleGenerateImage serves /image. Image turns do not debit credits; only
// chat turns do.
func (o *Orchestrator) handleGenerateImage(ctx context.Context, in Inbound, user *models.User, prompt string) error {
	if user == nil {
		return nil
	}

	urls, err := o.ai.GenerateImage(ctx, prompt, 1, o.imageSize)
	if err != nil {
		return apperror.BackendFailure("image generation", err)
	}
	return o.transport.SendPhoto(ctx, in.ChatID, urls[0])
}

func (o *Orchestrator) handleChatTurn(ctx context.Context, in Inbound, sess *Session, externalID string) error {
	placeholderID, err := o.transport.SendText(ctx, in.ChatID, msgGenerating)
	if err != nil {
		return err
	}

	sess.History = append(sess.History, Turn{Role: RoleUser, Content: in.Text})
	sess.History = o.budgeter.Trim(sess.History)

	reply, err := o.ai.Complete(ctx, o.chatModel, sess.History)
	if err != nil {
		return apperror.BackendFailure("chat completion", err)
	}
	sess.History = append(sess.History, reply)

	if err := o.transport.DeleteMessage(ctx, in.ChatID, placeholderID); err != nil {
		return err
	}
	if _, err := o.transport.SendText(ctx, in.ChatID, reply.Content); err != nil {
		return err
	}

	_, err = o.accounts.DebitChatTurn(ctx, externalID)
	return err
}
