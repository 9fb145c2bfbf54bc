// Package command implements global override commands (cancel, restart,
// menu...) as deterministic session mutations with localized replies.
package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/chatrelay/internal/channels"
	"github.com/nextlevelbuilder/chatrelay/internal/sessions"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

// Name identifies a global command.
type Name string

const (
	Cancel    Name = "cancel"
	Reset     Name = "reset"
	Restart   Name = "restart"
	Menu      Name = "menu"
	ClearCart Name = "clear_cart"
	Back      Name = "back"
	Help      Name = "help"
)

// Parse maps an intent label to a command.
func Parse(intent string) (Name, bool) {
	switch n := Name(intent); n {
	case Cancel, Reset, Restart, Menu, ClearCart, Back, Help:
		return n, true
	}
	return "", false
}

// Result is the outcome of a command.
type Result struct {
	Command     Name
	Message     channels.OutboundMessage
	ClearedFlow bool
	// Resumed is set when back restored a suspended flow.
	Resumed *sessions.FlowState
}

// resetKeep survives a reset: auth, profile and behavioral fields.
var resetKeep = []string{
	sessions.KeyAuthenticated, sessions.KeyAuthToken, sessions.KeyUserID,
	sessions.KeyName, sessions.KeyPhone, sessions.KeyEmail,
	sessions.KeyLanguage, sessions.KeyUserType, sessions.KeyOnboardingCompleted,
	sessions.KeyLastOrderID, sessions.KeyOrderCount,
	sessions.KeyPreferredPayment, sessions.KeyFavoriteCuisine,
	sessions.KeyChannel, sessions.KeyPlatform,
}

// Handler executes commands against the session store.
type Handler struct {
	sessions store.SessionStore
}

func NewHandler(s store.SessionStore) *Handler {
	return &Handler{sessions: s}
}

// Handle runs cmd for identifier. Each command performs at most one store write.
func (h *Handler) Handle(ctx context.Context, identifier string, cmd Name) (Result, error) {
	sess, err := h.sessions.GetOrCreate(ctx, identifier)
	if err != nil {
		return Result{}, fmt.Errorf("load session: %w", err)
	}
	lang := sess.Data.String(sessions.KeyLanguage)
	_, hadFlow := sess.Data.ActiveFlow()
	res := Result{Command: cmd}

	switch cmd {
	case Cancel:
		patch := sessions.ClearFlowPatch()
		patch[sessions.KeySuspendedFlow] = nil
		patch[sessions.KeyCart] = nil
		if err := h.sessions.Update(ctx, identifier, patch); err != nil {
			return Result{}, fmt.Errorf("cancel: %w", err)
		}
		res.ClearedFlow = hadFlow
		res.Message.Text = Text(lang, msgCancelled)

	case Reset:
		kept := sessions.Data{}
		for _, k := range resetKeep {
			if v, ok := sess.Data[k]; ok {
				kept[k] = v
			}
		}
		if err := h.sessions.Save(ctx, identifier, kept); err != nil {
			return Result{}, fmt.Errorf("reset: %w", err)
		}
		res.ClearedFlow = hadFlow
		res.Message.Text = Text(lang, msgReset)

	case Restart:
		kept := sessions.Data{}
		if lang != "" {
			kept[sessions.KeyLanguage] = lang
		}
		if err := h.sessions.Save(ctx, identifier, kept); err != nil {
			return Result{}, fmt.Errorf("restart: %w", err)
		}
		res.ClearedFlow = hadFlow
		res.Message.Text = Text(lang, msgRestarted)

	case Menu:
		if hadFlow {
			if err := h.sessions.Update(ctx, identifier, sessions.ClearFlowPatch()); err != nil {
				return Result{}, fmt.Errorf("menu: %w", err)
			}
		}
		res.ClearedFlow = hadFlow
		res.Message = MenuMessage(lang)

	case ClearCart:
		if err := h.sessions.Update(ctx, identifier, map[string]any{sessions.KeyCart: nil}); err != nil {
			return Result{}, fmt.Errorf("clear cart: %w", err)
		}
		res.Message.Text = Text(lang, msgCartCleared)

	case Back:
		suspended, ok := sess.Data.SuspendedFlow()
		if !ok {
			res.Message.Text = Text(lang, msgBackNothing)
			break
		}
		patch := sessions.FlowPatch(suspended)
		patch[sessions.KeySuspendedFlow] = nil
		if err := h.sessions.Update(ctx, identifier, patch); err != nil {
			return Result{}, fmt.Errorf("back: %w", err)
		}
		res.Resumed = &suspended
		res.Message.Text = Text(lang, msgBackResumed)

	case Help:
		res.Message.Text = Text(lang, msgHelp)

	default:
		return Result{}, fmt.Errorf("unknown command %q", cmd)
	}

	slog.Debug("command handled", "identifier", identifier, "command", string(cmd), "cleared_flow", res.ClearedFlow)
	return res, nil
}

// MenuMessage is the main menu with one button per top-level service.
func MenuMessage(lang string) channels.OutboundMessage {
	return channels.OutboundMessage{
		Text: Text(lang, msgMenu),
		Buttons: []channels.Button{
			{ID: "order_food", Title: Text(lang, msgMenuOrderFood)},
			{ID: "parcel_booking", Title: Text(lang, msgMenuParcel)},
			{ID: "track_order", Title: Text(lang, msgMenuTrack)},
			{ID: "check_wallet", Title: Text(lang, msgMenuWallet)},
		},
	}
}
