// Package mutate implementa el flujo confirmado de operaciones sensibles sobre
// sub-cuentas, con su máquina de estados por acción:
//
//	Idle → Confirming → Executing → Idle
//
// Contrato post-mutación: delete y disconnect cambian la composición de la
// lista y disparan el track info; resetPassword no. La corrección del snapshot
// local sale siempre de re-fetchear, nunca de aritmética local optimista.
package mutate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wadesk/wactl/internal/apiclient"
	"github.com/wadesk/wactl/internal/audit"
	"github.com/wadesk/wactl/internal/credstore"
	"github.com/wadesk/wactl/internal/metrics"
	"github.com/wadesk/wactl/internal/observability/logger"
)

// Kind de mutación confirmada.
type Kind string

const (
	KindDelete        Kind = "delete"
	KindResetPassword Kind = "resetPassword"
	KindDisconnect    Kind = "disconnect"
)

// State de la máquina por acción.
type State int

const (
	StateIdle State = iota
	StateConfirming
	StateExecuting
)

var (
	ErrNotIdle       = errors.New("mutate: a mutation is already in progress")
	ErrNotConfirming = errors.New("mutate: nothing pending confirmation")
	ErrInvalidKind   = errors.New("mutate: unknown mutation kind")
	ErrInvalidInput  = errors.New("mutate: invalid input")
	ErrNoSession     = errors.New("mutate: no active session")
)

// Notifier es el puerto de feedback al usuario (el equivalente del toast).
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// API es lo que el orquestador necesita del apiclient.
type API interface {
	DeleteSubAccount(ctx context.Context, id string) apiclient.Result
	ResetPassword(ctx context.Context, id string) (apiclient.ResetPasswordData, apiclient.Result)
	DisconnectSubAccount(ctx context.Context, id string) apiclient.Result
	UpdateSubAccount(ctx context.Context, id string, req apiclient.UpdateSubAccountRequest) apiclient.Result
	ChangePassword(ctx context.Context, oldPassword, newPassword string) apiclient.Result
}

// Session es lo que se necesita del session manager para el re-login
// post-cambio de password.
type Session interface {
	Active() *credstore.Identity
	Login(ctx context.Context, identityID, password string) (apiclient.LoginData, apiclient.Result)
}

// Refresher dispara el track info tras una mutación que lo amerita.
type Refresher interface {
	RefreshInfo(ctx context.Context) apiclient.Result
}

// Config del orquestador.
type Config struct {
	API      API
	Session  Session
	Refresh  Refresher // opcional (CLI one-shot puede ir sin syncer)
	Notifier Notifier  // opcional, default loguea
}

// Orchestrator gobierna las mutaciones confirmadas y el caso especial del
// cambio de password propio.
type Orchestrator struct {
	api     API
	sess    Session
	refresh Refresher
	notify  Notifier
	log     *zap.Logger

	mu     sync.Mutex
	state  State
	kind   Kind
	target string
}

func New(cfg Config) *Orchestrator {
	n := cfg.Notifier
	if n == nil {
		n = logNotifier{}
	}
	return &Orchestrator{
		api:     cfg.API,
		sess:    cfg.Session,
		refresh: cfg.Refresh,
		notify:  n,
		log:     logger.Named("mutate"),
	}
}

// logNotifier: fallback cuando no hay UI conectada.
type logNotifier struct{}

func (logNotifier) Success(msg string) { logger.Named("mutate").Info(msg) }
func (logNotifier) Error(msg string)   { logger.Named("mutate").Warn(msg) }

// State retorna el estado actual y, si hay, la mutación pendiente.
func (o *Orchestrator) State() (State, Kind, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state, o.kind, o.target
}

// Request pasa a Confirming y registra kind/target. Ningún request sale a la
// red hasta Confirm.
func (o *Orchestrator) Request(kind Kind, targetID string) error {
	switch kind {
	case KindDelete, KindResetPassword, KindDisconnect:
	default:
		return ErrInvalidKind
	}
	if targetID == "" {
		return fmt.Errorf("%w: empty target id", ErrInvalidInput)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle {
		return ErrNotIdle
	}
	o.state = StateConfirming
	o.kind = kind
	o.target = targetID
	return nil
}

// Cancel vuelve de Confirming a Idle sin efectos.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateConfirming {
		return
	}
	o.state = StateIdle
	o.kind = ""
	o.target = ""
}

// Confirm ejecuta la mutación pendiente. La confirmación siempre precede a la
// ejecución, y la ejecución al refresh que dispara.
func (o *Orchestrator) Confirm(ctx context.Context) (apiclient.Result, error) {
	o.mu.Lock()
	if o.state != StateConfirming {
		o.mu.Unlock()
		return apiclient.Result{}, ErrNotConfirming
	}
	kind, target := o.kind, o.target
	o.state = StateExecuting
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.state = StateIdle
		o.kind = ""
		o.target = ""
		o.mu.Unlock()
	}()

	var res apiclient.Result
	var successMsg string

	switch kind {
	case KindDelete:
		res = o.api.DeleteSubAccount(ctx, target)
		successMsg = fmt.Sprintf("sub-account %s deleted", target)
	case KindDisconnect:
		res = o.api.DisconnectSubAccount(ctx, target)
		successMsg = fmt.Sprintf("sub-account %s disconnected", target)
	case KindResetPassword:
		var data apiclient.ResetPasswordData
		data, res = o.api.ResetPassword(ctx, target)
		successMsg = fmt.Sprintf("password for %s reset", target)
		if data.Password != "" {
			successMsg += ": " + data.Password
		}
	}

	metrics.ObserveMutation(string(kind), res.OK)
	audit.Log("subaccount."+string(kind), zap.String("target", target), zap.Bool("ok", res.OK))

	if !res.OK {
		// fallo: notificar y no tocar ningún cache local
		o.notify.Error(res.ErrorMessage())
		return res, nil
	}

	o.notify.Success(successMsg)

	// delete/disconnect cambian la lista; reset no
	if o.refresh != nil && (kind == KindDelete || kind == KindDisconnect) {
		o.refresh.RefreshInfo(ctx)
	}
	return res, nil
}

// Edit es la mutación directa (sin confirmación) de nombre/instancias.
// Valida local antes de tocar la red.
func (o *Orchestrator) Edit(ctx context.Context, id, name string, instances int) (apiclient.Result, error) {
	if id == "" {
		return apiclient.Result{}, fmt.Errorf("%w: empty target id", ErrInvalidInput)
	}
	if strings.TrimSpace(name) == "" {
		return apiclient.Result{}, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	if instances <= 0 {
		return apiclient.Result{}, fmt.Errorf("%w: instances must be a positive integer", ErrInvalidInput)
	}

	res := o.api.UpdateSubAccount(ctx, id, apiclient.UpdateSubAccountRequest{Name: name, Instances: instances})
	metrics.ObserveMutation("edit", res.OK)
	audit.Log("subaccount.edit", zap.String("target", id), zap.Bool("ok", res.OK))
	if !res.OK {
		o.notify.Error(res.ErrorMessage())
		return res, nil
	}
	o.notify.Success(fmt.Sprintf("sub-account %s updated", id))
	if o.refresh != nil {
		o.refresh.RefreshInfo(ctx)
	}
	return res, nil
}

// ChangePassword cambia la password propia y re-autentica de inmediato: el
// token viejo no sirve como continuación de sesión, así que el re-login es
// obligatorio, no opcional. Su fallo se reporta distinto al fallo del cambio
// porque pide una acción distinta del usuario.
func (o *Orchestrator) ChangePassword(ctx context.Context, oldPassword, newPassword string) (apiclient.Result, error) {
	act := o.sess.Active()
	if act == nil {
		return apiclient.Result{}, ErrNoSession
	}

	res := o.api.ChangePassword(ctx, oldPassword, newPassword)
	metrics.ObserveMutation("changePassword", res.OK)
	audit.Log("admin.changePassword", zap.String("identity", act.ID), zap.Bool("ok", res.OK))
	if !res.OK {
		o.notify.Error("password change failed: " + res.ErrorMessage())
		return res, nil
	}

	// re-login con la password nueva; solo su éxito escribe el token nuevo.
	// Si falla, el store conserva el token viejo (ya inválido) y el usuario
	// tiene que loguear de nuevo a mano.
	if _, loginRes := o.sess.Login(ctx, act.ID, newPassword); !loginRes.OK {
		o.log.Warn("re-login after password change failed",
			zap.String("identity", act.ID), zap.String("msg", loginRes.ErrorMessage()))
		o.notify.Error("password changed but session refresh failed; please log in again")
		return res, nil
	}

	o.notify.Success("password changed")
	return res, nil
}
