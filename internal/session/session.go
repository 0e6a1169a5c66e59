// Package session es la fachada fina sobre el credstore que usa todo request
// saliente: resuelve el token de la identidad activa, cambia de identidad y
// maneja login/logout.
package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/wadesk/wactl/internal/apiclient"
	"github.com/wadesk/wactl/internal/credstore"
	"github.com/wadesk/wactl/internal/observability/logger"
	"github.com/wadesk/wactl/internal/util"
)

// Manager implementa apiclient.TokenSource.
type Manager struct {
	store *credstore.Store
	api   *apiclient.Client
	log   *zap.Logger
}

func New(store *credstore.Store) *Manager {
	return &Manager{store: store, log: logger.Named("session")}
}

// Bind conecta el API client. Se llama una vez en el wiring de main: el client
// necesita al Manager como TokenSource y el Manager al client para Login.
func (m *Manager) Bind(api *apiclient.Client) { m.api = api }

// CurrentToken retorna el token de la identidad activa, o "" sin sesión.
func (m *Manager) CurrentToken() string {
	if id := m.store.ActiveIdentity(); id != nil {
		return id.Token
	}
	return ""
}

// Active retorna la identidad activa, o nil.
func (m *Manager) Active() *credstore.Identity { return m.store.ActiveIdentity() }

// Identities lista las identidades persistidas.
func (m *Manager) Identities() []credstore.Identity { return m.store.Identities() }

// Store expone el credstore (el syncer necesita la stamp para el watcher).
func (m *Manager) Store() *credstore.Store { return m.store }

// Login autentica contra el backend y, si sale bien, persiste la identidad
// como activa. El id persistido es el que reporta el server en el perfil
// (cae al id ingresado si el perfil no lo trae).
func (m *Manager) Login(ctx context.Context, identityID, password string) (apiclient.LoginData, apiclient.Result) {
	data, res := m.api.Login(ctx, identityID, password)
	if !res.OK {
		return data, res
	}
	id := data.Profile.IdentityID
	if id == "" {
		id = identityID
	}
	m.store.SetIdentity(id, data.Token, true)
	m.log.Info("logged in", zap.String("identity", id), zap.String("token", util.MaskToken(data.Token)))
	return data, res
}

// Use cambia la identidad activa. Retorna false si el id no está persistido.
func (m *Manager) Use(identityID string) bool {
	if m.store.GetIdentity(identityID) == nil {
		return false
	}
	m.store.SetActive(identityID)
	return true
}

// Logout elimina una identidad; id vacío elimina la activa.
// Solo toca estado local: el token del server expira solo.
func (m *Manager) Logout(identityID string) {
	if identityID == "" {
		act := m.store.ActiveIdentity()
		if act == nil {
			return
		}
		identityID = act.ID
	}
	m.store.RemoveIdentity(identityID)
	m.log.Info("logged out", zap.String("identity", identityID))
}
