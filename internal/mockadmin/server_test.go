package mockadmin

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadesk/wactl/internal/apiclient"
	"github.com/wadesk/wactl/internal/credstore"
	"github.com/wadesk/wactl/internal/mutate"
	"github.com/wadesk/wactl/internal/session"
	"github.com/wadesk/wactl/internal/syncer"
)

// newStack levanta el mock y el stack cliente completo contra él.
func newStack(t *testing.T, cfg Config) (*session.Manager, *apiclient.Client) {
	t.Helper()
	srv, err := New(cfg)
	require.NoError(t, err)

	hts := httptest.NewServer(srv.Handler())
	t.Cleanup(hts.Close)

	mgr := session.New(credstore.New(credstore.NewMemPort()))
	api := apiclient.New(apiclient.Config{BaseURL: hts.URL, Tokens: mgr})
	mgr.Bind(api)
	return mgr, api
}

func TestIntegration_LoginCheckInfo(t *testing.T) {
	mgr, api := newStack(t, Config{Seed: DefaultSeed()})
	ctx := context.Background()

	// credenciales malas
	_, res := mgr.Login(ctx, "admin-1", "nope")
	require.False(t, res.OK)
	assert.Equal(t, "invalid credentials", res.ErrorMessage())

	// login OK persiste la identidad activa
	data, res := mgr.Login(ctx, "admin-1", "admin-password")
	require.True(t, res.OK, res.ErrorMessage())
	require.NotEmpty(t, data.Token)
	assert.Equal(t, "admin-1", data.Profile.IdentityID)
	assert.Equal(t, data.Token, mgr.CurrentToken())

	// check devuelve el perfil completo del seed
	profile, res := api.Check(ctx)
	require.True(t, res.OK, res.ErrorMessage())
	assert.Equal(t, "Admin Demo", profile.Name)
	assert.Equal(t, "WD-0001", profile.Code)

	// info trae stats y las dos sub-cuentas del seed
	info, res := api.Info(ctx)
	require.True(t, res.OK, res.ErrorMessage())
	assert.Equal(t, 2, info.Stats.Subaccounts.Used)
	assert.Equal(t, 5, info.Stats.Subaccounts.Total)
	assert.Equal(t, 3, info.Stats.Instances.Used)
	require.Len(t, info.Subaccounts, 2)

	t.Logf("✅ login/check/info round trip against the mock")
}

func TestIntegration_SubAccountLifecycle(t *testing.T) {
	mgr, api := newStack(t, Config{Seed: DefaultSeed()})
	ctx := context.Background()

	_, res := mgr.Login(ctx, "admin-1", "admin-password")
	require.True(t, res.OK)

	// alta
	created, res := api.CreateSubAccount(ctx, apiclient.CreateSubAccountRequest{Name: "Sucursal Sur", Instances: 2})
	require.True(t, res.OK, res.ErrorMessage())
	require.NotEmpty(t, created.IdentityID)
	assert.Equal(t, "disconnected", created.Status)

	// edición
	res = api.UpdateSubAccount(ctx, created.IdentityID, apiclient.UpdateSubAccountRequest{Name: "Sucursal Sur 2", Instances: 4})
	require.True(t, res.OK, res.ErrorMessage())

	info, res := api.Info(ctx)
	require.True(t, res.OK)
	var found *apiclient.SubAccountItem
	for i := range info.Subaccounts {
		if info.Subaccounts[i].IdentityID == created.IdentityID {
			found = &info.Subaccounts[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "Sucursal Sur 2", found.Name)
	assert.Equal(t, 4, found.Sessions)

	// reset devuelve la password nueva en claro
	reset, res := api.ResetPassword(ctx, created.IdentityID)
	require.True(t, res.OK, res.ErrorMessage())
	require.NotEmpty(t, reset.Password)

	// la sub-cuenta puede loguear con la password regenerada
	sub := session.New(credstore.New(credstore.NewMemPort()))
	sub.Bind(api) // mismo server; el token no importa para login
	_, subRes := sub.Login(ctx, created.IdentityID, reset.Password)
	require.True(t, subRes.OK, subRes.ErrorMessage())

	// baja
	res = api.DeleteSubAccount(ctx, created.IdentityID)
	require.True(t, res.OK, res.ErrorMessage())
	res = api.DeleteSubAccount(ctx, created.IdentityID)
	require.False(t, res.OK)
	assert.Equal(t, "subaccount not found", res.ErrorMessage())

	t.Logf("✅ full sub-account lifecycle")
}

func TestIntegration_QuotaEnforced(t *testing.T) {
	seed := DefaultSeed()
	seed.Subscription.MaxSubaccounts = 2 // ya lleno con el seed
	mgr, api := newStack(t, Config{Seed: seed})
	ctx := context.Background()

	_, res := mgr.Login(ctx, "admin-1", "admin-password")
	require.True(t, res.OK)

	_, res = api.CreateSubAccount(ctx, apiclient.CreateSubAccountRequest{Name: "Una más"})
	require.False(t, res.OK)
	assert.Equal(t, "subaccount limit reached", res.ErrorMessage())
}

func TestIntegration_ExpiredToken(t *testing.T) {
	// TTL negativo: todo token emitido nace vencido
	mgr, api := newStack(t, Config{Seed: DefaultSeed(), TokenTTL: -time.Minute})
	ctx := context.Background()

	_, res := mgr.Login(ctx, "admin-1", "admin-password")
	require.True(t, res.OK)

	_, res = api.Check(ctx)
	require.False(t, res.OK)
	assert.Equal(t, 401, res.Status)
	assert.True(t, res.TokenExpired(), "client must recognize the expiry wording")
}

func TestIntegration_ConfirmedMutationRefreshesSnapshot(t *testing.T) {
	mgr, api := newStack(t, Config{Seed: DefaultSeed()})
	ctx := context.Background()

	_, res := mgr.Login(ctx, "admin-1", "admin-password")
	require.True(t, res.OK)

	s := syncer.New(syncer.Config{API: api})
	require.True(t, s.RefreshInfo(ctx).OK)
	before := s.Accounts()
	require.Len(t, before, 2)

	// delete confirmado vía orquestador: ejecuta y re-fetchea la lista
	orch := mutate.New(mutate.Config{API: api, Session: mgr, Refresh: s})
	require.NoError(t, orch.Request(mutate.KindDelete, before[0].IdentityID))
	delRes, err := orch.Confirm(ctx)
	require.NoError(t, err)
	require.True(t, delRes.OK, delRes.ErrorMessage())

	after := s.Accounts()
	require.Len(t, after, 1)
	assert.NotEqual(t, before[0].IdentityID, after[0].IdentityID)

	t.Logf("✅ confirmed delete propagated to the local snapshot")
}

func TestIntegration_ChangePasswordReLogin(t *testing.T) {
	mgr, api := newStack(t, Config{Seed: DefaultSeed()})
	ctx := context.Background()

	_, res := mgr.Login(ctx, "admin-1", "admin-password")
	require.True(t, res.OK)
	oldToken := mgr.CurrentToken()

	orch := mutate.New(mutate.Config{API: api, Session: mgr})

	// password vieja equivocada
	res, err := orch.ChangePassword(ctx, "typo", "next-password")
	require.NoError(t, err)
	require.False(t, res.OK)
	assert.Equal(t, "wrong password", res.ErrorMessage())
	assert.Equal(t, oldToken, mgr.CurrentToken(), "failed change must keep the session")

	// cambio OK: re-login automático con la password nueva
	res, err = orch.ChangePassword(ctx, "admin-password", "next-password")
	require.NoError(t, err)
	require.True(t, res.OK, res.ErrorMessage())
	require.NotEmpty(t, mgr.CurrentToken())

	// el token re-emitido sigue siendo válido para operar
	_, checkRes := api.Check(ctx)
	require.True(t, checkRes.OK, checkRes.ErrorMessage())

	// la password vieja ya no sirve
	_, res = mgr.Login(ctx, "admin-1", "admin-password")
	require.False(t, res.OK)
	// la nueva sí
	_, res = mgr.Login(ctx, "admin-1", "next-password")
	require.True(t, res.OK)

	t.Logf("✅ password change rotated credentials end to end")
}

func TestIntegration_LoginRateLimited(t *testing.T) {
	mgr, _ := newStack(t, Config{Seed: DefaultSeed(), LoginMax: 2, LoginWindow: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, res := mgr.Login(ctx, "admin-1", "nope")
		require.Equal(t, "invalid credentials", res.ErrorMessage())
	}

	// tercer intento dentro de la ventana: 429
	_, res := mgr.Login(ctx, "admin-1", "admin-password")
	require.False(t, res.OK)
	assert.Equal(t, 429, res.Status)
	assert.Equal(t, "too many login attempts", res.ErrorMessage())

	// otra identidad no comparte el contador
	_, res = mgr.Login(ctx, "other", "whatever")
	assert.Equal(t, "invalid credentials", res.ErrorMessage())
}

func TestLoadSeed(t *testing.T) {
	s, err := LoadSeed("../../cmd/mockadmin/seed_data.yaml")
	require.NoError(t, err)
	assert.Equal(t, "admin-1", s.Admin.IdentityID)
	assert.Len(t, s.Subaccounts, 2)
}
