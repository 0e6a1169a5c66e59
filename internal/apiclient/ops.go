package apiclient

import "context"

// Operaciones del Admin API (ver tabla de endpoints del contrato).
// Las de lectura y tipadas decodifican el data del envelope; si el decode falla
// el Result degrada a fallo con el body crudo disponible.

type loginRequest struct {
	IdentityID string `json:"identityId"`
	Password   string `json:"password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// Login autentica y retorna token + perfil. Única operación sin auth.
func (c *Client) Login(ctx context.Context, identityID, password string) (LoginData, Result) {
	res := c.do(ctx, "POST", "/admin/login", loginRequest{IdentityID: identityID, Password: password}, false)
	var data LoginData
	if res.OK {
		if err := res.DecodeData(&data); err != nil {
			res.OK = false
			res.Message = "malformed login response"
		}
	}
	return data, res
}

// Check trae el perfil del admin (track profile).
func (c *Client) Check(ctx context.Context) (AdminProfile, Result) {
	res := c.do(ctx, "GET", "/admin/check", nil, true)
	var data AdminProfile
	if res.OK {
		if err := res.DecodeData(&data); err != nil {
			res.OK = false
			res.Message = "malformed check response"
		}
	}
	return data, res
}

// Info trae stats de suscripción + lista de sub-cuentas (track info).
func (c *Client) Info(ctx context.Context) (InfoData, Result) {
	res := c.do(ctx, "GET", "/admin/info", nil, true)
	var data InfoData
	if res.OK {
		if err := res.DecodeData(&data); err != nil {
			res.OK = false
			res.Message = "malformed info response"
		}
	}
	return data, res
}

// CreateSubAccount da de alta una sub-cuenta.
func (c *Client) CreateSubAccount(ctx context.Context, req CreateSubAccountRequest) (SubAccountItem, Result) {
	res := c.do(ctx, "POST", "/admin/subaccount", req, true)
	var data SubAccountItem
	if res.OK && len(res.Body) > 0 {
		_ = res.DecodeData(&data)
	}
	return data, res
}

// UpdateSubAccount edita nombre/instancias de una sub-cuenta.
func (c *Client) UpdateSubAccount(ctx context.Context, id string, req UpdateSubAccountRequest) Result {
	return c.do(ctx, "PUT", "/admin/subaccount/"+id, req, true)
}

// DeleteSubAccount elimina una sub-cuenta.
func (c *Client) DeleteSubAccount(ctx context.Context, id string) Result {
	return c.do(ctx, "DELETE", "/admin/subaccount/"+id, nil, true)
}

// ResetPassword regenera la password de una sub-cuenta.
func (c *Client) ResetPassword(ctx context.Context, id string) (ResetPasswordData, Result) {
	res := c.do(ctx, "PUT", "/admin/subaccount/reset/"+id, nil, true)
	var data ResetPasswordData
	if res.OK && len(res.Body) > 0 {
		_ = res.DecodeData(&data)
	}
	return data, res
}

// DisconnectSubAccount desconecta la sesión de WhatsApp de una sub-cuenta.
func (c *Client) DisconnectSubAccount(ctx context.Context, id string) Result {
	return c.do(ctx, "PUT", "/admin/subaccount/disconnect/"+id, nil, true)
}

// ChangePassword cambia la password propia. El token viejo deja de servir como
// continuación de sesión: el caller debe re-loguear inmediatamente después.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) Result {
	return c.do(ctx, "PUT", "/admin/subaccount/change", changePasswordRequest{
		OldPassword: oldPassword,
		NewPassword: newPassword,
	}, true)
}
