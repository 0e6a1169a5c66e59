package apiclient

// Tipos del lado servidor, cacheados localmente por el syncer.
// Los tags JSON siguen el contrato camelCase del Admin API.

// AdminProfile es el perfil del admin autenticado (track "check").
// Se reemplaza entero en cada fetch, nunca se mergea parcial.
type AdminProfile struct {
	IdentityID string `json:"identityId"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	ContactID  string `json:"contactId"`
	Code       string `json:"code"`
}

// Quota agrupa total/usado/disponible de un recurso de la suscripción.
type Quota struct {
	Total     int `json:"total"`
	Used      int `json:"used"`
	Available int `json:"available"`
}

// SubscriptionStats es el estado de la suscripción (track "info").
// Read-side puro: cualquier cambio viene de un refresh del servidor.
type SubscriptionStats struct {
	ExpiredAt   string `json:"expiredAt"`
	Subaccounts Quota  `json:"subaccounts"`
	Instances   Quota  `json:"instances"`
}

// SubAccountItem es una fila de la lista de cuentas administradas.
type SubAccountItem struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	LocationID  string `json:"locationId"`
	IdentityID  string `json:"identityId"`
	WhiteID     string `json:"whiteId"`
	Sessions    int    `json:"sessions"`
	IsConnected bool   `json:"isConnected"`
	Status      string `json:"status"`
	RefreshAt   string `json:"refreshAt"`
}

// InfoData es el payload del GET /admin/info: stats + lista materializada.
type InfoData struct {
	Stats       SubscriptionStats `json:"stats"`
	Subaccounts []SubAccountItem  `json:"subaccounts"`
}

// LoginData es el payload del POST /admin/login.
type LoginData struct {
	Token   string       `json:"token"`
	Profile AdminProfile `json:"profile"`
}

// ResetPasswordData trae la password regenerada de una sub-cuenta.
type ResetPasswordData struct {
	Password string `json:"password"`
}

// CreateSubAccountRequest payload de alta de sub-cuenta.
type CreateSubAccountRequest struct {
	Name      string `json:"name"`
	Instances int    `json:"instances,omitempty"`
}

// UpdateSubAccountRequest payload de edición de sub-cuenta.
type UpdateSubAccountRequest struct {
	Name      string `json:"name"`
	Instances int    `json:"instances"`
}
