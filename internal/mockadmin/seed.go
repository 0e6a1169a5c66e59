package mockadmin

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed es el estado inicial del mock, cargable desde YAML.
type Seed struct {
	Admin struct {
		IdentityID string `yaml:"identity_id"`
		Name       string `yaml:"name"`
		Email      string `yaml:"email"`
		Phone      string `yaml:"phone"`
		ContactID  string `yaml:"contact_id"`
		Code       string `yaml:"code"`
		Password   string `yaml:"password"`
	} `yaml:"admin"`

	Subscription struct {
		ExpiredAt      string `yaml:"expired_at"`
		MaxSubaccounts int    `yaml:"max_subaccounts"`
		MaxInstances   int    `yaml:"max_instances"`
	} `yaml:"subscription"`

	Subaccounts []SubSeed `yaml:"subaccounts"`
}

// SubSeed es una sub-cuenta inicial.
type SubSeed struct {
	Name      string `yaml:"name"`
	Instances int    `yaml:"instances"`
	Connected bool   `yaml:"connected"`
	Password  string `yaml:"password"`
}

// LoadSeed lee un seed YAML.
func LoadSeed(path string) (Seed, error) {
	var s Seed
	b, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read seed %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return s, nil
}

// DefaultSeed: un admin con dos sub-cuentas, suficiente para desarrollo y tests.
func DefaultSeed() Seed {
	var s Seed
	s.Admin.IdentityID = "admin-1"
	s.Admin.Name = "Admin Demo"
	s.Admin.Email = "admin@example.test"
	s.Admin.Phone = "+5491100000000"
	s.Admin.ContactID = "contact-1"
	s.Admin.Code = "WD-0001"
	s.Admin.Password = "admin-password"
	s.Subscription.ExpiredAt = "2027-01-01T00:00:00Z"
	s.Subscription.MaxSubaccounts = 5
	s.Subscription.MaxInstances = 10
	s.Subaccounts = []SubSeed{
		{Name: "Sucursal Centro", Instances: 2, Connected: true, Password: "centro-pass"},
		{Name: "Sucursal Norte", Instances: 1, Connected: false, Password: "norte-pass"},
	}
	return s
}
