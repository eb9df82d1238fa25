package models

// Role - роль уже аутентифицированного вызывающего
type Role string

const (
	RoleReporter  Role = "reporter"
	RoleResponder Role = "responder"
)

// Valid проверяет, что роль принадлежит известному множеству
func (r Role) Valid() bool {
	return r == RoleReporter || r == RoleResponder
}

// Caller - идентичность вызывающего, полученная от внешнего слоя аутентификации.
// Ядро ей доверяет и выполняет только проверки ролей и владения.
type Caller struct {
	ID   string
	Role Role
}
