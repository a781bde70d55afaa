package model

// Route is a scheduled journey line.  Every quote on the route is priced in
// its currency.
type Route struct {
	ID       string // routes.id
	Name     string // routes.name
	Currency string // routes.currency
}
