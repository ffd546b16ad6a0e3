// Package accounts persists goAccount accounts in a SQL database through gorm.
//
// Store implements goAccount.AccountStore. Open picks the dialect from a
// driver name: "sqlite" uses the pure Go glebarez driver and "postgres"
// uses pgx through gorm's postgres driver.
package accounts
