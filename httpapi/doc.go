// Package httpapi serves the goAccount engine over JSON HTTP.
//
// Routes are registered on a net/http ServeMux. Guarded routes take the
// session credential as "Authorization: Bearer <token>". Failures are
// answered with {"code","errno","message"}; invalid code responses also
// carry "tries" when the remaining budget is known.
package httpapi
