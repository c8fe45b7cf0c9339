// Package negotiate produces HTTP Negotiate (SPNEGO) tokens for an upstream
// proxy.
//
// The platform mechanism is selected at build time: gokrb5 with the user's
// Kerberos credential cache (or a keytab) everywhere except Windows, where
// SSPI supplies the logged-on user's credentials. Callers only see the
// Provider interface.
package negotiate
