// Package mail builds MIME messages and delivers them over SMTP.
//
// Use cases depend on the Mail interface and the Message payload. SMTP is the
// only implementation: it keeps a bounded pool of authenticated connections,
// paces submissions with a token bucket and retries transient failures.
package mail
