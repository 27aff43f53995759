// Package auth authenticates callers of the bridge and limits their
// request rate. It has nothing to do with the upstream credential, which
// the bridge holds itself.
//
// Authentication uses a chain of authenticators with three-outcome voting:
// each returns Yes (identity found), No (credentials invalid), or Abstain
// (cannot handle them). The chain's default decision applies when every
// authenticator abstains.
package auth
