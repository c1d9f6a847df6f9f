// Package services implements the remote collaborators of the metadata cache.
//
// # Catalog
//
// [Catalog] is the batch lookup contract: at most [MaxBatchSize] ids per call, with ids the catalog
// does not know simply missing from the result. [SpotifyCatalog] implements it with the zmb3 Web API
// client over an [oauth2.Transport], throttled by a [rate.Limiter].
//
// # Tokens
//
// [TokenManager] keeps one bearer token fresh using check-lock-check: a lock-free read of the
// current token, and on expiry a refresh under a mutex that re-checks first, so concurrent callers
// trigger a single exchange. The exchange itself is a [RefreshFunc]:
//   - [NewClientCredentialsRefresher] : OAuth2 client credentials against the accounts service
//   - [NewWebPlayerRefresher] : sp_dc cookie exchange against the web player endpoint
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrAuthFailed] : credential exchange failed; never cached, the next call retries
//   - [shared.ErrAPIRequest] : catalog call failed or returned malformed data
//   - [shared.ErrInvalidInput] : batch larger than [MaxBatchSize]
package services
