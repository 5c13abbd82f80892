// Package httpapi serves the sessionguard credential lifecycle over JSON/HTTP.
//
// Routes (all POST unless noted):
//
//	/auth/login                {identifier, password}    200 pair | 202 {require2FA, tempToken}
//	/auth/refresh              {refreshToken}            200 pair | 401 INVALID_REFRESH_TOKEN
//	/auth/logout               {refreshToken, accessToken?}  200 | 404 REFRESH_TOKEN_NOT_FOUND
//	/auth/revoke-all           bearer                    200 {revokedCount}
//	/auth/validate-token       {token}                   200 {valid, user?}
//	/auth/2fa/verify           {tempToken, code}         200 pair | 401 INVALID_2FA
//	/auth/forgot-password      {identifier}              200 always
//	/auth/reset-password       {token, newPassword}      200 | 401 INVALID_TOKEN
//	/auth/verify-email         {token}                   200 | 401 INVALID_TOKEN
//	/auth/resend-verification  bearer                    200 | 429 | 503
//	GET /auth/me               bearer                    200 AuthResult
//	GET /healthz                                         200 | 503
//
// Credential failures are uniform 401s carrying only a code. validate-token
// answers 200 for every credential judgment and reserves 503 for
// infrastructure failure.
package httpapi
