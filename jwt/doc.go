// Package jwt issues and verifies marketplace access tokens, and reads their
// claims without verification on the client side.
//
// The server side (the test server and the example marketplace server) uses
// Manager. Clients never hold the verification key; they use Inspect to show
// who is logged in and when the token expires, and still rely on the server's
// 401 response for expiry.
package jwt
