// Package rest provides the MEXC spot REST client.
//
// Endpoints:
//   - Production: https://api.mexc.com
//
// Signed endpoints take timestamp, recvWindow and signature query
// parameters; the signature is an HMAC-SHA256 of the encoded query string
// keyed with the account secret. The API key rides in the X-MEXC-APIKEY
// header. Listen keys for the user-data socket are managed through
// /api/v3/userDataStream.
package rest
