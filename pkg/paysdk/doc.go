// Package paysdk is the merchant-side helper for calling a trustcore
// deployment. It builds the canonical message the server verifies, signs
// requests with the merchant secret, and wraps the signed endpoints.
//
// Signing a request:
//
//	signer := paysdk.NewRequestSigner(apiKey, secret)
//	req, _ := http.NewRequest(http.MethodPost, url, body)
//	if err := signer.SignRequest(req); err != nil { ... }
package paysdk
