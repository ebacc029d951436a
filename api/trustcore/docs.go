// Package trustcore registers the OpenAPI document served under /swagger/.
package trustcore

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/.well-known/jwks.json": {
            "get": {
                "produces": ["application/json"],
                "tags": ["well-known"],
                "summary": "Get JWKS",
                "responses": {"200": {"description": "The JSON Web Key Set", "schema": {"$ref": "#/definitions/jwtx.JWKS"}}}
            }
        },
        "/livez": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health Check Endpoint",
                "responses": {"200": {"description": "status, uptime, version", "schema": {"$ref": "#/definitions/http.HealthResponse"}}}
            }
        },
        "/readyz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness Check Endpoint",
                "responses": {
                    "200": {"description": "status, uptime, version, checks", "schema": {"$ref": "#/definitions/http.HealthResponse"}},
                    "503": {"description": "service not ready", "schema": {"$ref": "#/definitions/http.HealthResponse"}}
                }
            }
        },
        "/v1/payments/check": {
            "post": {
                "security": [{"SignedRequest": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Payments"],
                "summary": "Fraud check",
                "parameters": [{"description": "Payment attempt", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.PaymentAttempt"}}],
                "responses": {
                    "200": {"description": "allowed", "schema": {"$ref": "#/definitions/domain.AntifraudResult"}},
                    "400": {"description": "malformed body", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}},
                    "401": {"description": "signature rejected", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}},
                    "403": {"description": "rejected, with rule and reason", "schema": {"$ref": "#/definitions/domain.AntifraudResult"}},
                    "429": {"description": "rate limited", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}},
                    "503": {"description": "fraud check unavailable", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}}
                }
            }
        },
        "/v1/fraud/failures": {
            "post": {
                "security": [{"SignedRequest": []}],
                "consumes": ["application/json"],
                "tags": ["Payments"],
                "summary": "Report a failed payment",
                "parameters": [{"description": "Failure", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.FailureReport"}}],
                "responses": {
                    "204": {"description": "recorded"},
                    "400": {"description": "missing ip_address", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}},
                    "401": {"description": "signature rejected", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}},
                    "503": {"description": "storage unavailable", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}}
                }
            }
        },
        "/v1/token/refresh": {
            "post": {
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["Tokens"],
                "summary": "Refresh tokens",
                "parameters": [{"type": "string", "description": "Refresh token", "name": "refresh_token", "in": "formData", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.TokenResponse"}},
                    "400": {"description": "invalid_grant", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}},
                    "503": {"description": "storage unavailable", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}}
                }
            }
        },
        "/v1/token/revoke": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["Tokens"],
                "summary": "Revoke a token family",
                "parameters": [{"type": "string", "description": "User to revoke (admin only)", "name": "user_id", "in": "formData"}],
                "responses": {
                    "200": {"description": "revoked"},
                    "401": {"description": "missing or invalid token", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}},
                    "403": {"description": "admin required for user_id", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}}
                }
            }
        },
        "/v1/token/introspect": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["Tokens"],
                "summary": "Introspect an access token",
                "parameters": [{"type": "string", "description": "Access token", "name": "token", "in": "formData", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.IntrospectionResponse"}},
                    "400": {"description": "missing token", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}},
                    "401": {"description": "missing or invalid bearer", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}}
                }
            }
        },
        "/v1/reconciliation/{date}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Reconciliation"],
                "summary": "Get reconciliation report",
                "parameters": [{"type": "string", "description": "Day, YYYY-MM-DD", "name": "date", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.ReconciliationReport"}},
                    "400": {"description": "invalid date", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}},
                    "401": {"description": "missing or invalid token", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}},
                    "403": {"description": "admin required", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}},
                    "404": {"description": "no report for date", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Reconciliation"],
                "summary": "Run reconciliation",
                "parameters": [{"type": "string", "description": "Day, YYYY-MM-DD", "name": "date", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.ReconciliationReport"}},
                    "400": {"description": "invalid date", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}},
                    "503": {"description": "ledger unavailable", "schema": {"$ref": "#/definitions/httpx.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.PaymentAttempt": {
            "type": "object",
            "properties": {
                "ip_address": {"type": "string"},
                "cpf": {"type": "string"},
                "bin": {"type": "string"},
                "amount_cents": {"type": "integer"}
            }
        },
        "domain.AntifraudResult": {
            "type": "object",
            "properties": {
                "allowed": {"type": "boolean"},
                "reason": {"type": "string"},
                "triggered_rule": {"type": "string", "enum": ["ADAPTIVE_IP_BLOCK", "IP_VELOCITY", "CPF_BLACKLIST", "BIN_BLACKLIST"]}
            }
        },
        "domain.ReconciliationMismatch": {
            "type": "object",
            "properties": {
                "type": {"type": "string", "enum": ["STATUS_MISMATCH", "AMOUNT_MISMATCH", "MISSING_ON_PROVIDER", "MISSING_INTERNALLY", "LOOKUP_FAILED"]},
                "payment_id": {"type": "string"},
                "provider": {"type": "string"},
                "provider_payment_id": {"type": "string"},
                "internal_status": {"type": "string"},
                "provider_status": {"type": "string"},
                "internal_amount_cents": {"type": "integer"},
                "provider_amount_cents": {"type": "integer"},
                "cause": {"type": "string"}
            }
        },
        "domain.ReconciliationReport": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "date": {"type": "string"},
                "total_payments": {"type": "integer"},
                "matched_payments": {"type": "integer"},
                "mismatched_payments": {"type": "integer"},
                "mismatches": {"type": "array", "items": {"$ref": "#/definitions/domain.ReconciliationMismatch"}},
                "generated_at": {"type": "string"}
            }
        },
        "http.FailureReport": {
            "type": "object",
            "properties": {"ip_address": {"type": "string"}}
        },
        "http.HealthChecks": {
            "type": "object",
            "properties": {
                "database": {"type": "string"},
                "kv": {"type": "string"},
                "signer": {"type": "string"}
            }
        },
        "http.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "uptime": {"type": "string"},
                "version": {"type": "string"},
                "checks": {"$ref": "#/definitions/http.HealthChecks"}
            }
        },
        "http.IntrospectionResponse": {
            "type": "object",
            "properties": {
                "active": {"type": "boolean"},
                "sub": {"type": "string"},
                "email": {"type": "string"},
                "adm": {"type": "boolean"},
                "mid": {"type": "string"},
                "token_type": {"type": "string"},
                "iss": {"type": "string"},
                "jti": {"type": "string"},
                "exp": {"type": "integer"},
                "iat": {"type": "integer"}
            }
        },
        "http.TokenResponse": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "refresh_token": {"type": "string"},
                "token_type": {"type": "string"},
                "expires_in": {"type": "integer"}
            }
        },
        "httpx.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "error_description": {"type": "string"}
            }
        },
        "jwtx.JWKS": {
            "type": "object",
            "properties": {
                "keys": {"type": "array", "items": {"type": "object"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "JWT access token. Format: \"Bearer {token}\".",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        },
        "SignedRequest": {
            "description": "Hex HMAC-SHA256 of the canonical request, sent with X-Api-Key, X-Timestamp and X-Nonce.",
            "type": "apiKey",
            "name": "X-Signature",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "trustcore API",
	Description:      "Request signing, token, fraud and reconciliation endpoints of the payment trust core.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
