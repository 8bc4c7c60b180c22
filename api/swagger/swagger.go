package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "CMIS Publishing Queue API",
        "description": "Slot allocation and scheduling engine for social publishing queues",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Member login and token lifecycle"},
        {"name": "Queues", "description": "Posting schedules and slot allocation"},
        {"name": "Accounts", "description": "Connected publishing channels"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate member",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshTokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid refresh token"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Revoke refresh tokens",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current member profile",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queues": {
            "post": {
                "tags": ["Queues"],
                "summary": "Create queue configuration",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertQueueConfigRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Validation failed"}
                }
            }
        },
        "/queues/{accountId}": {
            "get": {
                "tags": ["Queues"],
                "summary": "Get queue configuration",
                "parameters": [
                    {"name": "accountId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Queue not configured"}
                }
            },
            "put": {
                "tags": ["Queues"],
                "summary": "Update queue configuration",
                "parameters": [
                    {"name": "accountId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertQueueConfigRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Validation failed"}
                }
            }
        },
        "/queues/{accountId}/next-slot": {
            "get": {
                "tags": ["Queues"],
                "summary": "Compute the next available slot",
                "parameters": [
                    {"name": "accountId", "in": "path", "required": true, "type": "string"},
                    {"name": "after", "in": "query", "type": "string", "description": "RFC3339 lower bound"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not configured or no slots"}
                }
            }
        },
        "/queues/{accountId}/posts": {
            "get": {
                "tags": ["Queues"],
                "summary": "List queued posts",
                "parameters": [
                    {"name": "accountId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queues/{accountId}/posts/export": {
            "get": {
                "tags": ["Queues"],
                "summary": "Export queued posts as CSV",
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "accountId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "CSV payload"}
                }
            }
        },
        "/queues/{accountId}/schedule": {
            "post": {
                "tags": ["Queues"],
                "summary": "Add a post to the queue",
                "parameters": [
                    {"name": "accountId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SchedulePostRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Cannot schedule"},
                    "409": {"description": "Slot already occupied"}
                }
            }
        },
        "/queues/posts/{postId}": {
            "delete": {
                "tags": ["Queues"],
                "summary": "Remove a post from the queue",
                "parameters": [
                    {"name": "postId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Post not found"}
                }
            }
        },
        "/queues/{accountId}/statistics": {
            "get": {
                "tags": ["Queues"],
                "summary": "Queue statistics",
                "parameters": [
                    {"name": "accountId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/accounts": {
            "get": {
                "tags": ["Accounts"],
                "summary": "List social accounts",
                "parameters": [
                    {"name": "platform", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Accounts"],
                "summary": "Register a publishing channel",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ConnectAccountRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Validation failed"}
                }
            }
        },
        "/accounts/{id}": {
            "get": {
                "tags": ["Accounts"],
                "summary": "Get social account detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Account not found"}
                }
            },
            "delete": {
                "tags": ["Accounts"],
                "summary": "Disconnect a publishing channel",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Account not found"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "RefreshTokenRequest": {
            "type": "object",
            "required": ["refresh_token"],
            "properties": {
                "refresh_token": {"type": "string"}
            }
        },
        "UpsertQueueConfigRequest": {
            "type": "object",
            "properties": {
                "social_account_id": {"type": "string"},
                "weekdays_enabled": {"type": "string", "description": "7 chars of 0/1, Monday first"},
                "time_slots": {"type": "array", "items": {"type": "string"}, "description": "HH:MM entries"},
                "timezone": {"type": "string", "description": "IANA timezone name"},
                "is_active": {"type": "boolean"}
            }
        },
        "SchedulePostRequest": {
            "type": "object",
            "required": ["post_id"],
            "properties": {
                "post_id": {"type": "string"},
                "scheduled_for": {"type": "string", "format": "date-time"}
            }
        },
        "ConnectAccountRequest": {
            "type": "object",
            "required": ["platform", "handle"],
            "properties": {
                "platform": {"type": "string"},
                "handle": {"type": "string"},
                "display_name": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
