package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "VitalChain API",
        "description": "Health record anchoring and course badge service",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Auth", "description": "Registration and login"},
        {"name": "Records", "description": "Health record anchoring pipeline"},
        {"name": "Courses", "description": "Course catalog and completions"},
        {"name": "Badges", "description": "Badge minting, claims and verification"},
        {"name": "Users", "description": "Profile management"}
    ],
    "paths": {
        "/auth/register": {
            "post": {
                "tags": ["Auth"],
                "summary": "Register a new user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and receive an access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/records": {
            "post": {
                "tags": ["Records"],
                "summary": "Submit a health record",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordSubmission"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "Payload too large"}
                }
            }
        },
        "/records/{documentId}": {
            "get": {
                "tags": ["Records"],
                "summary": "Get a record's public projection",
                "parameters": [
                    {"name": "documentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "delete": {
                "tags": ["Records"],
                "summary": "Archive a record",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "documentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/records/{documentId}/private": {
            "get": {
                "tags": ["Records"],
                "summary": "Get a record's decrypted private payload",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "documentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"},
                    "500": {"description": "Integrity or anchor resolution failure"}
                }
            }
        },
        "/subjects/{subjectRef}/records": {
            "get": {
                "tags": ["Records"],
                "summary": "List a subject's record projections",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "subjectRef", "in": "path", "required": true, "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "List courses",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Courses"],
                "summary": "Create course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateCourseRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}": {
            "get": {
                "tags": ["Courses"],
                "summary": "Get course detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}/complete": {
            "post": {
                "tags": ["Courses"],
                "summary": "Mark a course as completed by the authenticated user",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/badges": {
            "get": {
                "tags": ["Badges"],
                "summary": "List the authenticated user's badges",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/badges/mint": {
            "post": {
                "tags": ["Badges"],
                "summary": "Mint a course completion badge",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MintRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Duplicate badge or course not completed"}
                }
            }
        },
        "/badges/{badgeId}/claim": {
            "post": {
                "tags": ["Badges"],
                "summary": "Claim an earned badge",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "badgeId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already claimed"}
                }
            }
        },
        "/badges/transaction/{transactionId}": {
            "get": {
                "tags": ["Badges"],
                "summary": "Get the badge minted under a ledger transaction",
                "parameters": [
                    {"name": "transactionId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/badges/transaction/{transactionId}/certificate": {
            "get": {
                "tags": ["Badges"],
                "summary": "Download a badge certificate as PDF",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "transactionId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF document"}
                }
            }
        },
        "/badges/verify/{transactionId}": {
            "get": {
                "tags": ["Badges"],
                "summary": "Verify a badge by ledger transaction",
                "parameters": [
                    {"name": "transactionId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/users/me": {
            "get": {
                "tags": ["Users"],
                "summary": "Get the authenticated user's profile",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Users"],
                "summary": "Update the authenticated user's profile",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateProfileRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "RecordSubmission": {
            "type": "object",
            "properties": {
                "subject_id": {"type": "string"},
                "content": {"type": "string"},
                "provider": {"type": "string"},
                "facility": {"type": "string"},
                "type": {"type": "string"},
                "date": {"type": "string"},
                "extra": {"type": "object"}
            },
            "required": ["subject_id", "content"]
        },
        "PublicProjection": {
            "type": "object",
            "properties": {
                "document_id": {"type": "string"},
                "subject_key_hash": {"type": "string"},
                "metadata": {"type": "object"},
                "status": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "RegisterRequest": {
            "type": "object",
            "properties": {
                "username": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["username", "email", "password"]
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "UpdateProfileRequest": {
            "type": "object",
            "properties": {
                "username": {"type": "string"},
                "email": {"type": "string"}
            }
        },
        "CreateCourseRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "difficulty": {"type": "string", "enum": ["Beginner", "Intermediate", "Advanced"]},
                "badge_name": {"type": "string"},
                "badge_description": {"type": "string"},
                "badge_image_url": {"type": "string"}
            },
            "required": ["title", "description", "difficulty"]
        },
        "MintRequest": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "course_id": {"type": "string"}
            },
            "required": ["user_id", "course_id"]
        },
        "Badge": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "subject_id": {"type": "string"},
                "course_id": {"type": "string"},
                "name": {"type": "string"},
                "token_id": {"type": "string"},
                "serial_number": {"type": "integer"},
                "transaction_id": {"type": "string"},
                "metadata_digest": {"type": "string"},
                "created_at": {"type": "string"}
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
